package ws

// Inbound operation types. These are the contract labels the client emits;
// "stroke" is accepted as an alias of "draw".
const (
	OpJoinRoom      = "join-room"
	OpLeaveRoom     = "leave-room"
	OpDraw          = "draw"
	OpStroke        = "stroke"
	OpClearCanvas   = "clear-canvas"
	OpUndo          = "undo"
	OpRedo          = "redo"
	OpRequestCanvas = "request-canvas"
	OpCanvasData    = "canvas-data"
	OpSendMessage   = "send-message"
	OpTyping        = "typing"
	OpStopTyping    = "stop-typing"
)

// Outbound event types.
const (
	RoomJoinedEvent  = "room-joined"
	JoinErrorEvent   = "join-error"
	UserJoinedEvent  = "user-joined"
	UserLeftEvent    = "user-left"
	DrawEvent        = "draw"
	ClearCanvasEvent = "clear-canvas"
	UndoEvent        = "undo"
	RedoEvent        = "redo"
	CanvasDataEvent  = "canvas-data"
	MessageReceived  = "receive-message"
	UserTyping       = "user-typing"
	UserStopTyping   = "user-stop-typing"
	ErrorEvent       = "error"
)

// Error messages the client matches on verbatim to re-prompt for a password.
const (
	MsgPasswordRequired  = "Password required"
	MsgIncorrectPassword = "Incorrect password"
)
