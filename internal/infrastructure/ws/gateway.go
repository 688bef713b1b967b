package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/inklet/inklet/internal/canvas"
	"github.com/inklet/inklet/internal/domain"
)

// Gateway routes inbound operations into the room store, the event log and
// the chat log, and fans the committed results back out to room members.
//
// Every mutating operation on a room runs under that room's gateway mutex:
// the commit and the enqueue of its broadcast happen as one unit, so members
// observe events in exactly the commit order. Enqueueing never touches the
// network (write pumps do), so no I/O happens under the lock. Operations on
// different rooms don't contend.
type Gateway struct {
	store     domain.RoomStore
	chat      domain.ChatLog
	log       *canvas.Log
	snapshots *canvas.Snapshots
	roomMgr   *RoomManager
	logger    *zap.SugaredLogger

	// Session registry: every upgraded connection, joined or not.
	sessions map[string]*Client
	sessMu   sync.RWMutex

	roomLocks map[string]*sync.Mutex
	lockMu    sync.Mutex
}

func NewGateway(
	store domain.RoomStore,
	chat domain.ChatLog,
	log *canvas.Log,
	snapshots *canvas.Snapshots,
	logger *zap.SugaredLogger,
) *Gateway {
	return &Gateway{
		store:     store,
		chat:      chat,
		log:       log,
		snapshots: snapshots,
		roomMgr:   NewRoomManager(),
		logger:    logger,
		sessions:  make(map[string]*Client),
		roomLocks: make(map[string]*sync.Mutex),
	}
}

func (g *Gateway) roomLock(roomID string) *sync.Mutex {
	g.lockMu.Lock()
	defer g.lockMu.Unlock()
	mu, ok := g.roomLocks[roomID]
	if !ok {
		mu = &sync.Mutex{}
		g.roomLocks[roomID] = mu
	}
	return mu
}

// Register adds a freshly upgraded connection to the session registry.
func (g *Gateway) Register(c *Client) {
	g.sessMu.Lock()
	g.sessions[c.ID] = c
	g.sessMu.Unlock()
	g.logger.Infow("connection registered", "connId", c.ID)
}

// Disconnect removes the connection from its room (if any) and the session
// registry. Safe to call more than once.
func (g *Gateway) Disconnect(c *Client) {
	g.sessMu.Lock()
	// A reconnect may have re-registered this id; only evict our entry.
	known := g.sessions[c.ID] == c
	if known {
		delete(g.sessions, c.ID)
	}
	g.sessMu.Unlock()
	if !known {
		return
	}

	g.leaveRoom(c)
	close(c.send)
	g.logger.Infow("connection closed", "connId", c.ID)
}

// SessionCount reports the number of live connections.
func (g *Gateway) SessionCount() int {
	g.sessMu.RLock()
	defer g.sessMu.RUnlock()
	return len(g.sessions)
}

// Dispatch routes one inbound operation. Operations other than join-room
// require a prior successful join on this connection.
func (g *Gateway) Dispatch(c *Client, env Envelope) {
	if env.Type == OpJoinRoom {
		g.handleJoin(c, env.Data)
		return
	}

	roomID := c.RoomID()
	if roomID == "" {
		c.trySend(NewError("", "join a room first"))
		return
	}

	switch env.Type {
	case OpLeaveRoom:
		g.leaveRoom(c)
	case OpDraw, OpStroke:
		g.handleDraw(c, roomID, env.Data)
	case OpClearCanvas:
		g.handleClear(c, roomID)
	case OpUndo:
		g.handleUndo(c, roomID)
	case OpRedo:
		g.handleRedo(c, roomID)
	case OpRequestCanvas:
		g.handleRequestCanvas(c, roomID)
	case OpCanvasData:
		g.handleCanvasData(roomID, env.Data)
	case OpSendMessage:
		g.handleChat(c, roomID, env.Data)
	case OpTyping:
		g.roomMgr.BroadcastExcept(roomID, c.ID, NewTyping(UserTyping, roomID, c.Username()))
	case OpStopTyping:
		g.roomMgr.BroadcastExcept(roomID, c.ID, NewTyping(UserStopTyping, roomID, c.Username()))
	default:
		c.trySend(NewError(roomID, "unknown operation"))
	}
}

func (g *Gateway) handleJoin(c *Client, data json.RawMessage) {
	var req joinRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.trySend(NewJoinError("", "malformed join request"))
		return
	}
	if req.RoomID == "" || req.Username == "" {
		c.trySend(NewJoinError(req.RoomID, "room id and username are required"))
		return
	}

	// Switching rooms on a live connection is a leave followed by a join.
	if current := c.RoomID(); current != "" && current != req.RoomID {
		g.leaveRoom(c)
	}

	mu := g.roomLock(req.RoomID)
	mu.Lock()
	defer mu.Unlock()

	room, member, err := g.store.Admit(context.Background(), req.RoomID, c.ID, req.Username, req.Password)
	if err != nil {
		// Auth failures keep the connection open so the client can
		// re-prompt and retry.
		switch {
		case errors.Is(err, domain.ErrPasswordRequired):
			c.trySend(NewJoinError(req.RoomID, MsgPasswordRequired))
		case errors.Is(err, domain.ErrIncorrectPassword):
			c.trySend(NewJoinError(req.RoomID, MsgIncorrectPassword))
		case errors.Is(err, domain.ErrInvalidInput):
			c.trySend(NewJoinError(req.RoomID, "invalid join request"))
		default:
			g.logger.Errorw("admit failed", "roomId", req.RoomID, "connId", c.ID, "error", err)
			c.trySend(NewJoinError(req.RoomID, "cannot join room"))
		}
		return
	}

	c.setRoom(room.ID, member.Username)
	g.roomMgr.AddClient(c)

	// Snapshot and member list are captured under the room lock, so no
	// commit can slip between the snapshot frontier and the broadcasts the
	// joiner starts receiving.
	members, _ := g.store.Members(context.Background(), room.ID)
	messages, err := g.chat.History(context.Background(), room.ID)
	if err != nil {
		messages = []domain.ChatMessage{}
	}
	snapshot := g.snapshots.Request(room.ID)

	c.trySend(NewRoomJoined(room.ID, members, messages, snapshot))
	g.roomMgr.BroadcastExcept(room.ID, c.ID, NewRoomUsers(UserJoinedEvent, room.ID, members))

	g.logger.Infow("member joined", "roomId", room.ID, "connId", c.ID, "username", member.Username)
}

func (g *Gateway) leaveRoom(c *Client) {
	roomID := c.RoomID()
	if roomID == "" {
		return
	}

	mu := g.roomLock(roomID)
	mu.Lock()
	defer mu.Unlock()

	member, err := g.store.Remove(context.Background(), roomID, c.ID)
	g.roomMgr.RemoveClient(c)
	c.clearRoom()

	if err != nil || member == nil {
		return
	}

	if members, err := g.store.Members(context.Background(), roomID); err == nil {
		g.roomMgr.Broadcast(roomID, NewRoomUsers(UserLeftEvent, roomID, members))
	}

	g.logger.Infow("member left", "roomId", roomID, "connId", c.ID, "username", member.Username)
}

func (g *Gateway) handleDraw(c *Client, roomID string, data json.RawMessage) {
	var req drawRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.trySend(NewError(roomID, "malformed draw event"))
		return
	}
	if req.Kind == "" {
		req.Kind = domain.EventStroke
	}
	// Clients that don't wrap their tool parameters send them flat; pass
	// the whole frame through as the payload.
	if len(req.Payload) == 0 {
		req.Payload = data
	}

	mu := g.roomLock(roomID)
	mu.Lock()
	defer mu.Unlock()

	event, err := g.log.Submit(roomID, c.ID, req.Kind, req.Payload)
	if err != nil {
		c.trySend(NewError(roomID, "invalid draw event"))
		return
	}

	// Echoed to the author too: the committed seq is what reconciles
	// optimistic local rendering.
	g.roomMgr.Broadcast(roomID, NewDrawEvent(DrawEvent, roomID, event))
}

func (g *Gateway) handleClear(c *Client, roomID string) {
	mu := g.roomLock(roomID)
	mu.Lock()
	defer mu.Unlock()

	g.log.Clear(roomID)
	g.snapshots.Invalidate(roomID)
	g.roomMgr.Broadcast(roomID, NewClearCanvas(roomID))

	g.logger.Infow("canvas cleared", "roomId", roomID, "connId", c.ID)
}

func (g *Gateway) handleUndo(c *Client, roomID string) {
	mu := g.roomLock(roomID)
	mu.Lock()
	defer mu.Unlock()

	event, ok := g.log.Undo(roomID)
	if !ok {
		return // nothing to undo, silent no-op
	}

	g.snapshots.Invalidate(roomID)
	g.roomMgr.Broadcast(roomID, NewDrawEvent(UndoEvent, roomID, event))
}

func (g *Gateway) handleRedo(c *Client, roomID string) {
	mu := g.roomLock(roomID)
	mu.Lock()
	defer mu.Unlock()

	event, ok := g.log.Redo(roomID)
	if !ok {
		return
	}

	g.snapshots.Invalidate(roomID)
	g.roomMgr.Broadcast(roomID, NewDrawEvent(RedoEvent, roomID, event))
}

func (g *Gateway) handleRequestCanvas(c *Client, roomID string) {
	mu := g.roomLock(roomID)
	mu.Lock()
	defer mu.Unlock()

	// Requester only; nobody else asked.
	c.trySend(NewCanvasData(roomID, g.snapshots.Request(roomID)))
}

func (g *Gateway) handleCanvasData(roomID string, data json.RawMessage) {
	var req canvasUpload
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}

	// Under the room lock like every other mutation: the upload's seq tag
	// must be checked against a frontier no concurrent undo can move.
	mu := g.roomLock(roomID)
	mu.Lock()
	defer mu.Unlock()

	g.snapshots.StoreRaster(roomID, req.CanvasData, req.Seq)
}

func (g *Gateway) handleChat(c *Client, roomID string, data json.RawMessage) {
	var req chatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.trySend(NewError(roomID, "malformed chat message"))
		return
	}

	mu := g.roomLock(roomID)
	mu.Lock()
	defer mu.Unlock()

	msg, err := g.chat.Append(context.Background(), roomID, c.Username(), req.Text)
	if err != nil {
		c.trySend(NewError(roomID, "invalid chat message"))
		return
	}

	g.roomMgr.Broadcast(roomID, NewMessageReceived(roomID, msg))
}

// OnRoomExpired releases all per-room state once the store drops an empty
// room. Wired as the store's expiry hook.
func (g *Gateway) OnRoomExpired(roomID string) {
	g.log.Drop(roomID)
	g.snapshots.Invalidate(roomID)
	_ = g.chat.Drop(context.Background(), roomID)

	g.lockMu.Lock()
	delete(g.roomLocks, roomID)
	g.lockMu.Unlock()

	g.logger.Infow("room expired", "roomId", roomID)
}
