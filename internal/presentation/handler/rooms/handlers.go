package rooms

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/inklet/inklet/internal/domain"
	"github.com/inklet/inklet/internal/infrastructure/json"
	"github.com/inklet/inklet/internal/infrastructure/tracing"
	"github.com/inklet/inklet/internal/infrastructure/ws"
	"github.com/inklet/inklet/internal/presentation/utils"
)

var tracer = tracing.GetTracer("inklet.rooms")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// The core trusts the deployment's CORS layer; origins are not
		// filtered here.
		return true
	},
}

type Handler struct {
	roomStore domain.RoomStore
	gateway   *ws.Gateway
}

func NewHandler(roomStore domain.RoomStore, gateway *ws.Gateway) *Handler {
	return &Handler{
		roomStore: roomStore,
		gateway:   gateway,
	}
}

func (h *Handler) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "rooms.create")
	defer span.End()

	var req createRoomRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	// Hand the browser a stable connection token now so the websocket
	// join that follows reuses the same identity.
	utils.ConnectionToken(w, r)

	room, err := h.roomStore.Create(ctx, req.IsPrivate, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrPasswordRequired):
			json.WriteBadRequestError(w, "Private rooms need a password")
		case errors.Is(err, domain.ErrRoomSpaceExhausted):
			json.WriteError(w, http.StatusServiceUnavailable, err, "No room can be allocated right now")
		default:
			log.Printf("Failed to create room: %v", err)
			json.WriteInternalError(w, err)
		}
		return
	}

	resp := createRoomResponse{
		RoomID:    room.ID,
		IsPrivate: room.IsPrivate,
		CreatedAt: room.CreatedAt,
	}

	json.Write(w, http.StatusCreated, resp)
}

func (h *Handler) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "rooms.get")
	defer span.End()

	roomID := chi.URLParam(r, "roomId")
	if roomID == "" {
		json.WriteValidationError(w, errors.New("room ID is missing"))
		return
	}

	room, err := h.roomStore.GetByID(ctx, roomID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRoomNotFound):
			json.WriteNotFoundError(w, "Room not found")
		default:
			log.Printf("Failed to load room %s: %v", roomID, err)
			json.WriteInternalError(w, err)
		}
		return
	}

	// The member list mutates under the store's lock as joins and leaves
	// land; Members reads it there instead of through the room pointer.
	members, err := h.roomStore.Members(ctx, roomID)
	if err != nil {
		members = nil
	}

	resp := roomResponse{
		RoomID:      room.ID,
		IsPrivate:   room.IsPrivate,
		MemberCount: len(members),
		CreatedAt:   room.CreatedAt,
	}

	json.Write(w, http.StatusOK, resp)
}

// WebSocketHandler upgrades the connection and parks it in the session
// registry. Joining a room happens in-band afterwards, so a failed password
// attempt can be retried on the same connection.
func (h *Handler) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	token := utils.TokenFromRequest(r)
	header := http.Header{}
	if token == "" {
		token = uuid.NewString()
		header.Add("Set-Cookie", utils.ConnectionCookie(token).String())
	}

	conn, err := upgrader.Upgrade(w, r, header)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := ws.NewClient(conn, token)
	h.gateway.Register(client)

	go client.WritePump()
	go client.ReadPump(h.gateway)
}
