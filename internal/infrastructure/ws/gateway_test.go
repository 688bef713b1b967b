package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inklet/inklet/internal/canvas"
	"github.com/inklet/inklet/internal/domain"
	"github.com/inklet/inklet/internal/infrastructure/repository"
)

func newTestGateway(t *testing.T) (*Gateway, domain.RoomStore) {
	t.Helper()

	drawLog := canvas.NewLog()
	snapshots := canvas.NewSnapshots(drawLog)
	chatLog := repository.NewChatLog(50)

	var g *Gateway
	store := repository.NewRoomStore(10, time.Hour, func(roomID string) {
		g.OnRoomExpired(roomID)
	})
	g = NewGateway(store, chatLog, drawLog, snapshots, zap.NewNop().Sugar())
	return g, store
}

func newTestClient(g *Gateway, id string) *Client {
	c := NewClient(nil, id)
	g.Register(c)
	return c
}

func join(g *Gateway, c *Client, roomID, username, password string) {
	data, _ := json.Marshal(map[string]string{
		"roomId":   roomID,
		"username": username,
		"password": password,
	})
	g.Dispatch(c, Envelope{Type: OpJoinRoom, Data: data})
}

// recv pops the next queued outbound frame; fails the test if none is queued.
func recv(t *testing.T, c *Client) *WSMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	default:
		t.Fatal("expected a queued message, found none")
		return nil
	}
}

func drain(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func assertNoMessage(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("expected no message, got %q", msg.Type)
	default:
	}
}

func TestJoinUnknownRoomCreatesPublicRoom(t *testing.T) {
	g, store := newTestGateway(t)
	c := newTestClient(g, "conn-1")

	join(g, c, "sketchpad", "alice", "")

	msg := recv(t, c)
	require.Equal(t, RoomJoinedEvent, msg.Type)
	assert.Equal(t, "sketchpad", msg.RoomID)

	payload := msg.Data.(RoomJoinedPayload)
	require.Len(t, payload.Users, 1)
	assert.Equal(t, "alice", payload.Users[0].Username)
	assert.Empty(t, payload.Snapshot.Events)

	room, err := store.GetByID(context.Background(), "sketchpad")
	require.NoError(t, err)
	assert.False(t, room.IsPrivate)
}

func TestJoinValidation(t *testing.T) {
	g, _ := newTestGateway(t)
	c := newTestClient(g, "conn-1")

	join(g, c, "", "alice", "")
	msg := recv(t, c)
	assert.Equal(t, JoinErrorEvent, msg.Type)

	g.Dispatch(c, Envelope{Type: OpJoinRoom, Data: []byte("{not json")})
	msg = recv(t, c)
	assert.Equal(t, JoinErrorEvent, msg.Type)
}

func TestOperationsBeforeJoinRejected(t *testing.T) {
	g, _ := newTestGateway(t)
	c := newTestClient(g, "conn-1")

	g.Dispatch(c, Envelope{Type: OpDraw, Data: []byte(`{"kind":"stroke","payload":{}}`)})

	msg := recv(t, c)
	require.Equal(t, ErrorEvent, msg.Type)
	assert.Equal(t, "join a room first", msg.Data.(ErrorPayload).Message)
}

// A private room admits nobody without the password, reports wrong attempts
// without dropping the connection, and admits on a correct retry.
func TestPrivateRoomPasswordFlow(t *testing.T) {
	g, store := newTestGateway(t)
	room, err := store.Create(context.Background(), true, "hunter2")
	require.NoError(t, err)

	c := newTestClient(g, "conn-a")

	join(g, c, room.ID, "alice", "")
	msg := recv(t, c)
	require.Equal(t, JoinErrorEvent, msg.Type)
	payload := msg.Data.(ErrorPayload)
	assert.Equal(t, MsgPasswordRequired, payload.Message)
	assert.True(t, payload.Retry)

	join(g, c, room.ID, "alice", "hunter3")
	msg = recv(t, c)
	require.Equal(t, JoinErrorEvent, msg.Type)
	assert.Equal(t, MsgIncorrectPassword, msg.Data.(ErrorPayload).Message)

	// Failed attempts leave the room untouched.
	members, err := store.Members(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Empty(t, members)
	assert.Equal(t, "", c.RoomID())

	join(g, c, room.ID, "alice", "hunter2")
	msg = recv(t, c)
	require.Equal(t, RoomJoinedEvent, msg.Type)

	members, err = store.Members(context.Background(), room.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "conn-a", members[0].ConnectionID)
}

func TestDrawCommitsAndBroadcastsToAllMembers(t *testing.T) {
	g, _ := newTestGateway(t)
	a := newTestClient(g, "conn-a")
	b := newTestClient(g, "conn-b")

	join(g, a, "room-1", "alice", "")
	join(g, b, "room-1", "bob", "")
	drain(a)
	drain(b)

	g.Dispatch(a, Envelope{Type: OpDraw, Data: []byte(`{"kind":"stroke","payload":{"points":[[1,2]]}}`)})

	// The author receives the committed event too.
	for _, c := range []*Client{a, b} {
		msg := recv(t, c)
		require.Equal(t, DrawEvent, msg.Type)
		event := msg.Data.(domain.DrawEvent)
		assert.Equal(t, int64(1), event.Seq)
		assert.Equal(t, "conn-a", event.AuthorID)
		assert.Equal(t, domain.EventStroke, event.Kind)
	}

	g.Dispatch(b, Envelope{Type: OpDraw, Data: []byte(`{"kind":"shape","payload":{"shape":"rect"}}`)})
	msg := recv(t, a)
	assert.Equal(t, int64(2), msg.Data.(domain.DrawEvent).Seq)
}

func TestStrokeAliasAndFlatPayload(t *testing.T) {
	g, _ := newTestGateway(t)
	a := newTestClient(g, "conn-a")
	join(g, a, "room-1", "alice", "")
	drain(a)

	// Legacy clients send tool parameters flat and label the frame "stroke".
	raw := []byte(`{"x0":1,"y0":2,"x1":3,"y1":4,"color":"#000"}`)
	g.Dispatch(a, Envelope{Type: OpStroke, Data: raw})

	msg := recv(t, a)
	require.Equal(t, DrawEvent, msg.Type)
	event := msg.Data.(domain.DrawEvent)
	assert.Equal(t, domain.EventStroke, event.Kind)
	assert.JSONEq(t, string(raw), string(event.Payload))
}

func TestUndoRedoBroadcast(t *testing.T) {
	g, _ := newTestGateway(t)
	a := newTestClient(g, "conn-a")
	b := newTestClient(g, "conn-b")
	join(g, a, "room-1", "alice", "")
	join(g, b, "room-1", "bob", "")
	drain(a)
	drain(b)

	g.Dispatch(a, Envelope{Type: OpDraw, Data: []byte(`{"kind":"stroke","payload":{}}`)})
	drain(a)
	drain(b)

	// Undo is shared: bob retracts alice's stroke.
	g.Dispatch(b, Envelope{Type: OpUndo})
	for _, c := range []*Client{a, b} {
		msg := recv(t, c)
		require.Equal(t, UndoEvent, msg.Type)
		assert.Equal(t, int64(1), msg.Data.(domain.DrawEvent).Seq)
	}

	g.Dispatch(a, Envelope{Type: OpRedo})
	for _, c := range []*Client{a, b} {
		msg := recv(t, c)
		require.Equal(t, RedoEvent, msg.Type)
		assert.Equal(t, int64(1), msg.Data.(domain.DrawEvent).Seq)
	}
}

func TestUndoOnEmptyHistoryIsSilent(t *testing.T) {
	g, _ := newTestGateway(t)
	a := newTestClient(g, "conn-a")
	join(g, a, "room-1", "alice", "")
	drain(a)

	g.Dispatch(a, Envelope{Type: OpUndo})
	assertNoMessage(t, a)

	g.Dispatch(a, Envelope{Type: OpRedo})
	assertNoMessage(t, a)
}

func TestClearBroadcastsAndResetsHistory(t *testing.T) {
	g, _ := newTestGateway(t)
	a := newTestClient(g, "conn-a")
	join(g, a, "room-1", "alice", "")
	drain(a)

	g.Dispatch(a, Envelope{Type: OpDraw, Data: []byte(`{"kind":"stroke","payload":{}}`)})
	drain(a)

	g.Dispatch(a, Envelope{Type: OpClearCanvas})
	msg := recv(t, a)
	assert.Equal(t, ClearCanvasEvent, msg.Type)

	// Clear is irreversible.
	g.Dispatch(a, Envelope{Type: OpUndo})
	assertNoMessage(t, a)

	// Seq restarts from 1.
	g.Dispatch(a, Envelope{Type: OpDraw, Data: []byte(`{"kind":"stroke","payload":{}}`)})
	msg = recv(t, a)
	assert.Equal(t, int64(1), msg.Data.(domain.DrawEvent).Seq)
}

func TestLateJoinerReceivesSnapshot(t *testing.T) {
	g, _ := newTestGateway(t)
	a := newTestClient(g, "conn-a")
	join(g, a, "room-1", "alice", "")
	drain(a)

	g.Dispatch(a, Envelope{Type: OpDraw, Data: []byte(`{"kind":"stroke","payload":{"n":1}}`)})
	g.Dispatch(a, Envelope{Type: OpDraw, Data: []byte(`{"kind":"stroke","payload":{"n":2}}`)})
	drain(a)

	b := newTestClient(g, "conn-b")
	join(g, b, "room-1", "bob", "")

	msg := recv(t, b)
	require.Equal(t, RoomJoinedEvent, msg.Type)
	payload := msg.Data.(RoomJoinedPayload)
	assert.Len(t, payload.Users, 2)
	require.Len(t, payload.Snapshot.Events, 2)
	assert.Equal(t, int64(2), payload.Snapshot.Seq)

	// The existing member is told about the arrival.
	msg = recv(t, a)
	require.Equal(t, UserJoinedEvent, msg.Type)
	assert.Len(t, msg.Data.(RoomUsersPayload).Users, 2)
}

func TestCanvasUploadTrimsJoinerReplay(t *testing.T) {
	g, _ := newTestGateway(t)
	a := newTestClient(g, "conn-a")
	join(g, a, "room-1", "alice", "")
	drain(a)

	g.Dispatch(a, Envelope{Type: OpDraw, Data: []byte(`{"kind":"stroke","payload":{"n":1}}`)})
	g.Dispatch(a, Envelope{Type: OpDraw, Data: []byte(`{"kind":"stroke","payload":{"n":2}}`)})
	drain(a)

	g.Dispatch(a, Envelope{Type: OpCanvasData, Data: []byte(`{"canvasData":"data:image/png;base64,AAA","seq":2}`)})

	b := newTestClient(g, "conn-b")
	join(g, b, "room-1", "bob", "")
	payload := recv(t, b).Data.(RoomJoinedPayload)
	assert.Equal(t, "data:image/png;base64,AAA", payload.Snapshot.Raster)
	assert.Equal(t, int64(2), payload.Snapshot.RasterSeq)
	assert.Empty(t, payload.Snapshot.Events)
}

// An upload tagged with a frontier an undo has since moved must not reach
// the cache; serving it would show the retracted stroke as current state.
func TestCanvasUploadStaleAfterUndoIsDropped(t *testing.T) {
	g, _ := newTestGateway(t)
	a := newTestClient(g, "conn-a")
	join(g, a, "room-1", "alice", "")
	drain(a)

	g.Dispatch(a, Envelope{Type: OpDraw, Data: []byte(`{"kind":"stroke","payload":{"n":1}}`)})
	g.Dispatch(a, Envelope{Type: OpDraw, Data: []byte(`{"kind":"stroke","payload":{"n":2}}`)})
	g.Dispatch(a, Envelope{Type: OpUndo})
	drain(a)

	// Rendered before the undo, delivered after it.
	g.Dispatch(a, Envelope{Type: OpCanvasData, Data: []byte(`{"canvasData":"data:image/png;base64,ZZZ","seq":2}`)})

	b := newTestClient(g, "conn-b")
	join(g, b, "room-1", "bob", "")
	payload := recv(t, b).Data.(RoomJoinedPayload)
	assert.Empty(t, payload.Snapshot.Raster)
	require.Len(t, payload.Snapshot.Events, 1)
	assert.Equal(t, int64(1), payload.Snapshot.Events[0].Seq)
}

func TestRequestCanvasAnswersRequesterOnly(t *testing.T) {
	g, _ := newTestGateway(t)
	a := newTestClient(g, "conn-a")
	b := newTestClient(g, "conn-b")
	join(g, a, "room-1", "alice", "")
	join(g, b, "room-1", "bob", "")
	drain(a)
	drain(b)

	g.Dispatch(a, Envelope{Type: OpRequestCanvas})

	msg := recv(t, a)
	assert.Equal(t, CanvasDataEvent, msg.Type)
	assertNoMessage(t, b)
}

func TestChatBroadcastWithIndependentSeq(t *testing.T) {
	g, _ := newTestGateway(t)
	a := newTestClient(g, "conn-a")
	b := newTestClient(g, "conn-b")
	join(g, a, "room-1", "alice", "")
	join(g, b, "room-1", "bob", "")
	drain(a)
	drain(b)

	// A draw in between must not advance the chat counter.
	g.Dispatch(a, Envelope{Type: OpSendMessage, Data: []byte(`{"text":"hi"}`)})
	g.Dispatch(a, Envelope{Type: OpDraw, Data: []byte(`{"kind":"stroke","payload":{}}`)})
	g.Dispatch(b, Envelope{Type: OpSendMessage, Data: []byte(`{"text":"hello"}`)})

	msg := recv(t, a)
	require.Equal(t, MessageReceived, msg.Type)
	first := msg.Data.(domain.ChatMessage)
	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, "alice", first.Author)
	assert.Equal(t, "hi", first.Text)

	drain(a)
	drain(b)

	// Late joiner sees chat history alongside the snapshot.
	c := newTestClient(g, "conn-c")
	join(g, c, "room-1", "carol", "")
	payload := recv(t, c).Data.(RoomJoinedPayload)
	require.Len(t, payload.Messages, 2)
	assert.Equal(t, int64(2), payload.Messages[1].Seq)
}

func TestTypingRelayedToOthersOnly(t *testing.T) {
	g, _ := newTestGateway(t)
	a := newTestClient(g, "conn-a")
	b := newTestClient(g, "conn-b")
	join(g, a, "room-1", "alice", "")
	join(g, b, "room-1", "bob", "")
	drain(a)
	drain(b)

	g.Dispatch(a, Envelope{Type: OpTyping})
	msg := recv(t, b)
	require.Equal(t, UserTyping, msg.Type)
	assert.Equal(t, "alice", msg.Data.(TypingPayload).Username)
	assertNoMessage(t, a)

	g.Dispatch(a, Envelope{Type: OpStopTyping})
	assert.Equal(t, UserStopTyping, recv(t, b).Type)
}

func TestLeaveRoomNotifiesRemaining(t *testing.T) {
	g, store := newTestGateway(t)
	a := newTestClient(g, "conn-a")
	b := newTestClient(g, "conn-b")
	join(g, a, "room-1", "alice", "")
	join(g, b, "room-1", "bob", "")
	drain(a)
	drain(b)

	g.Dispatch(a, Envelope{Type: OpLeaveRoom})

	msg := recv(t, b)
	require.Equal(t, UserLeftEvent, msg.Type)
	users := msg.Data.(RoomUsersPayload).Users
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].Username)

	assert.Equal(t, "", a.RoomID())
	members, err := store.Members(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestSwitchingRoomsLeavesTheOld(t *testing.T) {
	g, store := newTestGateway(t)
	a := newTestClient(g, "conn-a")
	join(g, a, "room-1", "alice", "")
	drain(a)

	join(g, a, "room-2", "alice", "")
	msg := recv(t, a)
	require.Equal(t, RoomJoinedEvent, msg.Type)
	assert.Equal(t, "room-2", a.RoomID())

	members, err := store.Members(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestUnknownOperation(t *testing.T) {
	g, _ := newTestGateway(t)
	a := newTestClient(g, "conn-a")
	join(g, a, "room-1", "alice", "")
	drain(a)

	g.Dispatch(a, Envelope{Type: "teleport"})
	msg := recv(t, a)
	require.Equal(t, ErrorEvent, msg.Type)
	assert.Equal(t, "unknown operation", msg.Data.(ErrorPayload).Message)
}

func TestDisconnectRemovesFromRoomAndRegistry(t *testing.T) {
	g, store := newTestGateway(t)
	a := newTestClient(g, "conn-a")
	b := newTestClient(g, "conn-b")
	join(g, a, "room-1", "alice", "")
	join(g, b, "room-1", "bob", "")
	drain(a)
	drain(b)
	require.Equal(t, 2, g.SessionCount())

	g.Disconnect(a)

	assert.Equal(t, 1, g.SessionCount())
	msg := recv(t, b)
	assert.Equal(t, UserLeftEvent, msg.Type)

	members, err := store.Members(context.Background(), "room-1")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "conn-b", members[0].ConnectionID)
}

// A reconnect with the same connection id re-registers before the old
// connection's cleanup runs. Cleanup must not evict the new session.
func TestStaleDisconnectKeepsReconnectedSession(t *testing.T) {
	g, _ := newTestGateway(t)
	old := newTestClient(g, "conn-a")
	join(g, old, "room-1", "alice", "")
	drain(old)

	fresh := newTestClient(g, "conn-a")
	join(g, fresh, "room-1", "alice", "")
	drain(fresh)

	g.Disconnect(old)

	assert.Equal(t, 1, g.SessionCount())
	assert.Equal(t, "room-1", fresh.RoomID())

	// The fresh client still receives broadcasts.
	g.Dispatch(fresh, Envelope{Type: OpDraw, Data: []byte(`{"kind":"stroke","payload":{}}`)})
	msg := recv(t, fresh)
	assert.Equal(t, DrawEvent, msg.Type)
}

func TestRoomExpiryDropsAllState(t *testing.T) {
	drawLog := canvas.NewLog()
	snapshots := canvas.NewSnapshots(drawLog)
	chatLog := repository.NewChatLog(50)

	var g *Gateway
	store := repository.NewRoomStore(10, 20*time.Millisecond, func(roomID string) {
		g.OnRoomExpired(roomID)
	})
	g = NewGateway(store, chatLog, drawLog, snapshots, zap.NewNop().Sugar())

	a := newTestClient(g, "conn-a")
	join(g, a, "room-1", "alice", "")
	drain(a)
	g.Dispatch(a, Envelope{Type: OpDraw, Data: []byte(`{"kind":"stroke","payload":{}}`)})
	g.Dispatch(a, Envelope{Type: OpSendMessage, Data: []byte(`{"text":"hi"}`)})
	drain(a)

	g.Dispatch(a, Envelope{Type: OpLeaveRoom})

	require.Eventually(t, func() bool {
		_, err := store.GetByID(context.Background(), "room-1")
		return err != nil
	}, time.Second, 10*time.Millisecond)

	// A fresh join finds a blank room.
	b := newTestClient(g, "conn-b")
	join(g, b, "room-1", "bob", "")
	payload := recv(t, b).Data.(RoomJoinedPayload)
	assert.Empty(t, payload.Snapshot.Events)
	assert.Empty(t, payload.Messages)
	assert.Equal(t, int64(0), payload.Snapshot.Seq)
}
