// internal/events/hub.go
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

// Envelope is the wire shape of every event delivered to clients.
type Envelope struct {
	Event   string      `json:"event"`
	Room    string      `json:"room"`
	Payload interface{} `json:"payload,omitempty"`
	Ts      int64       `json:"ts"`
}

// Conn is one subscriber's presence in a room. Outgoing messages go
// through a buffered channel; a full channel drops the message rather
// than blocking the emitter.
type Conn struct {
	UserID  string
	OutChan chan Envelope
	cancel  context.CancelFunc
}

// Hub is the WebSocket implementation of Emitter: a set of rooms keyed
// by lobby code, each holding the live connections subscribed to it.
type Hub struct {
	mu     sync.Mutex
	rooms  map[string]map[*Conn]struct{}
	logger *logrus.Logger
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Conn]struct{}),
		logger: logger,
	}
}

// Emit sends the event to every connection in the room.
func (h *Hub) Emit(ctx context.Context, room, event string, payload interface{}) {
	env := Envelope{Event: event, Room: room, Payload: payload, Ts: time.Now().Unix()}

	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		select {
		case c.OutChan <- env:
		default:
			h.logger.WithFields(logrus.Fields{"room": room, "event": event, "user": c.UserID}).
				Warn("subscriber channel full; dropping event")
		}
	}
}

// Subscribe registers a connection in a room and returns it.
func (h *Hub) Subscribe(room, userID string, cancel context.CancelFunc) *Conn {
	c := &Conn{
		UserID:  userID,
		OutChan: make(chan Envelope, 32),
		cancel:  cancel,
	}
	h.mu.Lock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Conn]struct{})
	}
	h.rooms[room][c] = struct{}{}
	h.mu.Unlock()
	return c
}

// Unsubscribe removes a connection and tears down its write pump. The
// outgoing channel is never closed: Emit may hold a reference to the
// connection from before removal, so the pump exits on cancellation
// instead.
func (h *Hub) Unsubscribe(room string, c *Conn) {
	h.mu.Lock()
	if conns, ok := h.rooms[room]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// RoomSize reports the number of live subscribers in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

// WritePump drains the connection's outgoing channel onto the WebSocket
// until the context is canceled or a write fails.
func (h *Hub) WritePump(ctx context.Context, ws *websocket.Conn, c *Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-c.OutChan:
			data, err := json.Marshal(env)
			if err != nil {
				h.logger.WithError(err).Error("failed to marshal event envelope")
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = ws.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				h.logger.WithError(err).WithField("user", c.UserID).Debug("websocket write failed")
				return
			}
		}
	}
}

// Recorder is a test Emitter that captures everything emitted.
type Recorder struct {
	mu     sync.Mutex
	Events []Envelope
}

func (r *Recorder) Emit(ctx context.Context, room, event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, Envelope{Event: event, Room: room, Payload: payload, Ts: time.Now().Unix()})
}

// Last returns the most recent event, or nil.
func (r *Recorder) Last() *Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Events) == 0 {
		return nil
	}
	return &r.Events[len(r.Events)-1]
}

// ByEvent returns all captured envelopes with the given event name.
func (r *Recorder) ByEvent(event string) []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Envelope
	for _, e := range r.Events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}
