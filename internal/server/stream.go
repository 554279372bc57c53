package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/signalsfoundry/globeview/controls"
	"github.com/signalsfoundry/globeview/globe"
	"github.com/signalsfoundry/globeview/internal/logging"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeTimeout = 10 * time.Second
	maxMessage   = 64 << 10
)

// Client message types.
const (
	MsgInput   = "input"
	MsgZoomIn  = "zoomIn"
	MsgZoomOut = "zoomOut"
	MsgReset   = "reset"
	MsgFly     = "fly"
	MsgBorders = "borders"
)

// ClientMessage is a command sent by a stream client.
type ClientMessage struct {
	Type    string          `json:"type"`
	Event   *controls.Event `json:"event,omitempty"`
	Name    string          `json:"name,omitempty"`
	Visible *bool           `json:"visible,omitempty"`
}

// ServerMessage is pushed to stream clients.
type ServerMessage struct {
	Type    string            `json:"type"`
	Session string            `json:"session,omitempty"`
	State   *globe.FrameState `json:"state,omitempty"`
	Error   string            `json:"error,omitempty"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn(r.Context(), "websocket upgrade failed", logging.Err(err))
		return
	}
	ctx, log := logging.WithSessionLogger(context.Background(), s.log)
	ctx, cancel := context.WithCancel(ctx)

	s.connect(ctx, log)
	defer s.disconnect(ctx, log)

	out := make(chan ServerMessage, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writePump(ctx, conn, out, log)
		_ = conn.Close()
	}()

	out <- ServerMessage{Type: "hello", Session: logging.SessionIDFromContext(ctx)}
	s.readPump(conn, out, log)

	cancel()
	<-done
}

func (s *Server) connect(ctx context.Context, log logging.Logger) {
	s.mu.Lock()
	s.clients++
	n := s.clients
	s.mu.Unlock()

	s.metrics.AddStreamClients(1)
	if nc := s.globe.News(); nc != nil && n == 1 {
		nc.SetActive(true)
	}
	log.Info(ctx, "stream client connected", logging.Int("clients", n))
}

func (s *Server) disconnect(ctx context.Context, log logging.Logger) {
	s.mu.Lock()
	s.clients--
	n := s.clients
	s.mu.Unlock()

	s.metrics.AddStreamClients(-1)
	if nc := s.globe.News(); nc != nil && n == 0 {
		nc.SetActive(false)
	}
	log.Info(ctx, "stream client disconnected", logging.Int("clients", n))
}

// readPump applies client commands until the connection closes. Replies go
// through out so only the write pump touches the connection's writer.
func (s *Server) readPump(conn *websocket.Conn, out chan<- ServerMessage, log logging.Logger) {
	conn.SetReadLimit(maxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn(context.Background(), "stream read failed", logging.Err(err))
			}
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.reply(out, ServerMessage{Type: "error", Error: "invalid message"})
			continue
		}
		if err := s.apply(msg); err != nil {
			s.reply(out, ServerMessage{Type: "error", Error: err.Error()})
		}
	}
}

// reply drops the message when the client is not draining its queue.
func (s *Server) reply(out chan<- ServerMessage, msg ServerMessage) {
	select {
	case out <- msg:
	default:
	}
}

type commandError string

func (e commandError) Error() string { return string(e) }

func (s *Server) apply(msg ClientMessage) error {
	switch msg.Type {
	case MsgInput:
		if msg.Event == nil {
			return commandError("input message without event")
		}
		s.globe.HandleInput(*msg.Event)
	case MsgZoomIn:
		s.globe.Controls().ZoomIn()
	case MsgZoomOut:
		s.globe.Controls().ZoomOut()
	case MsgReset:
		s.globe.Controls().Reset()
	case MsgFly:
		if _, err := s.globe.FlyToMarker(msg.Name); err != nil {
			return err
		}
	case MsgBorders:
		if msg.Visible == nil {
			return commandError("borders message without visible")
		}
		s.globe.SetBordersVisible(*msg.Visible)
	default:
		return commandError("unknown message type " + msg.Type)
	}
	return nil
}

// writePump pushes queued replies and a frame every interval.
func (s *Server) writePump(ctx context.Context, conn *websocket.Conn, out <-chan ServerMessage, log logging.Logger) {
	frames := time.NewTicker(s.interval)
	defer frames.Stop()
	pings := time.NewTicker(pingInterval)
	defer pings.Stop()

	write := func(msg ServerMessage) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			log.Debug(ctx, "stream write failed", logging.Err(err))
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-out:
			if !write(msg) {
				return
			}
		case <-frames.C:
			state := s.globe.Snapshot()
			if !write(ServerMessage{Type: "frame", State: &state}) {
				return
			}
		case <-pings.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
