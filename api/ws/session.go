package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendChanBuf   = 64
	writeDeadline = 10 * time.Second
	readDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second
	maxMessage    = 64 << 10
)

// Packet is the WS message envelope in both directions.
type Packet struct {
	Seq     uint64          `json:"seq,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Session is one connected overlay. Reads happen on the handler goroutine,
// writes on writePump; Send may be called from anywhere.
type Session struct {
	ID      string
	Client  string
	Conn    *websocket.Conn
	LastSeq uint64
	TraceID string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger
}

// NewSession wraps conn and starts its write pump. conn may be nil in tests,
// in which case no pump runs and sent bytes stay queued.
func NewSession(client string, conn *websocket.Conn, logger *zap.Logger) *Session {
	s := &Session{
		ID:     uuid.NewString(),
		Client: client,
		Conn:   conn,
		send:   make(chan []byte, sendChanBuf),
		done:   make(chan struct{}),
		logger: logger,
	}
	if conn != nil {
		go s.writePump()
	}
	return s
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer s.Conn.Close()
	for {
		select {
		case data := <-s.send:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("ws write error", zap.String("session", s.ID), zap.Error(err))
				s.Close()
				return
			}
		case <-ticker.C:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			_ = s.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send encodes pkt and queues it. Frames are dropped when the overlay
// cannot keep up; the next one supersedes them anyway.
func (s *Session) Send(pkt *Packet) {
	data, err := json.Marshal(pkt)
	if err != nil {
		s.logger.Error("ws encode failed", zap.String("type", pkt.Type), zap.Error(err))
		return
	}
	s.SendRaw(data)
}

// SendRaw queues data without blocking.
func (s *Session) SendRaw(data []byte) {
	if s.IsClosed() {
		return
	}
	select {
	case s.send <- data:
	case <-s.done:
	default:
		s.logger.Debug("ws send buffer full, dropping", zap.String("session", s.ID))
	}
}

// Close signals the write pump to shut down. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Session) IsClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) extendDeadline() {
	_ = s.Conn.SetReadDeadline(time.Now().Add(readDeadline))
}
