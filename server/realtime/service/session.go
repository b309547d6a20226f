package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	commonlog "editmarket/server/common/log"
	"editmarket/server/realtime/domain"
)

const (
	writeWait          = 10 * time.Second
	pongWait           = 60 * time.Second
	pingPeriod         = (pongWait * 9) / 10
	maxReadMessageSize = 4096
	sendBufferSize     = 256
)

// Session is one live websocket connection of one authenticated user.
// A user may hold several sessions at once (multiple tabs or devices).
type Session struct {
	id       string
	userID   string
	userName string
	conn     *websocket.Conn

	send      chan domain.Envelope
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, userID, userName string) *Session {
	return &Session{
		id:       uuid.NewString(),
		userID:   userID,
		userName: userName,
		conn:     conn,
		send:     make(chan domain.Envelope, sendBufferSize),
		done:     make(chan struct{}),
	}
}

func (s *Session) ID() string       { return s.id }
func (s *Session) UserID() string   { return s.userID }
func (s *Session) UserName() string { return s.userName }

// Enqueue hands a frame to the write loop without blocking. A slow
// consumer drops frames rather than stalling the broadcaster.
func (s *Session) Enqueue(env domain.Envelope) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.send <- env:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) readLoop(svc *Service) {
	defer svc.teardown(s)

	s.conn.SetReadLimit(maxReadMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		t, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if t != websocket.TextMessage {
			continue
		}
		svc.dispatch(s, raw)
		if s.closed() {
			return
		}
	}
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			_ = s.write(websocket.CloseMessage, []byte{})
			return
		case env := <-s.send:
			if err := s.write(websocket.TextMessage, env.Encode()); err != nil {
				commonlog.Debugf("event=realtime_session action=write status=failed conn_id=%s user_id=%s error=%v", s.id, s.userID, err)
				s.close()
				return
			}
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, []byte{}); err != nil {
				s.close()
				return
			}
		}
	}
}

func (s *Session) write(messageType int, data []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(messageType, data)
}
