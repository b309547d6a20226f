package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"editmarket/server/realtime/domain"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (l *stateLog) record(s State) {
	l.mu.Lock()
	l.states = append(l.states, s)
	l.mu.Unlock()
}

func (l *stateLog) has(want State) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.states {
		if s == want {
			return true
		}
	}
	return false
}

func (l *stateLog) last() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.states) == 0 {
		return StateDisconnected
	}
	return l.states[len(l.states)-1]
}

func TestDialAuthRejectionIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(Options{URL: wsURL(srv), Token: "expired", UserID: "me"})
	defer c.Close()

	err := c.Dial(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.Status)
}

func TestDialSendsBearerHeader(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c := New(Options{URL: wsURL(srv), Token: "tok-123", UserID: "me"})
	require.NoError(t, c.Dial(context.Background()))
	c.Close()

	assert.Equal(t, "Bearer tok-123", gotAuth.Load())
}

func TestRedialStopsOnAuthRejection(t *testing.T) {
	var dials int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&dials, 1) == 1 {
			conn, err := testUpgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			conn.Close() // simulate the server revoking the session
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	log := &stateLog{}
	c := New(Options{URL: wsURL(srv), Token: "revoked-later", UserID: "me", OnStateChange: log.record})
	defer c.Close()

	require.NoError(t, c.Dial(context.Background()))

	assert.Eventually(t, func() bool {
		return log.last() == StateDisconnected
	}, 5*time.Second, 20*time.Millisecond, "an auth-rejected redial must give up")
	assert.True(t, log.has(StateReconnecting))
	assert.Equal(t, int32(2), atomic.LoadInt32(&dials), "exactly one redial attempt, never retried after the rejection")
}

func TestRedialRecoversAndRejoinsRooms(t *testing.T) {
	frames := make(chan domain.Envelope, 16)
	var conns int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		first := atomic.AddInt32(&conns, 1) == 1
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			env, err := domain.DecodeEnvelope(raw)
			if err != nil {
				continue
			}
			frames <- env
			if first && env.Type == domain.EventRoomJoin {
				// transient failure right after the join lands
				return
			}
		}
	}))
	defer srv.Close()

	log := &stateLog{}
	c := New(Options{URL: wsURL(srv), Token: "tok", UserID: "me", OnStateChange: log.record})
	defer c.Close()

	require.NoError(t, c.Dial(context.Background()))
	require.NoError(t, c.JoinRoom("drop-me"))

	var joins int
	deadline := time.After(10 * time.Second)
	for joins < 2 {
		select {
		case env := <-frames:
			if env.Type == domain.EventRoomJoin && env.OrderID == "drop-me" {
				joins++
			}
		case <-deadline:
			t.Fatalf("reconnect did not re-join the room, saw %d joins", joins)
		}
	}
	assert.True(t, log.has(StateReconnecting))
	assert.Equal(t, StateConnected, log.last())
}

func TestCloseCancelsReconnect(t *testing.T) {
	var dials int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&dials, 1)
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	log := &stateLog{}
	c := New(Options{URL: wsURL(srv), Token: "tok", UserID: "me", OnStateChange: log.record})

	require.NoError(t, c.Dial(context.Background()))
	require.Eventually(t, func() bool {
		return log.has(StateReconnecting)
	}, 5*time.Second, 10*time.Millisecond)

	attempts := atomic.LoadInt32(&dials)
	require.NoError(t, c.Close())

	assert.Eventually(t, func() bool {
		return log.last() == StateDisconnected
	}, 5*time.Second, 10*time.Millisecond, "teardown cancels the pending backoff")
	assert.Equal(t, attempts, atomic.LoadInt32(&dials), "no dial after Close")
}
