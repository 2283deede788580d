package stt

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/meetsense/internal/models"
	"github.com/yoockh/meetsense/internal/utils"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type delayRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *delayRecorder) after(d time.Duration) <-chan time.Time {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func (r *delayRecorder) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func drain(t *testing.T, events <-chan models.RecognitionEvent, errs <-chan error) []error {
	t.Helper()
	var got []error
	timeout := time.After(5 * time.Second)
	for events != nil || errs != nil {
		select {
		case _, ok := <-events:
			if !ok {
				events = nil
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			got = append(got, err)
		case <-timeout:
			t.Fatal("client did not stop")
		}
	}
	return got
}

// dropServer accepts the first `accept` handshakes and kills each socket
// without a close frame (1006 on the client); later handshakes are refused.
func dropServer(accept int32) (*httptest.Server, *int32) {
	var hits int32
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		if n > accept {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.NetConn().Close()
	}))
	return srv, &hits
}

func TestReconnectBackoffThenTerminal(t *testing.T) {
	srv, hits := dropServer(1)
	defer srv.Close()

	rec := &delayRecorder{}
	c := NewLiveClient(Options{Endpoint: wsURL(srv)}, quietLogger(), WithAfter(rec.after))

	events, errs := c.Connect(context.Background())
	got := drain(t, events, errs)

	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.Delays())
	require.Len(t, got, 1)
	assert.True(t, utils.IsCode(got[0], utils.CodeTerminalConnection))
	var cause *utils.AppError
	require.True(t, errors.As(errors.Unwrap(got[0]), &cause), "last drop cause is kept")
	assert.Equal(t, utils.CodeTransientNetwork, cause.Code)
	assert.Equal(t, int32(3), atomic.LoadInt32(hits), "no reconnect after the budget is spent")
	assert.Equal(t, StateDisconnected, c.State())
}

func TestSuccessfulOpenResetsAttempts(t *testing.T) {
	srv, _ := dropServer(2)
	defer srv.Close()

	rec := &delayRecorder{}
	c := NewLiveClient(Options{Endpoint: wsURL(srv)}, quietLogger(), WithAfter(rec.after))

	events, errs := c.Connect(context.Background())
	got := drain(t, events, errs)

	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 4 * time.Second}, rec.Delays())
	require.Len(t, got, 1)
	assert.True(t, utils.IsCode(got[0], utils.CodeTerminalConnection))
}

func TestStreamAndDisconnect(t *testing.T) {
	var (
		requests = make(chan *http.Request, 1)
		audio    = make(chan []byte, 1)
		closed   = make(chan int, 1)
	)
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests <- r.Clone(context.Background())
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Metadata"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(resultsMsg))

		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				if ce, ok := err.(*websocket.CloseError); ok {
					closed <- ce.Code
				}
				return
			}
			if mt == websocket.BinaryMessage {
				audio <- data
			}
		}
	}))
	defer srv.Close()

	c := NewLiveClient(Options{Endpoint: wsURL(srv), APIKey: "dg-key"}, quietLogger())
	assert.ErrorIs(t, c.SendAudio(models.AudioChunk{Data: []byte("early")}), ErrNotConnected)

	events, errs := c.Connect(context.Background())

	select {
	case err := <-errs:
		assert.True(t, utils.IsCode(err, utils.CodeMalformedMessage))
	case <-time.After(3 * time.Second):
		t.Fatal("expected malformed message error")
	}

	select {
	case ev := <-events:
		assert.Equal(t, "Hello everyone welcome", ev.Text)
		assert.Equal(t, 1, ev.SpeakerIndex)
	case <-time.After(3 * time.Second):
		t.Fatal("expected recognition event")
	}
	assert.Equal(t, StateConnected, c.State())
	req := <-requests
	assert.Equal(t, "Token dg-key", req.Header.Get("Authorization"))
	assert.Equal(t, "nova-2", req.URL.Query().Get("model"))
	assert.Equal(t, "300", req.URL.Query().Get("endpointing"))

	require.NoError(t, c.SendAudio(models.AudioChunk{Data: []byte{1, 2, 3}}))
	select {
	case b := <-audio:
		assert.Equal(t, []byte{1, 2, 3}, b)
	case <-time.After(3 * time.Second):
		t.Fatal("audio not forwarded")
	}

	require.NoError(t, c.Disconnect())
	require.NoError(t, c.Disconnect())
	assert.Equal(t, StateDisconnected, c.State())
	assert.Empty(t, drain(t, events, errs))

	select {
	case code := <-closed:
		assert.Equal(t, websocket.CloseNormalClosure, code)
	case <-time.After(3 * time.Second):
		t.Fatal("server never saw a close frame")
	}

	assert.ErrorIs(t, c.SendAudio(models.AudioChunk{Data: []byte("late")}), ErrNotConnected)
}

func TestDisconnectBeforeConnect(t *testing.T) {
	c := NewLiveClient(Options{Endpoint: "ws://127.0.0.1:1"}, quietLogger())
	require.NoError(t, c.Disconnect())

	events, errs := c.Connect(context.Background())
	got := drain(t, events, errs)
	require.Len(t, got, 1)
	assert.True(t, utils.IsCode(got[0], utils.CodeFailedPrecondition))
}

func TestTerminalErrorSurvivesFullErrorChannel(t *testing.T) {
	sent := make(chan struct{})
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 20; i++ {
			_ = conn.WriteMessage(websocket.TextMessage, []byte("garbage"))
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
		close(sent)
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	c := NewLiveClient(Options{Endpoint: wsURL(srv)}, quietLogger())
	events, errs := c.Connect(context.Background())

	select {
	case <-sent:
	case <-time.After(3 * time.Second):
		t.Fatal("server did not finish writing")
	}
	// let the reader overflow the error buffer before anything is consumed
	time.Sleep(300 * time.Millisecond)

	got := drain(t, events, errs)
	require.NotEmpty(t, got)
	terminal := 0
	for _, err := range got {
		if utils.IsCode(err, utils.CodeTerminalConnection) {
			terminal++
		}
	}
	assert.Equal(t, 1, terminal)
	assert.True(t, utils.IsCode(got[len(got)-1], utils.CodeTerminalConnection))
	assert.Equal(t, StateDisconnected, c.State())
}
