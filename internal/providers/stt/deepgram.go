package stt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/meetsense/internal/models"
	"github.com/yoockh/meetsense/internal/utils"
)

const DefaultEndpoint = "wss://api.deepgram.com/v1/listen"

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ErrNotConnected is returned by SendAudio when the chunk was dropped.
var ErrNotConnected = utils.E(utils.CodeUnavailable, "LiveClient.SendAudio", "recognition connection is not open, chunk dropped", nil)

type Options struct {
	Endpoint        string
	APIKey          string
	Language        string
	Model           string
	Diarize         bool
	Punctuate       bool
	ProfanityFilter bool
	InterimResults  bool
	EndpointingMs   int

	MaxRetries  int
	BackoffUnit time.Duration
}

func DefaultOptions() Options {
	return Options{
		Endpoint:       DefaultEndpoint,
		Language:       "en-US",
		Model:          "nova-2",
		Diarize:        true,
		Punctuate:      true,
		InterimResults: true,
		EndpointingMs:  300,
		MaxRetries:     3,
		BackoffUnit:    2 * time.Second,
	}
}

// URL builds the listen endpoint with the fixed query parameter set.
func (o Options) URL() (string, error) {
	u, err := url.Parse(o.Endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("language", o.Language)
	q.Set("model", o.Model)
	q.Set("diarize", strconv.FormatBool(o.Diarize))
	q.Set("punctuate", strconv.FormatBool(o.Punctuate))
	q.Set("profanity_filter", strconv.FormatBool(o.ProfanityFilter))
	q.Set("interim_results", strconv.FormatBool(o.InterimResults))
	q.Set("endpointing", strconv.Itoa(o.EndpointingMs))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type ClientOption func(*LiveClient)

func WithDialer(d *websocket.Dialer) ClientOption {
	return func(c *LiveClient) { c.dialer = d }
}

// WithAfter replaces the backoff timer.
func WithAfter(after func(time.Duration) <-chan time.Time) ClientOption {
	return func(c *LiveClient) { c.after = after }
}

func WithNow(now func() time.Time) ClientOption {
	return func(c *LiveClient) { c.now = now }
}

// LiveClient streams audio to the recognition backend over one websocket and
// reconnects with linear backoff after abnormal closes.
type LiveClient struct {
	opts   Options
	log    *logrus.Logger
	dialer *websocket.Dialer
	after  func(time.Duration) <-chan time.Time
	now    func() time.Time

	mu        sync.Mutex
	conn      *websocket.Conn
	state     State
	started   bool
	closing   bool
	firstOpen time.Time
	cancel    context.CancelFunc
	stop      chan struct{}
	done      chan struct{}

	writeMu sync.Mutex
}

func NewLiveClient(opts Options, log *logrus.Logger, copts ...ClientOption) *LiveClient {
	def := DefaultOptions()
	if opts.Endpoint == "" {
		opts.Endpoint = def.Endpoint
	}
	if opts.Language == "" {
		opts.Language = def.Language
	}
	if opts.Model == "" {
		opts.Model = def.Model
	}
	if opts.EndpointingMs <= 0 {
		opts.EndpointingMs = def.EndpointingMs
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = def.MaxRetries
	}
	if opts.BackoffUnit <= 0 {
		opts.BackoffUnit = def.BackoffUnit
	}
	if log == nil {
		log = logrus.New()
	}

	d := *websocket.DefaultDialer
	d.HandshakeTimeout = 10 * time.Second

	c := &LiveClient{
		opts:   opts,
		log:    log,
		dialer: &d,
		after:  time.After,
		now:    time.Now,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, o := range copts {
		o(c)
	}
	return c
}

func (c *LiveClient) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts the connection loop. Events and errors are delivered on the
// returned channels; both are closed when the client stops for good.
func (c *LiveClient) Connect(ctx context.Context) (<-chan models.RecognitionEvent, <-chan error) {
	const op = "LiveClient.Connect"

	events := make(chan models.RecognitionEvent, 64)
	errs := make(chan error, 16)

	c.mu.Lock()
	if c.started || c.closing {
		c.mu.Unlock()
		errs <- utils.E(utils.CodeFailedPrecondition, op, "client already used", nil)
		close(errs)
		close(events)
		return events, errs
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	go c.run(ctx, events, errs)
	return events, errs
}

// SendAudio forwards a chunk while connected. Otherwise the chunk is dropped.
func (c *LiveClient) SendAudio(chunk models.AudioChunk) error {
	c.mu.Lock()
	conn, st := c.conn, c.state
	c.mu.Unlock()

	if st != StateConnected || conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(c.now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.BinaryMessage, chunk.Data); err != nil {
		c.log.WithError(err).Debug("audio write failed, chunk dropped")
		return ErrNotConnected
	}
	return nil
}

// Disconnect closes with a normal closure code and suppresses reconnects.
// Calling it more than once is a no-op.
func (c *LiveClient) Disconnect() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	close(c.stop)
	conn, started, cancel := c.conn, c.started, c.cancel
	c.state = StateDisconnected
	c.mu.Unlock()

	var err error
	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended")
		err = conn.WriteControl(websocket.CloseMessage, msg, c.now().Add(time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			err = nil
		}
		_ = conn.Close()
	}
	if started {
		// unblocks a dial in flight
		cancel()
		<-c.done
	}
	return err
}

func (c *LiveClient) run(ctx context.Context, events chan<- models.RecognitionEvent, errs chan<- error) {
	const op = "LiveClient.run"

	defer func() {
		c.setState(StateDisconnected)
		close(events)
		close(errs)
		close(c.done)
	}()

	attempt := 0
	for {
		if !c.setStateUnlessClosing(StateConnecting) {
			return
		}

		var cause error
		conn, offset, err := c.dial(ctx)
		if err == nil {
			attempt = 0
			c.log.WithFields(logrus.Fields{"offset_ms": offset}).Info("recognition connection open")

			cause = c.read(ctx, conn, offset, events, errs)
			c.clearConn(conn)
			if c.stopped(ctx) {
				return
			}
			var ce *websocket.CloseError
			if errors.As(cause, &ce) && ce.Code == websocket.CloseNormalClosure {
				c.terminal(ctx, errs, utils.E(utils.CodeTerminalConnection, op, "recognition backend closed the stream", cause))
				return
			}
		} else {
			cause = err
		}
		if c.stopped(ctx) {
			return
		}
		cause = utils.E(utils.CodeTransientNetwork, op, "recognition connection dropped", cause)

		attempt++
		if attempt >= c.opts.MaxRetries {
			c.log.WithError(cause).WithField("attempt", attempt).Error("recognition connection lost, retry budget exhausted")
			c.terminal(ctx, errs, utils.E(utils.CodeTerminalConnection, op,
				fmt.Sprintf("connection lost after %d attempts", attempt), cause))
			return
		}

		delay := time.Duration(attempt) * c.opts.BackoffUnit
		c.setState(StateDisconnected)
		c.log.WithError(cause).WithFields(logrus.Fields{
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
		}).Warn("recognition connection dropped, reconnecting")

		select {
		case <-c.after(delay):
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *LiveClient) dial(ctx context.Context) (*websocket.Conn, int64, error) {
	u, err := c.opts.URL()
	if err != nil {
		return nil, 0, err
	}
	header := http.Header{}
	if c.opts.APIKey != "" {
		header.Set("Authorization", "Token "+c.opts.APIKey)
	}

	conn, resp, err := c.dialer.DialContext(ctx, u, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		_ = conn.Close()
		return nil, 0, errors.New("disconnected during dial")
	}
	now := c.now()
	if c.firstOpen.IsZero() {
		c.firstOpen = now
	}
	c.conn = conn
	c.state = StateConnected
	return conn, now.Sub(c.firstOpen).Milliseconds(), nil
}

func (c *LiveClient) read(ctx context.Context, conn *websocket.Conn, offset int64, events chan<- models.RecognitionEvent, errs chan<- error) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		ev, ok, perr := ParseMessage(data, offset, c.now())
		if perr != nil {
			c.log.WithError(perr).Warn("malformed recognition message")
			c.emit(errs, perr)
			continue
		}
		if !ok {
			continue
		}

		select {
		case events <- ev:
		case <-c.stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// emit never blocks the read path; a full error channel drops the
// (malformed message) error.
func (c *LiveClient) emit(errs chan<- error, err error) {
	select {
	case errs <- err:
	default:
		c.log.WithError(err).Warn("error channel full, dropping")
	}
}

// terminal waits for the consumer; the last error of a stream is never dropped.
func (c *LiveClient) terminal(ctx context.Context, errs chan<- error, err error) {
	select {
	case errs <- err:
	case <-c.stop:
	case <-ctx.Done():
	}
}

func (c *LiveClient) stopped(ctx context.Context) bool {
	select {
	case <-c.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (c *LiveClient) clearConn(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()
}

func (c *LiveClient) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *LiveClient) setStateUnlessClosing(s State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return false
	}
	c.state = s
	return true
}
