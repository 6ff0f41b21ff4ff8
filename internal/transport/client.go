// Package transport streams chat completions over a server-sent-event response.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"

	"github.com/iksnae/chat-session/internal"
	"github.com/iksnae/chat-session/internal/request"
)

// DefaultEndpoint is the OpenAI-compatible chat completion URL used when
// neither the client nor the settings name one
const DefaultEndpoint = "https://openrouter.ai/api/v1/chat/completions"

const (
	maxFrameSize    = 1024 * 1024 // 1MB
	readBufferSize  = 64 * 1024
	errorBodyLimit  = 512
	eventBufferSize = 16
)

// Client opens completion streams
type Client struct {
	httpClient  *http.Client
	endpoint    string
	idleTimeout time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its Timeout should be zero since
// a stream may stay open indefinitely.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithEndpoint sets the endpoint used when settings do not carry one
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithIdleTimeout ends a stream when no line arrives for d. Zero disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Client) { c.idleTimeout = d }
}

// WithResponseHeaderTimeout bounds the wait for response headers
func WithResponseHeaderTimeout(d time.Duration) Option {
	return func(c *Client) {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.ResponseHeaderTimeout = d
		c.httpClient = &http.Client{Transport: t}
	}
}

// NewClient creates a new Client
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
		endpoint:   DefaultEndpoint,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open POSTs req and returns a live stream of events. A missing key fails
// before any network call; a non-2xx status fails with a TransportError.
func (c *Client) Open(ctx context.Context, req *request.ChatRequest, settings internal.ProviderSettings) (*Stream, error) {
	if strings.TrimSpace(settings.APIKey) == "" {
		return nil, &internal.AuthenticationError{Reason: "no API key configured"}
	}

	body, err := sonic.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := settings.Endpoint
	if endpoint == "" {
		endpoint = c.endpoint
	}

	streamCtx, cancel := context.WithCancelCause(ctx)
	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		cancel(nil)
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+settings.APIKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	internal.LogDebug("Opening stream to %s (model %s, %d messages)", endpoint, req.Model, len(req.Messages))
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel(nil)
		return nil, &internal.TransportError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		_ = resp.Body.Close()
		cancel(nil)
		return nil, &internal.TransportError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(excerpt)),
		}
	}

	s := &Stream{
		events: make(chan Event, eventBufferSize),
		cancel: cancel,
	}
	go s.run(streamCtx, resp.Body, c.idleTimeout)
	return s, nil
}

// Stream is a cancellable, ordered sequence of events read lazily from the
// response body
type Stream struct {
	events  chan Event
	cancel  context.CancelCauseFunc
	err     error
	dropped atomic.Int64
}

// Events returns the event channel. It closes when the stream ends, fails or
// is cancelled.
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Err reports why the stream ended. It is only meaningful once Events is
// closed, and is nil for a clean end or a cancellation.
func (s *Stream) Err() error {
	return s.err
}

// Cancel closes the connection. Safe to call more than once.
func (s *Stream) Cancel() {
	s.cancel(context.Canceled)
}

// Dropped returns how many data frames failed to decode and were skipped
func (s *Stream) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Stream) run(ctx context.Context, body io.ReadCloser, idle time.Duration) {
	defer close(s.events)
	defer s.cancel(nil)
	defer body.Close()

	watch := &idleWatch{d: idle}
	if idle > 0 {
		watch.timer = time.AfterFunc(idle, func() { s.cancel(internal.ErrStreamIdle) })
		defer watch.timer.Stop()
	}

	reader := bufio.NewReaderSize(body, readBufferSize)
	for {
		line, tooLong, readErr := readFrame(reader)
		watch.resume()

		if tooLong {
			s.dropped.Add(1)
			internal.LogDebug("Dropping frame longer than %d bytes", maxFrameSize)
		} else if readErr == nil || line != "" {
			ev, kind, err := decodeFrame(line)
			switch kind {
			case frameDone:
				watch.pause()
				s.send(ctx, ev)
				return
			case frameInvalid:
				s.dropped.Add(1)
				internal.LogDebug("Dropping frame: %v", err)
			case frameEvent:
				watch.pause()
				if !s.send(ctx, ev) {
					s.finish(ctx, nil)
					return
				}
				watch.resume()
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				readErr = nil
			}
			s.finish(ctx, readErr)
			return
		}
	}
}

// readFrame returns the next line without its terminator. A line longer than
// maxFrameSize is consumed to its end and reported as tooLong with no content.
func readFrame(r *bufio.Reader) (line string, tooLong bool, err error) {
	var buf []byte
	for {
		chunk, readErr := r.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(chunk) > maxFrameSize {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if errors.Is(readErr, bufio.ErrBufferFull) {
			continue
		}
		if tooLong {
			return "", true, readErr
		}
		return strings.TrimRight(string(buf), "\r\n"), false, readErr
	}
}

// idleWatch pauses the idle timer while an event waits on a slow consumer
type idleWatch struct {
	timer *time.Timer
	d     time.Duration
}

func (w *idleWatch) pause() {
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *idleWatch) resume() {
	if w.timer != nil {
		w.timer.Reset(w.d)
	}
}

func (s *Stream) send(ctx context.Context, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// finish records the terminal error, if any. It runs before events is closed.
func (s *Stream) finish(ctx context.Context, readErr error) {
	if context.Cause(ctx) == internal.ErrStreamIdle {
		s.err = &internal.TransportError{Err: internal.ErrStreamIdle}
		return
	}
	if ctx.Err() != nil {
		return
	}
	if readErr != nil {
		s.err = &internal.TransportError{Err: readErr}
	}
	if n := s.dropped.Load(); n > 0 {
		internal.LogDebug("Stream ended with %d undecodable frame(s)", n)
	}
}
