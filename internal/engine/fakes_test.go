package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/iksnae/chat-session/internal"
	"github.com/iksnae/chat-session/internal/request"
	"github.com/iksnae/chat-session/internal/transport"
)

// fakeBuilder records the history it was asked to build
type fakeBuilder struct {
	mu        sync.Mutex
	histories [][]internal.Turn
	settings  internal.ProviderSettings
	err       error
}

func (b *fakeBuilder) Build(history []internal.Turn, settings internal.ProviderSettings) (*request.ChatRequest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.histories = append(b.histories, history)
	b.settings = settings
	if b.err != nil {
		return nil, b.err
	}
	return &request.ChatRequest{Model: settings.Model, Stream: true}, nil
}

func (b *fakeBuilder) lastHistory() []internal.Turn {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.histories) == 0 {
		return nil
	}
	return b.histories[len(b.histories)-1]
}

// fakeStream forwards events from feed until the feed closes or the
// stream's context ends, like the real transport
type fakeStream struct {
	events    chan transport.Event
	cancel    context.CancelFunc
	err       error
	cancelled chan struct{}
	once      sync.Once
}

func (s *fakeStream) Events() <-chan transport.Event { return s.events }
func (s *fakeStream) Err() error                     { return s.err }
func (s *fakeStream) Cancel() {
	s.once.Do(func() { close(s.cancelled) })
	s.cancel()
}

// fakeStreamer hands out streams fed by the test
type fakeStreamer struct {
	mu      sync.Mutex
	opened  int
	openErr error
	feeds   chan chan transport.Event
	endErr  error
	streams []*fakeStream
}

func newFakeStreamer() *fakeStreamer {
	return &fakeStreamer{feeds: make(chan chan transport.Event, 8)}
}

// script queues a feed for the next Open and returns it
func (f *fakeStreamer) script() chan transport.Event {
	feed := make(chan transport.Event, 16)
	f.feeds <- feed
	return feed
}

func (f *fakeStreamer) Open(ctx context.Context, req *request.ChatRequest, settings internal.ProviderSettings) (EventStream, error) {
	f.mu.Lock()
	f.opened++
	openErr, endErr := f.openErr, f.endErr
	f.mu.Unlock()

	if openErr != nil {
		return nil, openErr
	}

	var feed chan transport.Event
	select {
	case feed = <-f.feeds:
	default:
		return nil, errors.New("fake streamer: no scripted stream")
	}

	streamCtx, cancel := context.WithCancel(ctx)
	s := &fakeStream{
		events:    make(chan transport.Event),
		cancel:    cancel,
		cancelled: make(chan struct{}),
	}
	f.mu.Lock()
	f.streams = append(f.streams, s)
	f.mu.Unlock()

	go func() {
		defer close(s.events)
		for {
			select {
			case ev, ok := <-feed:
				if !ok {
					if streamCtx.Err() == nil {
						s.err = endErr
					}
					return
				}
				select {
				case s.events <- ev:
				case <-streamCtx.Done():
					return
				}
			case <-streamCtx.Done():
				return
			}
		}
	}()
	return s, nil
}

func (f *fakeStreamer) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

// memStore keeps snapshots in memory
type memStore struct {
	mu      sync.Mutex
	initial []*internal.Session
	saves   [][]*internal.Session
	saveErr error
}

func (m *memStore) LoadAll() []*internal.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*internal.Session, len(m.initial))
	for i, s := range m.initial {
		out[i] = s.Clone()
	}
	return out
}

func (m *memStore) SaveAll(sessions []*internal.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, sessions)
	return m.saveErr
}

func (m *memStore) last() []*internal.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saves) == 0 {
		return nil
	}
	return m.saves[len(m.saves)-1]
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saves)
}

func staticSettings(key string) SettingsFunc {
	return func(ctx context.Context) (internal.ProviderSettings, error) {
		return internal.ProviderSettings{APIKey: key, Model: "test-model", Temperature: 5, MaxTokens: 0}, nil
	}
}

// recorder collects events and lets a test wait for a kind
type recorder struct {
	mu     sync.Mutex
	events []Event
	notify chan Event
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan Event, 256)}
}

func (r *recorder) observe(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	select {
	case r.notify <- ev:
	default:
	}
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
