// Package engine drives a chat session: it appends turns, streams the
// assistant reply into a placeholder turn, and persists the result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/iksnae/chat-session/internal"
	"github.com/iksnae/chat-session/internal/request"
	"github.com/iksnae/chat-session/internal/store"
	"github.com/iksnae/chat-session/internal/transport"
)

// RequestBuilder turns history into a provider request
type RequestBuilder interface {
	Build(history []internal.Turn, settings internal.ProviderSettings) (*request.ChatRequest, error)
}

// EventStream is a live, cancellable sequence of stream events
type EventStream interface {
	Events() <-chan transport.Event
	Err() error
	Cancel()
}

// Streamer opens event streams
type Streamer interface {
	Open(ctx context.Context, req *request.ChatRequest, settings internal.ProviderSettings) (EventStream, error)
}

// Persister stores session snapshots
type Persister interface {
	LoadAll() []*internal.Session
	SaveAll(sessions []*internal.Session) error
}

// SettingsFunc resolves provider settings at dispatch time
type SettingsFunc func(ctx context.Context) (internal.ProviderSettings, error)

// TransportStreamer adapts a transport.Client to Streamer
type TransportStreamer struct {
	Client *transport.Client
}

// Open implements Streamer
func (t TransportStreamer) Open(ctx context.Context, req *request.ChatRequest, settings internal.ProviderSettings) (EventStream, error) {
	s, err := t.Client.Open(ctx, req, settings)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Options holds the engine's collaborators
type Options struct {
	Builder  RequestBuilder
	Streamer Streamer
	Store    Persister
	Settings SettingsFunc
}

// Engine owns the active session and the session list. Every mutation and
// the observer notification that follows it happen under mu, so folds never
// interleave and a stop never lands inside a fold.
type Engine struct {
	builder  RequestBuilder
	streamer Streamer
	store    Persister
	settings SettingsFunc
	dedup    *internal.Deduplicator

	mu              sync.Mutex
	session         *internal.Session
	sessions        []*internal.Session
	state           State
	streamingTurnID string
	generation      uint64
	cancel          context.CancelFunc
	observers       []observerEntry
	nextObserverID  int

	wg sync.WaitGroup
}

// New creates an engine with a fresh, empty active session
func New(opts Options) (*Engine, error) {
	switch {
	case opts.Builder == nil:
		return nil, errors.New("engine: builder is required")
	case opts.Streamer == nil:
		return nil, errors.New("engine: streamer is required")
	case opts.Store == nil:
		return nil, errors.New("engine: store is required")
	case opts.Settings == nil:
		return nil, errors.New("engine: settings func is required")
	}

	return &Engine{
		builder:  opts.Builder,
		streamer: opts.Streamer,
		store:    opts.Store,
		settings: opts.Settings,
		dedup:    internal.NewDeduplicator(),
		session:  internal.NewSession(),
		sessions: []*internal.Session{},
	}, nil
}

// Restore replaces the in-memory session list with what the store holds
func (e *Engine) Restore() int {
	loaded := e.store.LoadAll()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessions = loaded
	e.notifyLocked(Event{Kind: EventSessionsChanged, State: e.state})
	return len(loaded)
}

// Subscribe registers an observer and returns a func that removes it
func (e *Engine) Subscribe(fn Observer) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextObserverID
	e.nextObserverID++
	e.observers = append(e.observers, observerEntry{id: id, fn: fn})

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, o := range e.observers {
			if o.id == id {
				e.observers = append(e.observers[:i:i], e.observers[i+1:]...)
				return
			}
		}
	}
}

// SendMessage appends a user turn and an empty assistant placeholder, then
// streams the reply into the placeholder in the background. It does nothing
// and returns false when there is nothing to send or a stream is in flight.
func (e *Engine) SendMessage(text string, attachments []internal.Attachment) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.streamingTurnID != "" || e.state != StateIdle {
		return false
	}
	if strings.TrimSpace(text) == "" && len(attachments) == 0 {
		return false
	}

	user := internal.NewTurn(internal.RoleUser, text)
	for _, a := range attachments {
		user.Attachments = append(user.Attachments, a.Clone())
	}
	internal.AddTurn(e.session, user)
	e.notifyLocked(e.turnEvent(EventTurnAppended, user))

	history := make([]internal.Turn, len(e.session.Turns))
	for i, t := range e.session.Turns {
		history[i] = t.Clone()
	}

	placeholder := internal.NewTurn(internal.RoleAssistant, "")
	placeholder.IsStreaming = true
	internal.AddTurn(e.session, placeholder)

	ctx, cancel := context.WithCancel(context.Background())
	e.generation++
	gen := e.generation
	e.cancel = cancel
	e.streamingTurnID = placeholder.ID
	e.state = StateDispatching
	e.notifyLocked(e.turnEvent(EventTurnAppended, placeholder))

	e.wg.Add(1)
	go e.run(ctx, gen, history)
	return true
}

// StopGenerating cancels the in-flight stream and returns to Idle at once.
// Text already folded into the placeholder is kept and persisted.
func (e *Engine) StopGenerating() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.streamingTurnID == "" {
		return false
	}
	e.finalizeLocked(EventStreamStopped, nil, true)
	return true
}

// StartNewChat cancels any stream, files the current session into the list
// if it has turns, and makes a fresh session active
func (e *Engine) StartNewChat() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.switchToLocked(internal.NewSession())
}

// LoadSession makes the session with id active, filing the current one first
func (e *Engine) LoadSession(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.ID == id {
		return nil
	}
	target := e.findLocked(id)
	if target == nil {
		return fmt.Errorf("%w: %s", internal.ErrSessionNotFound, id)
	}
	e.switchToLocked(target)
	return nil
}

// DeleteSession removes a session. Deleting the active session cancels its
// stream and leaves a fresh session active.
func (e *Engine) DeleteSession(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var removed bool
	e.sessions, removed = e.dedup.Remove(e.sessions, id)
	active := e.session.ID == id
	if !removed && !active {
		return fmt.Errorf("%w: %s", internal.ErrSessionNotFound, id)
	}

	if active {
		if e.streamingTurnID != "" {
			e.finalizeLocked(EventStreamStopped, nil, false)
		}
		e.session = internal.NewSession()
		e.notifyLocked(Event{Kind: EventSessionChanged, SessionID: e.session.ID, State: e.state})
	}

	e.saveLocked()
	return nil
}

// RenameSession sets a custom title, which stops automatic title derivation
func (e *Engine) RenameSession(id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("title cannot be empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	target := e.findLocked(id)
	if target == nil {
		return fmt.Errorf("%w: %s", internal.ErrSessionNotFound, id)
	}
	target.Title = title
	target.Touch()

	if target == e.session && internal.TurnCount(target) == 0 {
		return nil
	}
	e.persistLocked(target)
	return nil
}

// ImportSession decodes an exported session and adds it to the list. A
// session whose ID is already known gets a new ID.
func (e *Engine) ImportSession(data []byte) (*internal.Session, error) {
	session, err := store.ImportOne(data)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.findLocked(session.ID) != nil {
		session.ID = uuid.NewString()
	}
	e.sessions = append(e.sessions, session)
	e.saveLocked()
	return session.Clone(), nil
}

// ExportSession encodes the session with id in the interchange format
func (e *Engine) ExportSession(id string) ([]byte, error) {
	e.mu.Lock()
	target := e.findLocked(id)
	var snapshot *internal.Session
	if target != nil {
		snapshot = target.Clone()
	}
	e.mu.Unlock()

	if snapshot == nil {
		return nil, fmt.Errorf("%w: %s", internal.ErrSessionNotFound, id)
	}
	return store.ExportOne(snapshot)
}

// Active returns a copy of the active session
func (e *Engine) Active() *internal.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone()
}

// Sessions returns copies of the stored sessions, most recently updated first
func (e *Engine) Sessions() []*internal.Session {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*internal.Session, len(e.sessions))
	for i, s := range e.sessions {
		out[i] = s.Clone()
	}
	return out
}

// State returns the current lifecycle state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// StreamingTurnID returns the ID of the placeholder being filled, or ""
func (e *Engine) StreamingTurnID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.streamingTurnID
}

// Wait blocks until every stream goroutine has exited
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Close stops any stream and waits for background work to finish
func (e *Engine) Close() {
	e.StopGenerating()
	e.Wait()
}

// run is the Dispatching→Streaming task for one placeholder
func (e *Engine) run(ctx context.Context, gen uint64, history []internal.Turn) {
	defer e.wg.Done()

	settings, err := e.settings(ctx)
	if err != nil {
		e.fail(gen, err)
		return
	}
	settings = settings.Clamped()

	req, err := e.builder.Build(history, settings)
	if err != nil {
		e.fail(gen, err)
		return
	}

	stream, err := e.streamer.Open(ctx, req, settings)
	if err != nil {
		e.fail(gen, err)
		return
	}
	defer stream.Cancel()

	if !e.markStreaming(gen) {
		return
	}

	for ev := range stream.Events() {
		current, done := e.fold(gen, ev)
		if !current || done {
			return
		}
	}

	if err := stream.Err(); err != nil {
		e.fail(gen, err)
		return
	}
	e.complete(gen)
}

func (e *Engine) markStreaming(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.generation || e.streamingTurnID == "" {
		return false
	}
	e.state = StateStreaming
	if turn := e.session.FindTurn(e.streamingTurnID); turn != nil {
		e.notifyLocked(e.turnEvent(EventStreamStarted, *turn))
	}
	return true
}

// fold applies one stream event to the placeholder. It reports whether gen is
// still the live stream and whether the stream is finished.
func (e *Engine) fold(gen uint64, ev transport.Event) (current, done bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.generation || e.streamingTurnID == "" {
		return false, false
	}
	turn := e.session.FindTurn(e.streamingTurnID)
	if turn == nil {
		e.finalizeLocked(EventStreamFailed, errors.New("streaming turn disappeared"), true)
		return true, true
	}

	if !ev.IsFinal || ev.Delta != "" || len(ev.Sources) > 0 || ev.Status != "" {
		turn.Content += ev.Delta
		if len(ev.Sources) > 0 {
			turn.Sources = append([]internal.Source(nil), ev.Sources...)
		}
		if ev.Status != "" {
			turn.Status = ev.Status
		}
		e.session.Touch()

		event := e.turnEvent(EventDelta, *turn)
		event.Delta = ev.Delta
		e.notifyLocked(event)
	}

	if ev.IsFinal {
		e.finalizeLocked(EventStreamFinished, nil, true)
		return true, true
	}
	return true, false
}

func (e *Engine) fail(gen uint64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.generation || e.streamingTurnID == "" {
		return
	}
	internal.LogWarn("Stream failed: %v", err)
	e.finalizeLocked(EventStreamFailed, err, true)
}

func (e *Engine) complete(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.generation || e.streamingTurnID == "" {
		return
	}
	e.finalizeLocked(EventStreamFinished, nil, true)
}

// finalizeLocked ends the current stream: the placeholder stops streaming,
// an error replaces its text, and the engine goes Idle. Bumping the
// generation turns any late events from the old stream into no-ops.
func (e *Engine) finalizeLocked(kind EventKind, err error, persist bool) {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.generation++

	var snapshot internal.Turn
	if turn := e.session.FindTurn(e.streamingTurnID); turn != nil {
		turn.IsStreaming = false
		turn.Status = ""
		if err != nil {
			turn.Content = internal.UserMessage(err)
		}
		snapshot = turn.Clone()
	}
	e.session.Touch()
	e.streamingTurnID = ""
	e.state = StateIdle

	if persist {
		e.persistLocked(e.session)
	}

	event := e.turnEvent(kind, snapshot)
	event.Err = err
	e.notifyLocked(event)
}

// switchToLocked cancels any stream, files the active session, and activates next
func (e *Engine) switchToLocked(next *internal.Session) {
	if e.streamingTurnID != "" {
		e.finalizeLocked(EventStreamStopped, nil, false)
	}
	if internal.TurnCount(e.session) > 0 {
		e.persistLocked(e.session)
	}
	e.session = next
	e.notifyLocked(Event{Kind: EventSessionChanged, SessionID: next.ID, State: e.state})
}

// persistLocked files session into the list and saves the whole list
func (e *Engine) persistLocked(session *internal.Session) {
	e.sessions = e.dedup.Upsert(e.sessions, session)
	e.saveLocked()
}

// saveLocked hands a snapshot of the list to the store. Failures are logged;
// in-memory state stays authoritative.
func (e *Engine) saveLocked() {
	sort.SliceStable(e.sessions, func(i, j int) bool {
		return e.sessions[i].UpdatedAt.After(e.sessions[j].UpdatedAt)
	})

	snapshot := make([]*internal.Session, len(e.sessions))
	for i, s := range e.sessions {
		snapshot[i] = s.Clone()
	}
	if err := e.store.SaveAll(snapshot); err != nil {
		internal.LogError("Failed to persist sessions: %v", err)
	}
	e.notifyLocked(Event{Kind: EventSessionsChanged, SessionID: e.session.ID, State: e.state})
}

func (e *Engine) findLocked(id string) *internal.Session {
	if e.session.ID == id {
		return e.session
	}
	for _, s := range e.sessions {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func (e *Engine) turnEvent(kind EventKind, turn internal.Turn) Event {
	return Event{
		Kind:      kind,
		SessionID: e.session.ID,
		TurnID:    turn.ID,
		Turn:      turn.Clone(),
		State:     e.state,
	}
}

func (e *Engine) notifyLocked(ev Event) {
	for _, o := range e.observers {
		o.fn(ev)
	}
}
