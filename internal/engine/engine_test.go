package engine

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/iksnae/chat-session/internal"
	"github.com/iksnae/chat-session/internal/transport"
)

type harness struct {
	eng      *Engine
	builder  *fakeBuilder
	streamer *fakeStreamer
	store    *memStore
	rec      *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		builder:  &fakeBuilder{},
		streamer: newFakeStreamer(),
		store:    &memStore{},
		rec:      newRecorder(),
	}
	eng, err := New(Options{
		Builder:  h.builder,
		Streamer: h.streamer,
		Store:    h.store,
		Settings: staticSettings("sk-test"),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.eng = eng
	unsubscribe := eng.Subscribe(h.rec.observe)
	t.Cleanup(func() {
		unsubscribe()
		eng.Close()
	})
	return h
}

// waitFor blocks until an event of kind arrives
func (h *harness) waitFor(t *testing.T, kind EventKind) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-h.rec.notify:
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %v; saw %v", kind, h.rec.kinds())
			return Event{}
		}
	}
}

func delta(s string) transport.Event { return transport.Event{Delta: s} }

func TestNew_RequiresCollaborators(t *testing.T) {
	full := Options{
		Builder:  &fakeBuilder{},
		Streamer: newFakeStreamer(),
		Store:    &memStore{},
		Settings: staticSettings("k"),
	}
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"no builder", func(o *Options) { o.Builder = nil }},
		{"no streamer", func(o *Options) { o.Streamer = nil }},
		{"no store", func(o *Options) { o.Store = nil }},
		{"no settings", func(o *Options) { o.Settings = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := full
			tt.mutate(&opts)
			if _, err := New(opts); err == nil {
				t.Error("New() should fail")
			}
		})
	}
}

func TestEngine_SendMessage_StreamsReply(t *testing.T) {
	h := newHarness(t)
	feed := h.streamer.script()
	feed <- delta("Hi")
	feed <- delta(" there")
	feed <- transport.Event{IsFinal: true}

	if !h.eng.SendMessage("Hello", nil) {
		t.Fatal("SendMessage() = false, want true")
	}
	h.waitFor(t, EventStreamFinished)
	h.eng.Wait()

	active := h.eng.Active()
	if len(active.Turns) != 2 {
		t.Fatalf("active has %d turns, want 2", len(active.Turns))
	}
	user, reply := active.Turns[0], active.Turns[1]
	if user.Role != internal.RoleUser || user.Content != "Hello" {
		t.Errorf("user turn = %+v", user)
	}
	if reply.Role != internal.RoleAssistant || reply.Content != "Hi there" {
		t.Errorf("reply = %q, want %q", reply.Content, "Hi there")
	}
	if reply.IsStreaming {
		t.Error("reply still marked streaming")
	}
	if active.Title != "Hello" {
		t.Errorf("Title = %q, want %q", active.Title, "Hello")
	}
	if h.eng.State() != StateIdle || h.eng.StreamingTurnID() != "" {
		t.Errorf("state = %v, streaming turn %q; want idle", h.eng.State(), h.eng.StreamingTurnID())
	}

	saved := h.store.last()
	if len(saved) != 1 || saved[0].ID != active.ID || saved[0].Turns[1].Content != "Hi there" {
		t.Errorf("persisted = %+v", saved)
	}
	if sessions := h.eng.Sessions(); len(sessions) != 1 || sessions[0].ID != active.ID {
		t.Errorf("Sessions() = %v, want the active session", sessions)
	}
}

func TestEngine_SendMessage_HistoryAndSettings(t *testing.T) {
	h := newHarness(t)
	feed := h.streamer.script()
	close(feed)

	h.eng.SendMessage("Hello", nil)
	h.waitFor(t, EventStreamFinished)

	history := h.builder.lastHistory()
	if len(history) != 1 || history[0].Content != "Hello" || history[0].Role != internal.RoleUser {
		t.Errorf("history = %+v, want only the user turn", history)
	}
	if h.builder.settings.Temperature != internal.MaxTemperature || h.builder.settings.MaxTokens != internal.DefaultMaxTokens {
		t.Errorf("settings not clamped: %+v", h.builder.settings)
	}
}

func TestEngine_SendMessage_EventOrder(t *testing.T) {
	h := newHarness(t)
	feed := h.streamer.script()
	feed <- delta("A")
	feed <- delta("B")
	close(feed)

	h.eng.SendMessage("go", nil)
	h.waitFor(t, EventStreamFinished)

	var deltas []string
	var got []EventKind
	for _, ev := range h.rec.all() {
		if ev.Kind == EventDelta {
			deltas = append(deltas, ev.Delta)
			if !ev.Turn.IsStreaming {
				t.Error("delta event turn should be streaming")
			}
		}
		if ev.Kind != EventSessionsChanged {
			got = append(got, ev.Kind)
		}
	}
	want := []EventKind{EventTurnAppended, EventTurnAppended, EventStreamStarted, EventDelta, EventDelta, EventStreamFinished}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %v, want %v", i, got[i], want[i])
		}
	}
	if strings.Join(deltas, "") != "AB" {
		t.Errorf("deltas = %v", deltas)
	}
}

func TestEngine_SendMessage_DoneFrameIsNotADelta(t *testing.T) {
	tests := []struct {
		name       string
		final      transport.Event
		wantDeltas []string
	}{
		{"empty terminal event", transport.Event{IsFinal: true}, []string{"A"}},
		{"terminal event with text", transport.Event{Delta: "B", IsFinal: true}, []string{"A", "B"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			feed := h.streamer.script()
			feed <- delta("A")
			feed <- tt.final

			h.eng.SendMessage("go", nil)
			h.waitFor(t, EventStreamFinished)

			var deltas []string
			for _, ev := range h.rec.all() {
				if ev.Kind == EventDelta {
					deltas = append(deltas, ev.Delta)
				}
			}
			if strings.Join(deltas, "|") != strings.Join(tt.wantDeltas, "|") {
				t.Errorf("delta events = %q, want %q", deltas, tt.wantDeltas)
			}
		})
	}
}

func TestEngine_SendMessage_NoOps(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"spaces", "   "},
		{"newlines and tabs", "\n\t \n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if h.eng.SendMessage(tt.text, nil) {
				t.Error("SendMessage() = true, want false")
			}
			if n := len(h.eng.Active().Turns); n != 0 {
				t.Errorf("active has %d turns, want 0", n)
			}
			if h.streamer.openCount() != 0 {
				t.Error("stream opened for an empty message")
			}
		})
	}
}

func TestEngine_SendMessage_AttachmentOnly(t *testing.T) {
	h := newHarness(t)
	close(h.streamer.script())

	att := internal.NewAttachment("notes.txt", []byte("notes"))
	if !h.eng.SendMessage("", []internal.Attachment{att}) {
		t.Fatal("SendMessage() with only an attachment = false, want true")
	}
	h.waitFor(t, EventStreamFinished)

	turn := h.eng.Active().Turns[0]
	if len(turn.Attachments) != 1 || turn.Attachments[0].Name != "notes.txt" {
		t.Errorf("attachments = %+v", turn.Attachments)
	}
}

func TestEngine_SendMessage_IgnoredWhileStreaming(t *testing.T) {
	h := newHarness(t)
	feed := h.streamer.script()
	feed <- delta("partial")

	h.eng.SendMessage("first", nil)
	h.waitFor(t, EventDelta)

	if h.eng.SendMessage("second", nil) {
		t.Error("SendMessage() while streaming = true, want false")
	}
	if n := len(h.eng.Active().Turns); n != 2 {
		t.Errorf("active has %d turns, want 2", n)
	}
	if h.eng.State() != StateStreaming {
		t.Errorf("State() = %v, want streaming", h.eng.State())
	}

	close(feed)
	h.waitFor(t, EventStreamFinished)
	if h.streamer.openCount() != 1 {
		t.Errorf("opened %d streams, want 1", h.streamer.openCount())
	}
}

func TestEngine_StopGenerating_KeepsFoldedText(t *testing.T) {
	h := newHarness(t)
	feed := h.streamer.script()
	feed <- delta("Hel")

	h.eng.SendMessage("Hello", nil)
	h.waitFor(t, EventDelta)

	if !h.eng.StopGenerating() {
		t.Fatal("StopGenerating() = false, want true")
	}
	// Stop is synchronous: the engine is idle before it returns
	if h.eng.State() != StateIdle || h.eng.StreamingTurnID() != "" {
		t.Errorf("after stop: state %v, streaming turn %q", h.eng.State(), h.eng.StreamingTurnID())
	}

	// Late events from the cancelled stream must not land
	feed <- delta("lo")
	h.eng.Wait()

	reply := h.eng.Active().Turns[1]
	if reply.Content != "Hel" || reply.IsStreaming {
		t.Errorf("reply = %q streaming=%v, want %q not streaming", reply.Content, reply.IsStreaming, "Hel")
	}
	if saved := h.store.last(); len(saved) != 1 || saved[0].Turns[1].Content != "Hel" {
		t.Errorf("persisted = %+v", saved)
	}

	select {
	case <-h.streamer.streams[0].cancelled:
	default:
		t.Error("stream was not cancelled")
	}

	if h.eng.StopGenerating() {
		t.Error("second StopGenerating() = true, want false")
	}
}

func TestEngine_StopGenerating_DuringDispatch(t *testing.T) {
	h := newHarness(t)
	// Stop races the failing open; either outcome must leave the engine idle
	h.streamer.openErr = errors.New("unreachable")

	h.eng.SendMessage("Hello", nil)
	h.eng.StopGenerating()
	h.eng.Wait()

	reply := h.eng.Active().Turns[1]
	if reply.IsStreaming {
		t.Error("reply still streaming after stop")
	}
	if reply.Content != "" && !strings.HasPrefix(reply.Content, "Error:") {
		t.Errorf("reply = %q", reply.Content)
	}
	if h.eng.State() != StateIdle {
		t.Errorf("State() = %v, want idle", h.eng.State())
	}
}

func TestEngine_TransportError(t *testing.T) {
	h := newHarness(t)
	h.streamer.openErr = &internal.TransportError{StatusCode: 401, Body: "unauthorized"}

	h.eng.SendMessage("Hello", nil)
	ev := h.waitFor(t, EventStreamFailed)
	h.eng.Wait()

	var transportErr *internal.TransportError
	if !errors.As(ev.Err, &transportErr) {
		t.Errorf("event error = %v, want TransportError", ev.Err)
	}

	reply := h.eng.Active().Turns[1]
	if !strings.HasPrefix(reply.Content, "Error:") || !strings.Contains(reply.Content, "401") {
		t.Errorf("reply = %q, want an error mentioning 401", reply.Content)
	}
	if reply.IsStreaming || h.eng.State() != StateIdle {
		t.Error("engine did not return to idle")
	}
	if saved := h.store.last(); len(saved) != 1 || !strings.Contains(saved[0].Turns[1].Content, "401") {
		t.Errorf("persisted = %+v", saved)
	}
}

func TestEngine_StreamErrorAfterDeltas(t *testing.T) {
	h := newHarness(t)
	h.streamer.endErr = &internal.TransportError{Err: internal.ErrStreamIdle}
	feed := h.streamer.script()
	feed <- delta("partial")
	close(feed)

	h.eng.SendMessage("Hello", nil)
	h.waitFor(t, EventStreamFailed)

	reply := h.eng.Active().Turns[1]
	if !strings.Contains(reply.Content, "stopped sending") {
		t.Errorf("reply = %q, want the idle message", reply.Content)
	}
}

func TestEngine_BuildError(t *testing.T) {
	h := newHarness(t)
	h.builder.err = &internal.ConfigurationError{Field: "api key", Reason: "is not set"}

	h.eng.SendMessage("Hello", nil)
	h.waitFor(t, EventStreamFailed)

	if h.streamer.openCount() != 0 {
		t.Error("transport used despite a build error")
	}
	if reply := h.eng.Active().Turns[1]; !strings.Contains(reply.Content, "api key is not set") {
		t.Errorf("reply = %q", reply.Content)
	}
}

func TestEngine_SourcesAndStatus(t *testing.T) {
	h := newHarness(t)
	feed := h.streamer.script()
	src := internal.NewSource("Go", "https://go.dev", "")
	feed <- transport.Event{Status: "Searching"}
	feed <- transport.Event{Delta: "Answer", Sources: []internal.Source{src}}
	feed <- transport.Event{Delta: "."}

	h.eng.SendMessage("q", nil)
	first := h.waitFor(t, EventDelta)
	if first.Turn.Status != "Searching" {
		t.Errorf("status after first event = %q", first.Turn.Status)
	}
	h.waitFor(t, EventDelta)
	third := h.waitFor(t, EventDelta)
	if len(third.Turn.Sources) != 1 || third.Turn.Sources[0].URL != "https://go.dev" {
		t.Errorf("sources = %+v, want kept when a later event has none", third.Turn.Sources)
	}

	close(feed)
	h.waitFor(t, EventStreamFinished)
	reply := h.eng.Active().Turns[1]
	if reply.Content != "Answer." || reply.Status != "" || len(reply.Sources) != 1 {
		t.Errorf("reply = %+v", reply)
	}
}

func TestEngine_StartNewChat(t *testing.T) {
	h := newHarness(t)
	feed := h.streamer.script()
	feed <- delta("Hel")

	h.eng.SendMessage("Hello", nil)
	h.waitFor(t, EventDelta)
	old := h.eng.Active()

	h.eng.StartNewChat()
	h.eng.Wait()

	if h.eng.State() != StateIdle {
		t.Errorf("State() = %v, want idle", h.eng.State())
	}
	active := h.eng.Active()
	if active.ID == old.ID || len(active.Turns) != 0 || active.Title != internal.DefaultTitle {
		t.Errorf("active = %+v, want a fresh session", active)
	}

	sessions := h.eng.Sessions()
	if len(sessions) != 1 || sessions[0].ID != old.ID {
		t.Fatalf("Sessions() = %v, want the old session filed", sessions)
	}
	if reply := sessions[0].Turns[1]; reply.Content != "Hel" || reply.IsStreaming {
		t.Errorf("filed reply = %+v", reply)
	}

	// An empty session is not filed
	h.eng.StartNewChat()
	if n := len(h.eng.Sessions()); n != 1 {
		t.Errorf("Sessions() has %d entries, want 1", n)
	}
}

func TestEngine_LoadSession(t *testing.T) {
	h := newHarness(t)
	stored := internal.CreateTestSession("stored")
	h.store.initial = []*internal.Session{stored}
	if n := h.eng.Restore(); n != 1 {
		t.Fatalf("Restore() = %d, want 1", n)
	}

	feed := h.streamer.script()
	feed <- delta("x")
	h.eng.SendMessage("Hello", nil)
	h.waitFor(t, EventDelta)
	current := h.eng.Active().ID

	if err := h.eng.LoadSession("stored"); err != nil {
		t.Fatalf("LoadSession() error = %v", err)
	}
	h.eng.Wait()

	if h.eng.Active().ID != "stored" {
		t.Errorf("active = %s, want stored", h.eng.Active().ID)
	}
	if h.eng.State() != StateIdle {
		t.Errorf("State() = %v, want idle", h.eng.State())
	}
	found := false
	for _, s := range h.eng.Sessions() {
		if s.ID == current {
			found = true
			if s.Turns[1].IsStreaming {
				t.Error("switched-away session still streaming")
			}
		}
	}
	if !found {
		t.Error("switched-away session was not filed")
	}

	if err := h.eng.LoadSession("missing"); !errors.Is(err, internal.ErrSessionNotFound) {
		t.Errorf("LoadSession(missing) error = %v, want ErrSessionNotFound", err)
	}
	if err := h.eng.LoadSession("stored"); err != nil {
		t.Errorf("LoadSession(active) error = %v, want nil", err)
	}
}

func TestEngine_LoadedSessionContinues(t *testing.T) {
	h := newHarness(t)
	h.store.initial = []*internal.Session{internal.CreateTestSession("stored")}
	h.eng.Restore()
	if err := h.eng.LoadSession("stored"); err != nil {
		t.Fatal(err)
	}

	close(h.streamer.script())
	h.eng.SendMessage("And then?", nil)
	h.waitFor(t, EventStreamFinished)

	if n := len(h.builder.lastHistory()); n != 3 {
		t.Errorf("history has %d turns, want the 2 stored plus the new one", n)
	}
	if title := h.eng.Active().Title; title != "Test Conversation" {
		t.Errorf("Title = %q, want existing title kept", title)
	}
}

func TestEngine_DeleteSession(t *testing.T) {
	h := newHarness(t)
	h.store.initial = []*internal.Session{internal.CreateTestSession("a"), internal.CreateTestSession("b")}
	h.eng.Restore()

	if err := h.eng.DeleteSession("a"); err != nil {
		t.Fatalf("DeleteSession(a) error = %v", err)
	}
	if sessions := h.eng.Sessions(); len(sessions) != 1 || sessions[0].ID != "b" {
		t.Errorf("Sessions() = %v, want [b]", sessions)
	}
	if saved := h.store.last(); len(saved) != 1 || saved[0].ID != "b" {
		t.Errorf("persisted = %v, want [b]", saved)
	}

	if err := h.eng.DeleteSession("a"); !errors.Is(err, internal.ErrSessionNotFound) {
		t.Errorf("DeleteSession(a) again error = %v, want ErrSessionNotFound", err)
	}
}

func TestEngine_DeleteActiveSession(t *testing.T) {
	h := newHarness(t)
	feed := h.streamer.script()
	feed <- delta("x")
	h.eng.SendMessage("Hello", nil)
	h.waitFor(t, EventDelta)
	active := h.eng.Active().ID

	if err := h.eng.DeleteSession(active); err != nil {
		t.Fatalf("DeleteSession(active) error = %v", err)
	}
	h.eng.Wait()

	if h.eng.Active().ID == active || len(h.eng.Active().Turns) != 0 {
		t.Error("deleting the active session should leave a fresh one active")
	}
	if h.eng.State() != StateIdle {
		t.Errorf("State() = %v, want idle", h.eng.State())
	}
	for _, s := range h.eng.Sessions() {
		if s.ID == active {
			t.Error("deleted session is still listed")
		}
	}
}

func TestEngine_RenameSession(t *testing.T) {
	h := newHarness(t)
	h.store.initial = []*internal.Session{internal.CreateTestSession("a")}
	h.eng.Restore()

	if err := h.eng.RenameSession("a", "  Renamed  "); err != nil {
		t.Fatalf("RenameSession() error = %v", err)
	}
	if got := h.eng.Sessions()[0].Title; got != "Renamed" {
		t.Errorf("Title = %q, want Renamed", got)
	}
	if saved := h.store.last(); len(saved) != 1 || saved[0].Title != "Renamed" {
		t.Errorf("persisted = %v", saved)
	}

	if err := h.eng.RenameSession("a", " "); err == nil {
		t.Error("RenameSession() with blank title should fail")
	}
	if err := h.eng.RenameSession("missing", "x"); !errors.Is(err, internal.ErrSessionNotFound) {
		t.Errorf("RenameSession(missing) error = %v", err)
	}

	// Renaming the empty active session keeps the name for its first message
	saves := h.store.saveCount()
	if err := h.eng.RenameSession(h.eng.Active().ID, "Planned"); err != nil {
		t.Fatal(err)
	}
	if h.store.saveCount() != saves {
		t.Error("empty active session should not be persisted by a rename")
	}
	close(h.streamer.script())
	h.eng.SendMessage("Hello", nil)
	h.waitFor(t, EventStreamFinished)
	if got := h.eng.Active().Title; got != "Planned" {
		t.Errorf("Title = %q, want custom title kept", got)
	}
}

func TestEngine_ImportExport(t *testing.T) {
	h := newHarness(t)
	h.store.initial = []*internal.Session{internal.CreateTestSession("a")}
	h.eng.Restore()

	data, err := h.eng.ExportSession("a")
	if err != nil {
		t.Fatalf("ExportSession() error = %v", err)
	}

	// Same ID already present: the import gets a new one
	imported, err := h.eng.ImportSession(data)
	if err != nil {
		t.Fatalf("ImportSession() error = %v", err)
	}
	if imported.ID == "a" {
		t.Error("colliding import kept its ID")
	}
	if imported.Title != "Test Conversation" || len(imported.Turns) != 2 {
		t.Errorf("imported = %+v", imported)
	}
	if n := len(h.eng.Sessions()); n != 2 {
		t.Errorf("Sessions() has %d entries, want 2", n)
	}

	if _, err := h.eng.ExportSession("missing"); !errors.Is(err, internal.ErrSessionNotFound) {
		t.Errorf("ExportSession(missing) error = %v", err)
	}
	if _, err := h.eng.ImportSession([]byte("not json")); err == nil {
		t.Error("ImportSession() of garbage should fail")
	}
}

func TestEngine_SaveFailureKeepsMemory(t *testing.T) {
	h := newHarness(t)
	h.store.saveErr = &internal.PersistenceError{Path: "x", Op: "write", Err: errors.New("disk full")}
	close(h.streamer.script())

	h.eng.SendMessage("Hello", nil)
	h.waitFor(t, EventStreamFinished)

	if n := len(h.eng.Sessions()); n != 1 {
		t.Errorf("Sessions() has %d entries, want 1 despite the failed save", n)
	}
}

func TestEngine_ReturnedSessionsAreCopies(t *testing.T) {
	h := newHarness(t)
	h.store.initial = []*internal.Session{internal.CreateTestSession("a")}
	h.eng.Restore()

	h.eng.Sessions()[0].Title = "mutated"
	h.eng.Active().Title = "mutated"
	if h.eng.Sessions()[0].Title == "mutated" || h.eng.Active().Title == "mutated" {
		t.Error("callers can mutate engine-owned sessions")
	}
}

func TestEngine_Unsubscribe(t *testing.T) {
	h := newHarness(t)
	count := 0
	unsubscribe := h.eng.Subscribe(func(Event) { count++ })
	h.eng.StartNewChat()
	if count != 1 {
		t.Fatalf("observer called %d times, want 1", count)
	}
	unsubscribe()
	h.eng.StartNewChat()
	if count != 1 {
		t.Errorf("observer called after unsubscribe")
	}
}

func TestStateAndEventKindStrings(t *testing.T) {
	if StateStreaming.String() != "streaming" || State(99).String() != "unknown" {
		t.Error("State.String() mismatch")
	}
	if EventDelta.String() != "delta" || EventKind(99).String() != "unknown" {
		t.Error("EventKind.String() mismatch")
	}
}
