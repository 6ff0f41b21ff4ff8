package cmd

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/iksnae/chat-session/internal"
	"github.com/iksnae/chat-session/internal/engine"
	"github.com/iksnae/chat-session/testutil"
)

func TestChatCommand(t *testing.T) {
	dir := newDataDir(t)
	withProvider(t, http.StatusOK, testutil.SSEBody("Hi", " there"))

	input := strings.Join([]string{
		"Hello",
		"/list",
		"/rename Greetings",
		"/new",
		"/bogus",
		"/quit",
	}, "\n") + "\n"

	out, err := runCommandWithInput(t, dir, input, "chat")
	if err != nil {
		t.Fatalf("chat error = %v", err)
	}
	for _, want := range []string{"Hi there", "Renamed to \"Greetings\"", "Started a new chat.", "unknown command /bogus"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\nGot:\n%s", want, out)
		}
	}

	sessions := loadSessions(t, dir)
	if len(sessions) != 1 || sessions[0].Title != "Greetings" {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestChatCommand_Resume(t *testing.T) {
	dir := newDataDir(t)
	seedSessions(t, dir, "resume-me")
	withProvider(t, http.StatusOK, testutil.SSEBody("ok"))

	out, err := runCommandWithInput(t, dir, "", "chat", "--resume", "resume-me")
	if err != nil {
		t.Fatalf("chat --resume error = %v", err)
	}
	if !strings.Contains(out, "Resumed \"Session 1\"") {
		t.Errorf("output missing resume notice:\n%s", out)
	}

	if _, err := runCommandWithInput(t, dir, "", "chat", "--resume", "missing"); err == nil {
		t.Error("resuming an unknown session should fail")
	}
}

func TestRepl_Attach(t *testing.T) {
	resetFlags(rootCmd)
	dataDir = newDataDir(t)
	defer func() { dataDir = "" }()

	a, err := loadApp()
	if err != nil {
		t.Fatal(err)
	}
	eng, err := a.newEngine()
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close()

	var out bytes.Buffer
	r := newRepl(eng, &out)
	defer r.close()

	if _, err := r.handle("/attach"); err == nil {
		t.Error("/attach without a path should fail")
	}
	if _, err := r.handle("/attach /no/such/file"); err == nil {
		t.Error("/attach of a missing file should fail")
	}

	path := testutil.WriteFile(t, testutil.CreateTempDir(t), "note.txt", []byte("hello"))
	if _, err := r.handle("/attach " + path); err != nil {
		t.Fatalf("/attach error = %v", err)
	}
	if len(r.pending) != 1 || r.pending[0].Name != "note.txt" {
		t.Errorf("pending = %+v", r.pending)
	}

	if quit, _ := r.handle("/help"); quit {
		t.Error("/help should not quit")
	}
	if !strings.Contains(out.String(), "/attach <path>") {
		t.Error("help text not printed")
	}
	if quit, _ := r.handle("/exit"); !quit {
		t.Error("/exit should quit")
	}
}

func TestRepl_List(t *testing.T) {
	resetFlags(rootCmd)
	dataDir = newDataDir(t)
	defer func() { dataDir = "" }()
	seedSessions(t, dataDir, "abcd1234", "efgh5678")

	a, err := loadApp()
	if err != nil {
		t.Fatal(err)
	}
	eng, err := a.newEngine()
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close()

	var out bytes.Buffer
	r := newRepl(eng, &out)
	defer r.close()

	if _, err := r.handle("/list"); err != nil {
		t.Fatalf("/list error = %v", err)
	}
	for _, want := range []string{"Found 2 session(s)", "abcd1234", "efgh5678"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("/list output missing %q:\n%s", want, out.String())
		}
	}
}

func TestStreamPrinter(t *testing.T) {
	var out bytes.Buffer
	p := newStreamPrinter(&out)

	p.observe(engine.Event{Kind: engine.EventTurnAppended, Turn: internal.Turn{Role: internal.RoleUser}})
	p.observe(engine.Event{Kind: engine.EventTurnAppended, Turn: internal.Turn{Role: internal.RoleAssistant}})
	p.observe(engine.Event{Kind: engine.EventDelta, Delta: "Hel"})
	p.observe(engine.Event{Kind: engine.EventDelta, Delta: "lo"})
	p.observe(engine.Event{
		Kind: engine.EventStreamFinished,
		Turn: internal.Turn{Sources: []internal.Source{{Title: "Go", URL: "https://go.dev"}}},
	})

	select {
	case ev := <-p.done:
		if ev.Kind != engine.EventStreamFinished {
			t.Errorf("done event = %v", ev.Kind)
		}
	default:
		t.Fatal("printer did not signal the end of the stream")
	}

	got := out.String()
	if !strings.Contains(got, "Assistant: ") || !strings.Contains(got, "Hello") || !strings.Contains(got, "[1] Go https://go.dev") {
		t.Errorf("printed:\n%s", got)
	}
	if strings.Count(got, "Assistant: ") != 1 {
		t.Error("user turn should not print an assistant label")
	}
}
