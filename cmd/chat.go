package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/iksnae/chat-session/internal"
	"github.com/iksnae/chat-session/internal/engine"
	"github.com/spf13/cobra"
)

var (
	chatResume string
)

var (
	youLabel       = color.New(color.FgGreen, color.Bold).SprintFunc()
	assistantLabel = color.New(color.FgCyan, color.Bold).SprintFunc()
	errorText      = color.New(color.FgRed).SprintFunc()
	dimText        = color.New(color.Faint).SprintFunc()
)

const chatHelp = `Commands:
  /new              start a new chat
  /list             list saved sessions
  /load <id>        switch to a saved session
  /delete <id>      delete a saved session
  /rename <title>   rename the current session
  /attach <path>    attach a file to the next message
  /help             show this help
  /quit             exit
Press Ctrl+C while a reply is streaming to stop it.`

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat",
	Long: `Start an interactive chat. Replies stream as they are generated and
every exchange is saved. Type /help for commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		eng, err := a.newEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		out := cmd.OutOrStdout()
		r := newRepl(eng, out)
		defer r.close()

		if chatResume != "" {
			if err := r.load(chatResume); err != nil {
				return err
			}
		}

		fmt.Fprintln(out, youLabel("💬 chat-session"))
		fmt.Fprintf(out, "Model: %s\n", assistantLabel(a.cfg.Model))
		fmt.Fprintln(out, dimText("Type a message and press Enter. /help for commands, /quit to exit."))
		fmt.Fprintln(out)

		return r.run(cmd.InOrStdin())
	},
}

// repl is the interactive loop around an engine
type repl struct {
	eng         *engine.Engine
	out         io.Writer
	printer     *streamPrinter
	unsubscribe func()
	pending     []internal.Attachment
	signals     chan os.Signal
}

func newRepl(eng *engine.Engine, out io.Writer) *repl {
	p := newStreamPrinter(out)
	r := &repl{
		eng:         eng,
		out:         out,
		printer:     p,
		unsubscribe: eng.Subscribe(p.observe),
		signals:     make(chan os.Signal, 1),
	}
	signal.Notify(r.signals, os.Interrupt)
	return r
}

func (r *repl) close() {
	signal.Stop(r.signals)
	r.unsubscribe()
}

func (r *repl) run(in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Fprint(r.out, youLabel("You: "))

		var line string
		select {
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(r.out)
				return nil
			}
			line = l
		case <-r.signals:
			fmt.Fprintln(r.out)
			return nil
		}

		quit, err := r.handle(line)
		if err != nil {
			fmt.Fprintln(r.out, errorText(err.Error()))
		}
		if quit {
			return nil
		}
	}
}

// handle processes one input line and reports whether the loop should end
func (r *repl) handle(line string) (bool, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		r.send(line)
		return false, nil
	}

	command, arg, _ := strings.Cut(trimmed, " ")
	arg = strings.TrimSpace(arg)

	switch command {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(r.out, chatHelp)
	case "/new":
		r.eng.StartNewChat()
		r.pending = nil
		fmt.Fprintln(r.out, dimText("Started a new chat."))
	case "/list":
		displaySessions(r.out, r.eng.Sessions())
	case "/load":
		return false, r.load(arg)
	case "/delete":
		session, err := findSession(r.eng.Sessions(), arg)
		if err != nil {
			return false, err
		}
		if err := r.eng.DeleteSession(session.ID); err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "%s\n", dimText(fmt.Sprintf("Deleted %q.", session.Title)))
	case "/rename":
		if err := r.eng.RenameSession(r.eng.Active().ID, arg); err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "%s\n", dimText(fmt.Sprintf("Renamed to %q.", arg)))
	case "/attach":
		if arg == "" {
			return false, fmt.Errorf("usage: /attach <path>")
		}
		att, err := internal.LoadAttachment(arg)
		if err != nil {
			return false, err
		}
		r.pending = append(r.pending, att)
		fmt.Fprintf(r.out, "%s\n", dimText(fmt.Sprintf("Attached %s (%s, %d bytes).", att.Name, att.Kind, att.Size)))
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", command)
	}
	return false, nil
}

func (r *repl) load(id string) error {
	session, err := findSession(r.eng.Sessions(), id)
	if err != nil {
		return err
	}
	if err := r.eng.LoadSession(session.ID); err != nil {
		return err
	}
	r.pending = nil

	active := r.eng.Active()
	fmt.Fprintln(r.out, dimText(fmt.Sprintf("Resumed %q (%d turns).", active.Title, len(active.Turns))))
	for _, turn := range active.Turns {
		printTurn(r.out, turn)
	}
	return nil
}

func (r *repl) send(text string) {
	if !r.eng.SendMessage(text, r.pending) {
		return
	}
	r.pending = nil
	waitForReply(r.eng, r.printer, r.signals)
}

// waitForReply blocks until the stream ends. An interrupt stops generation.
func waitForReply(eng *engine.Engine, p *streamPrinter, signals <-chan os.Signal) engine.Event {
	select {
	case ev := <-p.done:
		return ev
	case <-signals:
		eng.StopGenerating()
		return <-p.done
	}
}

// streamPrinter renders engine events as a streamed transcript
type streamPrinter struct {
	out  io.Writer
	done chan engine.Event
}

func newStreamPrinter(out io.Writer) *streamPrinter {
	return &streamPrinter{out: out, done: make(chan engine.Event, 1)}
}

func (p *streamPrinter) observe(ev engine.Event) {
	switch ev.Kind {
	case engine.EventTurnAppended:
		if ev.Turn.Role == internal.RoleAssistant {
			fmt.Fprint(p.out, assistantLabel("Assistant: "))
		}
	case engine.EventDelta:
		fmt.Fprint(p.out, ev.Delta)
	case engine.EventStreamFinished:
		fmt.Fprintln(p.out)
		printSources(p.out, ev.Turn.Sources)
		fmt.Fprintln(p.out)
		p.signal(ev)
	case engine.EventStreamFailed:
		fmt.Fprintln(p.out)
		fmt.Fprintln(p.out, errorText(ev.Turn.Content))
		fmt.Fprintln(p.out)
		p.signal(ev)
	case engine.EventStreamStopped:
		fmt.Fprintln(p.out)
		fmt.Fprintln(p.out, dimText("[stopped]"))
		fmt.Fprintln(p.out)
		p.signal(ev)
	}
}

func (p *streamPrinter) signal(ev engine.Event) {
	select {
	case p.done <- ev:
	default:
	}
}

func printTurn(out io.Writer, turn internal.Turn) {
	switch turn.Role {
	case internal.RoleUser:
		fmt.Fprint(out, youLabel("You: "))
	case internal.RoleAssistant:
		fmt.Fprint(out, assistantLabel("Assistant: "))
	default:
		fmt.Fprintf(out, "%s: ", turn.Role)
	}
	fmt.Fprintln(out, turn.Content)
	for _, att := range turn.Attachments {
		fmt.Fprintln(out, dimText("  📎 "+att.Name))
	}
	printSources(out, turn.Sources)
}

func printSources(out io.Writer, sources []internal.Source) {
	for i, src := range sources {
		title := src.Title
		if title == "" {
			title = src.URL
		}
		fmt.Fprintf(out, "%s\n", dimText(fmt.Sprintf("  [%d] %s %s", i+1, title, src.URL)))
	}
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatResume, "resume", "", "Resume a saved session by ID")
}
