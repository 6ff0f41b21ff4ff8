package cmd

import (
	"errors"
	"os"
	"os/signal"
	"strings"

	"github.com/iksnae/chat-session/internal"
	"github.com/iksnae/chat-session/internal/engine"
	"github.com/spf13/cobra"
)

var (
	sendSession string
	sendAttach  []string
)

var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send one message and stream the reply",
	Long: `Send a single message and stream the reply to stdout. The exchange is
saved as a new session, or appended to an existing one with --session.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")

		attachments := make([]internal.Attachment, 0, len(sendAttach))
		for _, path := range sendAttach {
			att, err := internal.LoadAttachment(path)
			if err != nil {
				return err
			}
			attachments = append(attachments, att)
		}

		a, err := loadApp()
		if err != nil {
			return err
		}
		eng, err := a.newEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		if sendSession != "" {
			session, err := findSession(eng.Sessions(), sendSession)
			if err != nil {
				return err
			}
			if err := eng.LoadSession(session.ID); err != nil {
				return err
			}
		}

		printer := newStreamPrinter(cmd.OutOrStdout())
		unsubscribe := eng.Subscribe(printer.observe)
		defer unsubscribe()

		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt)
		defer signal.Stop(signals)

		if !eng.SendMessage(text, attachments) {
			return errors.New("nothing to send")
		}

		ev := waitForReply(eng, printer, signals)
		if ev.Kind == engine.EventStreamFailed {
			return ev.Err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&sendSession, "session", "s", "", "Append to a saved session instead of starting a new one")
	sendCmd.Flags().StringArrayVarP(&sendAttach, "attach", "a", nil, "Attach a file (repeatable)")
}
