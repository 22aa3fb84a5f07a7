package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/internal/chat"
)

var chatCmd = &cobra.Command{
	Use:   "chat [message...]",
	Short: "Ask the SEO assistant a question",
	Long:  "With a message, asks once and prints the answer. Without one, reads questions from stdin until EOF or \"exit\".",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sessionID, _ := cmd.Flags().GetString("session")

		env, err := initClient(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sess := chat.NewSession(env.API, chat.WithID(sessionID))
		if len(args) > 0 {
			answer, err := sess.Ask(ctx, strings.Join(args, " "))
			_, _ = fmt.Fprintln(os.Stdout, answer)
			return err
		}

		_, _ = fmt.Fprintf(os.Stderr, "session %s\n", sess.ID())
		return chatLoop(cmd, sess, os.Stdin, os.Stdout)
	},
}

// chatLoop reads one question per line. Failed requests print the fallback
// reply and keep the loop going.
func chatLoop(cmd *cobra.Command, sess *chat.Session, in io.Reader, out io.Writer) error {
	ctx := cmd.Context()
	_, _ = fmt.Fprintf(out, "Steve: %s\n", chat.Greeting)

	sc := bufio.NewScanner(in)
	for {
		_, _ = fmt.Fprint(out, "> ")
		if !sc.Scan() {
			break
		}
		line := strings.TrimSpace(sc.Text())
		if line == "exit" || line == "quit" {
			break
		}
		if line == "" {
			continue
		}
		answer, _ := sess.Ask(ctx, line)
		_, _ = fmt.Fprintf(out, "Steve: %s\n", answer)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	_, _ = fmt.Fprintln(out)
	if err := sc.Err(); err != nil {
		return eris.Wrap(err, "read chat input")
	}
	return nil
}

func init() {
	chatCmd.Flags().String("session", "", "continue an existing chat session id")
	rootCmd.AddCommand(chatCmd)
}
