package commands

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/classroll/classroll-bot/internal/interface/chat"
)

var consoleUser string

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Talk to the bot from the terminal as one chat user",
	Long: `Read messages from stdin and print the bot's replies. Storage, sessions and
notifications use the configured backends, so this is a faithful local
stand-in for the chat transport. Lines of the form "@<id> text" switch user.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.close()

		out := cmd.OutOrStdout()
		user := consoleUser
		fmt.Fprintf(out, "classroll console as %s. Send /start to begin, Ctrl-D to quit.\n", user)

		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "@") {
				id, rest, _ := strings.Cut(line[1:], " ")
				if id != "" {
					user = id
				}
				line = rest
			}

			reply := a.router.Handle(ctx, chat.Inbound{SenderID: user, Text: line})
			if reply.Text != "" {
				fmt.Fprintf(out, "\n%s\n", reply.Text)
			}
			for _, notice := range reply.Notices {
				fmt.Fprintf(out, "(%s)\n", notice)
			}
		}
		return scanner.Err()
	},
}

func init() {
	consoleCmd.Flags().StringVar(&consoleUser, "as", "console@c.us", "chat user id to send as")
}
