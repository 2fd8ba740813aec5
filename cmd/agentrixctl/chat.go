package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"Agentrix-Chat/sdk/go/agentrix"
)

const chatHelp = `Commands:
  /next            validate the current wizard step and move on
  /back            return to the previous wizard step
  /cancel          abandon the active wizard
  /retry           retry a failed submission
  /set key=value   edit a wizard field (values are parsed as JSON when possible)
  /reset           clear the conversation
  /quit            leave
Anything else is sent as a message.`

func newChatCmd(root *rootOptions) *cobra.Command {
	var conversationID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Long:  "Open a conversation (or resume one with --conversation) and chat with the assistant.\n\n" + chatHelp,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := root.client()
			if err != nil {
				return err
			}
			session := &chatSession{client: client, out: cmd.OutOrStdout()}
			return session.run(cmd.Context(), conversationID, cmd.InOrStdin())
		},
	}
	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "Resume an existing conversation")
	return cmd
}

type chatSession struct {
	client *agentrix.Client
	out    io.Writer
	conv   agentrix.Conversation
	// shown is the number of messages already printed.
	shown int
}

func (s *chatSession) run(ctx context.Context, conversationID string, in io.Reader) error {
	var err error
	if conversationID != "" {
		s.conv, err = s.client.GetConversation(ctx, conversationID)
	} else {
		s.conv, err = s.client.OpenConversation(ctx)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, headerStyle.Render("Conversation "+s.conv.ConversationID))
	fmt.Fprintln(s.out, hintStyle.Render("Type /help for commands."))
	s.print()

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, promptStyle.Render("> "))
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		quit, err := s.handle(ctx, line)
		if quit {
			return nil
		}
		if err != nil {
			var apiErr *agentrix.APIError
			if !errors.As(err, &apiErr) {
				return err
			}
			fmt.Fprintln(s.out, renderAPIError(apiErr))
			continue
		}
		s.print()
	}
}

// handle executes one input line and reports whether the session should end.
func (s *chatSession) handle(ctx context.Context, line string) (bool, error) {
	id := s.conv.ConversationID
	var (
		conv agentrix.Conversation
		err  error
	)
	command, arg, _ := strings.Cut(line, " ")
	switch command {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(s.out, hintStyle.Render(chatHelp))
		return false, nil
	case "/next":
		conv, err = s.client.AdvanceWizard(ctx, id)
	case "/back":
		conv, err = s.client.RetreatWizard(ctx, id)
	case "/cancel":
		conv, err = s.client.CancelWizard(ctx, id)
	case "/retry":
		conv, err = s.client.RetryWizard(ctx, id)
	case "/reset":
		conv, err = s.client.ResetConversation(ctx, id)
		if err == nil {
			s.shown = 0
		}
	case "/set":
		fields, parseErr := parseFieldAssignments(arg)
		if parseErr != nil {
			fmt.Fprintln(s.out, errorStyle.Render(parseErr.Error()))
			return false, nil
		}
		conv, err = s.client.SetWizardFields(ctx, id, fields)
	default:
		conv, err = s.client.SendMessage(ctx, id, line)
	}
	if err != nil {
		return false, err
	}
	s.conv = conv
	return false, nil
}

// print writes messages that arrived since the last call followed by the wizard panel.
func (s *chatSession) print() {
	if s.shown > len(s.conv.Messages) {
		s.shown = 0
	}
	for _, msg := range s.conv.Messages[s.shown:] {
		fmt.Fprintln(s.out, renderMessage(msg))
	}
	s.shown = len(s.conv.Messages)
	if s.conv.Wizard != nil {
		fmt.Fprintln(s.out, renderWizard(s.conv.Wizard))
	}
}

// parseFieldAssignments parses "key=value" pairs separated by spaces. Values
// that are valid JSON keep their JSON type, everything else is a string.
func parseFieldAssignments(arg string) (map[string]any, error) {
	pairs := strings.Fields(arg)
	if len(pairs) == 0 {
		return nil, errors.New("usage: /set key=value [key=value...]")
	}
	fields := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q, expected key=value", pair)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		fields[key] = value
	}
	return fields, nil
}
