package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"curaai.dev/cura/internal/client"
	"curaai.dev/cura/internal/store"
)

const chatHelp = `Commands:
  /attach <path>  attach an image to the next message
  /retry          resend the last failed message
  /clear          delete this conversation
  /export [dir]   save the conversation as a text file
  /quit           leave the chat
`

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "chat <mode>",
		Short:     "Start a conversation in one of the guided modes",
		Long:      "Start a conversation. Modes: " + strings.Join(modeNames(), ", ") + ".",
		Args:      cobra.ExactArgs(1),
		ValidArgs: modeNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := modeArg(args)
			if err != nil {
				return err
			}
			if err := a.ensureConsent(cmd); err != nil {
				return err
			}
			conv := client.NewConversation(mode, a.gw,
				client.WithConnectivity(a.online),
				client.WithConversationLogger(a.log),
			)
			s := &chatSession{app: a, conv: conv}
			defer s.conv.Close()
			return s.run(cmd)
		},
	}
}

// chatSession is the line-oriented front end over one Conversation.
type chatSession struct {
	*app
	conv    *client.Conversation
	shown   int
	pending *client.Attachment
}

func (s *chatSession) run(cmd *cobra.Command) error {
	ctx := cmd.Context()
	profile := s.conv.Mode().Profile()
	s.printf("%s\n%s\nType /help for commands.\n\n", profile.Title, profile.Description)

	if err := s.conv.Load(ctx); err != nil {
		return err
	}
	s.render()

	for {
		s.printf("> ")
		line, err := s.readLine()
		if errors.Is(err, io.EOF) {
			s.printf("\n")
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "/") {
			quit, err := s.command(cmd, line)
			if err != nil {
				s.printf("%v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		image := s.pending
		s.pending = nil
		err = s.conv.Submit(ctx, line, image)
		s.render()
		switch {
		case errors.Is(err, client.ErrEmptySubmission):
			s.printf("Type a message or /attach an image first.\n")
		case err != nil:
			s.printf("! %s Type /retry to resend.\n", s.conv.ErrorText())
		}
	}
}

func (s *chatSession) command(cmd *cobra.Command, line string) (quit bool, err error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	ctx := cmd.Context()

	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		s.printf("%s", chatHelp)
	case "/attach":
		if !s.conv.Mode().Profile().AcceptsImages {
			return false, fmt.Errorf("%s mode does not accept images", s.conv.Mode())
		}
		if arg == "" {
			return false, fmt.Errorf("usage: /attach <path>")
		}
		att, err := client.LoadAttachment(arg)
		if err != nil {
			return false, err
		}
		s.pending = att
		s.printf("Attached %s. It will be sent with your next message.\n", att.Name)
	case "/retry":
		err := s.conv.Retry(ctx)
		s.render()
		if err != nil && !errors.Is(err, client.ErrNothingToRetry) {
			s.printf("! %s Type /retry to resend.\n", s.conv.ErrorText())
			return false, nil
		}
		return false, err
	case "/clear":
		err := s.conv.Clear(ctx, func() bool {
			return s.confirm("Are you sure you want to clear this chat history?")
		})
		if errors.Is(err, client.ErrNotConfirmed) {
			return false, nil
		}
		s.pending = nil
		s.shown = 0
		s.render()
		if err != nil {
			return false, fmt.Errorf("the server copy could not be cleared: %w", err)
		}
	case "/export":
		dir := arg
		if dir == "" {
			dir = "."
		}
		path, err := writeTranscript(s.conv, dir, time.Now())
		if err != nil {
			return false, err
		}
		s.printf("Saved %s\n", path)
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", name)
	}
	return false, nil
}

// render prints view messages not yet shown. A clear resets the view, so
// shown is rewound whenever the view shrinks.
func (s *chatSession) render() {
	msgs := s.conv.Messages()
	if s.shown > len(msgs) {
		s.shown = 0
	}
	for _, m := range msgs[s.shown:] {
		s.printMessage(m)
	}
	s.shown = len(msgs)
}

func (s *chatSession) printMessage(m client.ViewMessage) {
	switch m.Role {
	case store.RoleUser:
		s.printf("You: %s", m.Text)
		if m.ImageRef != "" {
			s.printf(" [image: %s]", m.ImageRef)
		}
		if m.Status == client.StatusFailed {
			s.printf(" (not delivered)")
		}
		s.printf("\n")
	default:
		s.printf("Cura: %s\n\n", m.Text)
	}
}
