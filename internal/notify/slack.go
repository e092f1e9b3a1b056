package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/deskflow/itsm-approvals/internal/config"
)

// SlackClient posts messages with the chat.postMessage Web API.
type SlackClient struct {
	token   string
	channel string
	apiURL  string
	timeout time.Duration
}

type slackBlockText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackBlock struct {
	Type string         `json:"type"`
	Text slackBlockText `json:"text"`
}

type slackMessage struct {
	Channel string       `json:"channel"`
	Text    string       `json:"text"`
	Blocks  []slackBlock `json:"blocks"`
}

type slackResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// NewSlackClient builds a client. A blank bot token disables it.
func NewSlackClient(cfg config.NotificationConfig) *SlackClient {
	return &SlackClient{
		token:   cfg.SlackToken,
		channel: cfg.SlackChannel,
		apiURL:  cfg.SlackAPIURL,
		timeout: 10 * time.Second,
	}
}

// Enabled reports whether a bot token is configured.
func (s *SlackClient) Enabled() bool {
	return s != nil && s.token != ""
}

// Post sends mrkdwn text to the approvals channel.
func (s *SlackClient) Post(ctx context.Context, text string) error {
	if !s.Enabled() {
		return ErrChannelDisabled
	}

	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return ctx.Err()
	}

	agent := fiber.Post(s.apiURL)
	agent.Set(fiber.HeaderAuthorization, "Bearer "+s.token)
	agent.Timeout(timeout)
	agent.JSON(slackMessage{
		Channel: s.channel,
		Text:    text,
		Blocks: []slackBlock{{
			Type: "section",
			Text: slackBlockText{Type: "mrkdwn", Text: text},
		}},
	})

	var resp slackResponse
	code, _, errs := agent.Struct(&resp)
	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, err := range errs {
			msgs[i] = err.Error()
		}
		return fmt.Errorf("slack request: %s", strings.Join(msgs, "; "))
	}
	if code != fiber.StatusOK {
		return fmt.Errorf("slack returned status %d", code)
	}
	if !resp.OK {
		return fmt.Errorf("slack api error: %s", resp.Error)
	}
	return nil
}
