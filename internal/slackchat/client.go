// Package slackchat is the Slack side of the tracker: Web API reads and
// writes, plus translation of Events API payloads into domain events.
package slackchat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/slack-go/slack"

	"github.com/krskas/slack-task-tracker/internal/domain"
)

const historyPageSize = 200

// ErrMessageNotFound is returned by Message when the ts does not resolve.
var ErrMessageNotFound = errors.New("message not found")

// API is the subset of *slack.Client the tracker calls.
type API interface {
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
	GetConversationInfoContext(ctx context.Context, input *slack.GetConversationInfoInput) (*slack.Channel, error)
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
	GetConversationsForUserContext(ctx context.Context, params *slack.GetConversationsForUserParameters) ([]slack.Channel, string, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	PostEphemeralContext(ctx context.Context, channelID, userID string, options ...slack.MsgOption) (string, error)
}

var _ API = (*slack.Client)(nil)

// Identity is who the bot is.
type Identity struct {
	UserID string
	TeamID string
}

// Client wraps the Slack Web API with the calls the tracker makes.
type Client struct {
	api    API
	logger *slog.Logger

	mu       sync.Mutex
	identity *Identity
}

func NewClient(api API, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{api: api, logger: logger}
}

// NewAPI builds a *slack.Client. appToken may be empty when Socket Mode is
// not used.
func NewAPI(botToken, appToken string) *slack.Client {
	var opts []slack.Option
	if appToken != "" {
		opts = append(opts, slack.OptionAppLevelToken(appToken))
	}
	return slack.New(botToken, opts...)
}

// Identity returns the bot's own user and team, resolved once per process.
func (c *Client) Identity(ctx context.Context) (Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity != nil {
		return *c.identity, nil
	}
	resp, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return Identity{}, fmt.Errorf("auth.test: %w", err)
	}
	c.identity = &Identity{UserID: resp.UserID, TeamID: resp.TeamID}
	return *c.identity, nil
}

// CheckAccess returns *domain.NotInChannelError when the bot cannot read
// channel.
func (c *Client) CheckAccess(ctx context.Context, channel string) error {
	_, err := c.api.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: channel})
	if err != nil {
		return mapError(channel, fmt.Errorf("conversations.info: %w", err))
	}
	return nil
}

// History pages conversations.history back to oldest and returns at most
// max messages, newest first.
func (c *Client) History(ctx context.Context, channel string, oldest time.Time, max int) ([]domain.ChatMessage, error) {
	params := &slack.GetConversationHistoryParameters{
		ChannelID: channel,
		Oldest:    formatTS(oldest),
		Limit:     historyPageSize,
	}

	var out []domain.ChatMessage
	for {
		if max > 0 && max-len(out) < params.Limit {
			params.Limit = max - len(out)
		}
		resp, err := c.api.GetConversationHistoryContext(ctx, params)
		if err != nil {
			return out, mapError(channel, fmt.Errorf("conversations.history: %w", err))
		}
		for _, m := range resp.Messages {
			out = append(out, toChatMessage(m))
		}
		if max > 0 && len(out) >= max {
			return out[:max], nil
		}
		if !resp.HasMore || resp.ResponseMetaData.NextCursor == "" {
			return out, nil
		}
		params.Cursor = resp.ResponseMetaData.NextCursor
	}
}

// Message fetches a single message by ts.
func (c *Client) Message(ctx context.Context, channel, ts string) (domain.ChatMessage, error) {
	resp, err := c.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channel,
		Latest:    ts,
		Inclusive: true,
		Limit:     1,
	})
	if err != nil {
		return domain.ChatMessage{}, mapError(channel, fmt.Errorf("conversations.history: %w", err))
	}
	if len(resp.Messages) == 0 || resp.Messages[0].Timestamp != ts {
		return domain.ChatMessage{}, ErrMessageNotFound
	}
	return toChatMessage(resp.Messages[0]), nil
}

// MemberChannels lists public and private channels the bot belongs to,
// archived ones excluded.
func (c *Client) MemberChannels(ctx context.Context) ([]domain.Channel, error) {
	params := &slack.GetConversationsForUserParameters{
		Types:           []string{"public_channel", "private_channel"},
		ExcludeArchived: true,
		Limit:           historyPageSize,
	}
	var out []domain.Channel
	for {
		channels, cursor, err := c.api.GetConversationsForUserContext(ctx, params)
		if err != nil {
			return out, fmt.Errorf("users.conversations: %w", err)
		}
		for _, ch := range channels {
			if ch.ID == "" {
				continue
			}
			out = append(out, domain.Channel{ID: ch.ID, Name: ch.Name, IsMember: true})
		}
		if cursor == "" {
			return out, nil
		}
		params.Cursor = cursor
	}
}

// PostThread replies in the thread of the message at ts.
func (c *Client) PostThread(ctx context.Context, channel, ts, text string) error {
	_, _, err := c.api.PostMessageContext(ctx, channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionTS(ts),
	)
	if err != nil {
		return mapError(channel, fmt.Errorf("chat.postMessage: %w", err))
	}
	return nil
}

// PostChannel posts text to channel.
func (c *Client) PostChannel(ctx context.Context, channel, text string) error {
	_, _, err := c.api.PostMessageContext(ctx, channel, slack.MsgOptionText(text, false))
	if err != nil {
		return mapError(channel, fmt.Errorf("chat.postMessage: %w", err))
	}
	return nil
}

// PostEphemeral shows text to user only.
func (c *Client) PostEphemeral(ctx context.Context, channel, user, text string) error {
	_, err := c.api.PostEphemeralContext(ctx, channel, user, slack.MsgOptionText(text, false))
	if err != nil {
		return mapError(channel, fmt.Errorf("chat.postEphemeral: %w", err))
	}
	return nil
}

// Respond answers a slash command ephemerally. The command's response_url
// works even where the bot is not a channel member, so it is preferred over
// chat.postEphemeral.
func (c *Client) Respond(ctx context.Context, cmd domain.Command, text string) error {
	if cmd.ResponseURL == "" {
		return c.PostEphemeral(ctx, cmd.Channel, cmd.User, text)
	}
	err := slack.PostWebhookContext(ctx, cmd.ResponseURL, &slack.WebhookMessage{
		ResponseType: slack.ResponseTypeEphemeral,
		Text:         text,
	})
	if err != nil {
		return fmt.Errorf("post command response: %w", err)
	}
	return nil
}

// JumpLink is a slack:// deep link to a message.
func JumpLink(team, channel, ts string) string {
	return fmt.Sprintf("slack://channel?team=%s&id=%s&message=%s", team, channel, ts)
}

func toChatMessage(m slack.Message) domain.ChatMessage {
	out := domain.ChatMessage{TS: m.Timestamp, User: m.User, Text: m.Text}
	for _, r := range m.Reactions {
		out.Reactions = append(out.Reactions, domain.Reaction{Name: r.Name, Count: r.Count})
	}
	return out
}

func formatTS(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatFloat(float64(t.UnixMicro())/1e6, 'f', 6, 64)
}

// ParseTS converts a Slack message ts ("1700000000.000100") to a time.
func ParseTS(ts string) (time.Time, bool) {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil || f <= 0 {
		return time.Time{}, false
	}
	sec := int64(f)
	return time.Unix(sec, int64((f-float64(sec))*1e9)).UTC(), true
}
