// Package twiliowhatsapp sends intake-team alerts through the Twilio
// Messaging API, as WhatsApp messages or plain SMS.
package twiliowhatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Channel selects how Twilio delivers a message.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSMS      Channel = "sms"
)

// Sender sends a text message to a phone number.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// messageCreator is the part of the Twilio REST API the client calls.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Opts holds configuration options for the Twilio client.
type Opts struct {
	AccountSID string
	AuthToken  string
	From       string
	Channel    Channel
}

// Option defines a configuration option for the Twilio client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFrom sets the sending number in E.164 form.
func WithFrom(from string) Option {
	return func(o *Opts) { o.From = from }
}

// WithChannel selects WhatsApp (default) or SMS delivery.
func WithChannel(ch Channel) Option {
	return func(o *Opts) { o.Channel = ch }
}

// Client wraps the Twilio REST API.
type Client struct {
	api     messageCreator
	from    string
	channel Channel
}

var _ Sender = (*Client)(nil)

// NewClient creates a Twilio client. Account SID, auth token and sender
// number are required.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"From_set", cfg.From != "",
		"channel", cfg.Channel)

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("sender number must be provided")
	}
	switch cfg.Channel {
	case "":
		cfg.Channel = ChannelWhatsApp
	case ChannelWhatsApp, ChannelSMS:
	default:
		return nil, fmt.Errorf("unknown Twilio channel %q", cfg.Channel)
	}

	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return newClient(rest.Api, cfg.From, cfg.Channel), nil
}

func newClient(api messageCreator, from string, ch Channel) *Client {
	return &Client{api: api, from: address(ch, from), channel: ch}
}

// address formats a number the way Twilio expects for the channel.
func address(ch Channel, number string) string {
	number = strings.TrimPrefix(number, "whatsapp:")
	if ch == ChannelWhatsApp {
		return "whatsapp:" + number
	}
	return number
}

// SendMessage sends body to the E.164 number to.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(address(c.channel, to))
	params.SetFrom(c.from)
	params.SetBody(body)

	resp, err := c.api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio SendMessage failed", "to", to, "channel", c.channel, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	if resp != nil && resp.Sid != nil {
		slog.Debug("Twilio message sent", "to", to, "channel", c.channel, "sid", *resp.Sid)
	}
	return nil
}

// MockClient records messages instead of sending them.
type MockClient struct {
	SentMessages []SentMessage
	Err          error
}

// SentMessage is a message captured by MockClient.
type SentMessage struct {
	To   string
	Body string
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	if m.Err != nil {
		return m.Err
	}
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: body})
	return nil
}
