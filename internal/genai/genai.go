// Package genai writes intake-team case summaries with the OpenAI API.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrNoChoicesReturned is returned when the model answers with no choices.
var ErrNoChoicesReturned = errors.New("no choices returned")

// DefaultModel is used unless WithModel overrides it.
const DefaultModel = openai.ChatModelGPT4oMini

// chatService is the slice of the OpenAI client the package uses.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Opts holds configuration for the GenAI client.
type Opts struct {
	APIKey string
	Model  string
}

// Option configures the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(o *Opts) {
		o.Model = model
	}
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat  chatService
	model string
}

// NewClient creates a client. An API key is required.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("genai.NewClient: client created", "model", cfg.Model)
	return &Client{chat: &cli.Chat.Completions, model: cfg.Model}, nil
}

// GeneratePrompt returns the model's reply to a system and user prompt pair.
func (c *Client) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("genai: chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// SummarySystemPrompt instructs the model how to brief the intake team.
const SummarySystemPrompt = `You brief a personal-injury law firm's intake team about a new lead from an online accident-claim questionnaire.
Write at most five short lines of plain text, no markdown.
Start with the caller's name and how to reach them.
Then state whether they qualified and the key facts from their answers.
Never invent facts that are not in the input.`

// Case is the input to SummarizeCase.
type Case struct {
	Name      string
	Contact   string
	Qualified bool
	Reasons   []string
	Answers   []string
	Notes     string
}

// SummarizeCase asks the model for a short briefing on a lead.
func (c *Client) SummarizeCase(ctx context.Context, cs Case) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\nContact: %s\nQualified: %t\n", cs.Name, cs.Contact, cs.Qualified)
	if len(cs.Reasons) > 0 {
		fmt.Fprintf(&b, "Disqualification reasons: %s\n", strings.Join(cs.Reasons, "; "))
	}
	if cs.Notes != "" {
		fmt.Fprintf(&b, "Caller notes: %s\n", cs.Notes)
	}
	b.WriteString("Answers:\n")
	for _, line := range cs.Answers {
		b.WriteString("- " + line + "\n")
	}
	return c.GeneratePrompt(ctx, SummarySystemPrompt, b.String())
}
