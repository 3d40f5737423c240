package agent

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Status classifies the result of one assistant exchange.
type Status int

const (
	Answered Status = iota
	Unavailable
	TimedOut
)

// Outcome is the typed result of Ask. Callers fall back to deterministic
// handling unless Status is Answered.
type Outcome struct {
	Status Status
	Text   string
}

const systemPrompt = `You are a concise personal schedule assistant. The user sends free-form questions or requests about their tasks and plans. Answer in plain text suitable for a push notification: short, no markdown, no preamble.`

// Agent is the optional AI collaborator for free-form messages the command
// router does not recognize.
type Agent struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// New returns nil when no API key is configured; a nil Agent disables the
// assistant path entirely.
func New(apiKey, baseURL, model string, timeout time.Duration) *Agent {
	if apiKey == "" {
		return nil
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Agent{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: timeout,
	}
}

// Ask sends one question and returns a typed outcome. It never returns an
// error: any failure maps to Unavailable or TimedOut so the caller can fall
// back deterministically.
func (a *Agent) Ask(ctx context.Context, question string) Outcome {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: question},
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Printf("agent: request timed out after %s", a.timeout)
			return Outcome{Status: TimedOut}
		}
		log.Printf("agent: %v", err)
		return Outcome{Status: Unavailable}
	}
	if len(resp.Choices) == 0 {
		return Outcome{Status: Unavailable}
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return Outcome{Status: Unavailable}
	}
	return Outcome{Status: Answered, Text: text}
}
