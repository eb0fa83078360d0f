package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Responder answers chat messages that mention the assistant. It is
// inert when no configured provider is available; mentions then travel
// like any other message.
type Responder struct {
	provider    Provider
	interpreter *Interpreter
	mention     string
	logger      zerolog.Logger
}

// NewResponder creates a responder for the given mention keyword
func NewResponder(provider Provider, interpreter *Interpreter, mention string, logger zerolog.Logger) *Responder {
	return &Responder{
		provider:    provider,
		interpreter: interpreter,
		mention:     mention,
		logger:      logger.With().Str("component", "responder").Logger(),
	}
}

// Enabled reports whether mentions will get a reply
func (r *Responder) Enabled() bool {
	return r.provider != nil && r.provider.IsConfigured()
}

// IsMention reports whether a message addresses the assistant
func (r *Responder) IsMention(body string) bool {
	return strings.Contains(body, r.mention)
}

// Respond generates and interprets a reply to a mention. The mention
// keyword is stripped from the prompt before generation.
func (r *Responder) Respond(ctx context.Context, projectID, body string) (Reply, error) {
	if !r.Enabled() {
		return Reply{}, fmt.Errorf("no assistant provider configured")
	}

	prompt := strings.TrimSpace(strings.ReplaceAll(body, r.mention, ""))
	if prompt == "" {
		return Reply{DisplayText: "Ask me something after the mention."}, nil
	}

	raw, err := r.provider.Generate(ctx, prompt)
	if err != nil {
		return Reply{}, fmt.Errorf("assistant generation failed: %w", err)
	}

	reply := r.interpreter.Interpret(projectID, raw)
	r.logger.Debug().Str("project", projectID).Bool("tree", reply.Tree != nil).
		Msg("assistant reply interpreted")
	return reply, nil
}
