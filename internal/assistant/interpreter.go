// Package assistant decodes AI-authored payloads at the boundary and,
// when configured with a provider, answers mentions in project chat.
package assistant

import (
	"encoding/json"
	"strings"

	"github.com/devroom-sh/devroom/internal/domain"
	"github.com/rs/zerolog"
)

// TreeReplacer is the slice of the file tree store the interpreter needs
type TreeReplacer interface {
	Replace(projectID string, tree domain.FileTree) (domain.FileTree, error)
}

// Reply is an interpreted assistant message: the human-readable text for
// the transcript and, when the payload carried one, the tree as
// committed to the store. The serialized tree never appears in the text.
type Reply struct {
	DisplayText string
	Tree        domain.FileTree
}

// Interpreter decodes assistant payloads once, so downstream code never
// re-inspects their shape.
type Interpreter struct {
	store  TreeReplacer
	logger zerolog.Logger
}

// NewInterpreter creates an interpreter committing trees to the given store
func NewInterpreter(store TreeReplacer, logger zerolog.Logger) *Interpreter {
	return &Interpreter{
		store:  store,
		logger: logger.With().Str("component", "interpreter").Logger(),
	}
}

type envelope struct {
	Text     string          `json:"text"`
	FileTree domain.FileTree `json:"fileTree"`
}

// Interpret decodes a raw assistant message. A payload that is not the
// structured envelope is treated wholesale as display text; decode
// failure is never an error. A present fileTree is committed to the
// store before returning.
func (i *Interpreter) Interpret(projectID, raw string) Reply {
	candidate := stripCodeFence(raw)

	var env envelope
	if err := json.Unmarshal([]byte(candidate), &env); err != nil {
		i.logger.Debug().Err(err).Msg("payload is not a structured envelope, using as plain text")
		return Reply{DisplayText: raw}
	}

	reply := Reply{DisplayText: env.Text}
	if env.FileTree == nil {
		if env.Text == "" {
			// A decodable JSON value that is not our envelope (a bare
			// number, an unrelated object) is still just text.
			reply.DisplayText = raw
		}
		return reply
	}

	committed, err := i.store.Replace(projectID, env.FileTree)
	if err != nil {
		i.logger.Error().Err(err).Str("project", projectID).Msg("failed to commit assistant tree")
		return reply
	}
	reply.Tree = committed
	return reply
}

// stripCodeFence unwraps a payload fenced as a markdown code block,
// which models routinely produce around JSON.
func stripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Drop the language tag line ("json", "javascript", ...)
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
