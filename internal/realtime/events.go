package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/devroom-sh/devroom/internal/domain"
)

// FrameType tags a realtime channel frame
type FrameType string

const (
	// Client → server and server → client
	FrameProjectMessage FrameType = "project-message"

	// Client → server
	FrameFilePatch   FrameType = "file-patch"
	FrameSaveTree    FrameType = "save-tree"
	FrameRun         FrameType = "run"
	FrameStop        FrameType = "stop"
	FrameClearOutput FrameType = "clear-output"
	FramePreview     FrameType = "preview"

	// Server → client
	FrameFileTree      FrameType = "file-tree"
	FrameSandboxState  FrameType = "sandbox-state"
	FrameSandboxOutput FrameType = "sandbox-output"
	FrameError         FrameType = "error"
)

// Frame is the envelope for every message on the realtime channel
type Frame struct {
	Type    FrameType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EncodeFrame marshals a typed payload into a wire frame
func EncodeFrame(frameType FrameType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", frameType, err)
	}
	return json.Marshal(Frame{Type: frameType, Payload: raw})
}

// FilePatchPayload is a local single-file edit
type FilePatchPayload struct {
	Path     string `json:"path"`
	Contents string `json:"contents"`
}

// PreviewRequestPayload asks for a navigable URL on the running sandbox
type PreviewRequestPayload struct {
	Path string `json:"path"`
}

// FileTreePayload carries the shared tree after a commit
type FileTreePayload struct {
	FileTree domain.FileTree `json:"fileTree"`
}

// SandboxStatePayload announces an execution lifecycle transition
type SandboxStatePayload struct {
	State string `json:"state"`
}

// SandboxOutputPayload streams one chunk of process output
type SandboxOutputPayload struct {
	Chunk string `json:"chunk"`
}

// PreviewPayload carries a composed preview URL
type PreviewPayload struct {
	URL string `json:"url"`
}

// ErrorPayload reports a recoverable, requester-only error
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
