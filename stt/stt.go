package stt

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"parley.chat/config"
)

// Result is what a transcription backend hands back. Text and Err are not
// mutually exclusive: a backend may return partial text alongside an error.
type Result struct {
	Text       string
	Confidence float64
	Err        error
}

// Transcriber turns converted audio into text. Implementations never fail
// across this boundary; transport and API errors travel in Result.Err.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) Result
}

// New selects a backend once at startup from the configuration.
func New(cfg config.Config, logger *log.Logger) (Transcriber, error) {
	switch cfg.Backend {
	case config.BackendStub:
		return &Stub{}, nil
	case config.BackendRemoteAPI:
		return NewRemote(cfg.RemoteURL, cfg.APIKey, cfg.ModelName, logger), nil
	case config.BackendRemoteStream:
		return NewStream(cfg.RemoteURL, cfg.APIKey, cfg.ModelName, logger), nil
	default:
		return nil, fmt.Errorf("unknown transcription backend: %q", cfg.Backend)
	}
}
