package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Remote uploads converted audio to a hosted speech-to-text endpoint and maps
// the response into a Result. Whisper-style servers answer with a JSON body
// carrying at least a "text" field.
type Remote struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
	log      *log.Logger
}

func NewRemote(endpoint, apiKey, model string, logger *log.Logger) *Remote {
	return &Remote{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{Timeout: 30 * time.Second},
		log:      logger,
	}
}

func (r *Remote) Transcribe(ctx context.Context, audio []byte) Result {
	endpoint := r.endpoint
	if r.model != "" {
		if u, err := url.Parse(r.endpoint); err == nil {
			q := u.Query()
			q.Set("model", r.model)
			u.RawQuery = q.Encode()
			endpoint = u.String()
		}
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		endpoint,
		bytes.NewReader(audio),
	)
	if err != nil {
		return Result{Err: fmt.Errorf("build transcription request: %w", err)}
	}
	req.Header.Set("Content-Type", "audio/wav")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Result{Err: fmt.Errorf("transcription request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{Err: fmt.Errorf(
			"transcription endpoint returned %d: %s",
			resp.StatusCode,
			strings.TrimSpace(string(body)),
		)}
	}

	var out struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{Err: fmt.Errorf("decode transcription response: %w", err)}
	}

	r.log.Debug("hear", "txt", out.Text, "bytes", len(audio))

	return Result{
		Text:       strings.TrimSpace(out.Text),
		Confidence: out.Confidence,
	}
}
