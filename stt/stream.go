package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

const streamChunkSize = 8192

// Stream talks to a live transcription socket: it writes the whole utterance
// as binary chunks, asks the server to close the stream, and collects final
// segments until the socket shuts down. The contract is still synchronous;
// a broken socket surfaces in Result.Err alongside whatever text arrived.
type Stream struct {
	endpoint string
	apiKey   string
	model    string
	dialer   *websocket.Dialer
	log      *log.Logger
}

func NewStream(endpoint, apiKey, model string, logger *log.Logger) *Stream {
	return &Stream{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		dialer:   websocket.DefaultDialer,
		log:      logger,
	}
}

type streamMessage struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (s *Stream) Transcribe(ctx context.Context, audio []byte) Result {
	endpoint := s.endpoint
	if s.model != "" {
		if u, err := url.Parse(s.endpoint); err == nil {
			q := u.Query()
			q.Set("model", s.model)
			u.RawQuery = q.Encode()
			endpoint = u.String()
		}
	}

	header := http.Header{}
	if s.apiKey != "" {
		header.Set("Authorization", "Token "+s.apiKey)
	}

	conn, resp, err := s.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return Result{Err: fmt.Errorf(
				"dial transcription socket: %w (status %d)",
				err,
				resp.StatusCode,
			)}
		}
		return Result{Err: fmt.Errorf("dial transcription socket: %w", err)}
	}
	defer conn.Close()

	if err := s.send(conn, audio); err != nil {
		return Result{Err: err}
	}

	return s.collect(ctx, conn)
}

func (s *Stream) send(conn *websocket.Conn, audio []byte) error {
	for off := 0; off < len(audio); off += streamChunkSize {
		end := off + streamChunkSize
		if end > len(audio) {
			end = len(audio)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, audio[off:end]); err != nil {
			return fmt.Errorf("write audio chunk: %w", err)
		}
	}

	closeStream, _ := json.Marshal(map[string]string{"type": "CloseStream"})
	if err := conn.WriteMessage(websocket.TextMessage, closeStream); err != nil {
		return fmt.Errorf("close audio stream: %w", err)
	}

	return nil
}

func (s *Stream) collect(ctx context.Context, conn *websocket.Conn) Result {
	var (
		parts      []string
		confidence float64
		segments   int
	)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			text := strings.Join(parts, " ")
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return Result{Text: text, Confidence: avg(confidence, segments)}
			}
			if ctx.Err() != nil {
				return Result{Text: text, Err: ctx.Err()}
			}
			return Result{
				Text: text,
				Err:  fmt.Errorf("read transcription socket: %w", err),
			}
		}

		var msg streamMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.log.Debug("unparseable socket message", "bytes", len(payload))
			continue
		}

		if !msg.IsFinal || len(msg.Channel.Alternatives) == 0 {
			continue
		}

		alt := msg.Channel.Alternatives[0]
		txt := strings.TrimSpace(alt.Transcript)
		if txt == "" {
			continue
		}

		s.log.Debug("hear", "txt", txt, "confidence", alt.Confidence)
		parts = append(parts, txt)
		confidence += alt.Confidence
		segments++
	}
}

func avg(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
