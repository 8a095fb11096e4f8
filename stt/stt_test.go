package stt

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"parley.chat/config"
)

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func TestNewSelectsBackend(t *testing.T) {
	cfg := config.Config{Backend: config.BackendStub}
	tr, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New(stub): %v", err)
	}
	if _, ok := tr.(*Stub); !ok {
		t.Errorf("New(stub) = %T, want *Stub", tr)
	}

	cfg = config.Config{
		Backend:   config.BackendRemoteAPI,
		RemoteURL: "https://stt.example.com",
	}
	tr, err = New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New(remote-api): %v", err)
	}
	if _, ok := tr.(*Remote); !ok {
		t.Errorf("New(remote-api) = %T, want *Remote", tr)
	}

	if _, err := New(config.Config{Backend: "nope"}, testLogger()); err == nil {
		t.Error("New with unknown backend should fail")
	}
}

func TestStubIsDeterministic(t *testing.T) {
	s := &Stub{}
	audio := make([]byte, 4800)

	first := s.Transcribe(context.Background(), audio)
	second := s.Transcribe(context.Background(), audio)

	if first.Err != nil || second.Err != nil {
		t.Fatalf("stub must never fail, got %v / %v", first.Err, second.Err)
	}
	if first.Text != second.Text {
		t.Errorf("stub not deterministic: %q vs %q", first.Text, second.Text)
	}
	if !strings.Contains(first.Text, "4800") {
		t.Errorf("stub text %q should reflect input length", first.Text)
	}
}

func TestRemoteTranscribe(t *testing.T) {
	var gotAuth, gotModel string
	srv := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotModel = r.URL.Query().Get("model")
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"text": " hello there ", "confidence": 0.93}`))
		}),
	)
	defer srv.Close()

	r := NewRemote(srv.URL, "sekrit", "nova-2", testLogger())
	result := r.Transcribe(context.Background(), []byte("wavwavwav"))

	if result.Err != nil {
		t.Fatalf("Transcribe: %v", result.Err)
	}
	if result.Text != "hello there" {
		t.Errorf("Text = %q, want %q", result.Text, "hello there")
	}
	if result.Confidence != 0.93 {
		t.Errorf("Confidence = %v, want 0.93", result.Confidence)
	}
	if gotAuth != "Bearer sekrit" {
		t.Errorf("Authorization = %q, want Bearer sekrit", gotAuth)
	}
	if gotModel != "nova-2" {
		t.Errorf("model query = %q, want nova-2", gotModel)
	}
}

func TestRemoteServerErrorBecomesResultErr(t *testing.T) {
	srv := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream on fire", http.StatusBadGateway)
		}),
	)
	defer srv.Close()

	r := NewRemote(srv.URL, "", "", testLogger())
	result := r.Transcribe(context.Background(), []byte("wav"))

	if result.Err == nil {
		t.Fatal("expected error result for 502 response")
	}
	if result.Text != "" {
		t.Errorf("Text = %q, want empty on server error", result.Text)
	}
	if !strings.Contains(result.Err.Error(), "502") {
		t.Errorf("error %q should carry the status code", result.Err)
	}
}

func TestRemoteUnreachableBecomesResultErr(t *testing.T) {
	r := NewRemote("http://127.0.0.1:1/listen", "", "", testLogger())
	result := r.Transcribe(context.Background(), []byte("wav"))
	if result.Err == nil {
		t.Fatal("expected error result for unreachable endpoint")
	}
}

func TestStreamTranscribe(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				t.Errorf("upgrade: %v", err)
				return
			}
			defer conn.Close()

			var audioBytes int
			for {
				kind, payload, err := conn.ReadMessage()
				if err != nil {
					return
				}
				if kind == websocket.BinaryMessage {
					audioBytes += len(payload)
					continue
				}
				// Control message: emit an interim, then two finals, then close.
				conn.WriteMessage(websocket.TextMessage, []byte(
					`{"is_final": false, "channel": {"alternatives": [{"transcript": "hel", "confidence": 0.2}]}}`,
				))
				conn.WriteMessage(websocket.TextMessage, []byte(
					`{"is_final": true, "channel": {"alternatives": [{"transcript": "hello", "confidence": 0.9}]}}`,
				))
				conn.WriteMessage(websocket.TextMessage, []byte(
					`{"is_final": true, "channel": {"alternatives": [{"transcript": "world", "confidence": 0.7}]}}`,
				))
				conn.WriteMessage(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				)
				return
			}
		}),
	)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	s := NewStream(wsURL, "", "", testLogger())
	result := s.Transcribe(context.Background(), make([]byte, streamChunkSize*2+17))

	if result.Err != nil {
		t.Fatalf("Transcribe: %v", result.Err)
	}
	if result.Text != "hello world" {
		t.Errorf("Text = %q, want %q", result.Text, "hello world")
	}
	if result.Confidence < 0.79 || result.Confidence > 0.81 {
		t.Errorf("Confidence = %v, want ~0.8", result.Confidence)
	}
}

func TestStreamDialFailureBecomesResultErr(t *testing.T) {
	s := NewStream("ws://127.0.0.1:1/listen", "", "", testLogger())
	result := s.Transcribe(context.Background(), []byte("pcm"))
	if result.Err == nil {
		t.Fatal("expected error result for unreachable socket")
	}
}
