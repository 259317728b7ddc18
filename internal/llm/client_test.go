package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8081/v1", "test-key", "test-model")
	if client == nil {
		t.Fatal("NewClient() returned nil")
	}
	if client.BaseURL != "http://localhost:8081/v1" {
		t.Errorf("NewClient() BaseURL = %v, want http://localhost:8081/v1", client.BaseURL)
	}
	if client.Model != "test-model" {
		t.Errorf("NewClient() Model = %v, want test-model", client.Model)
	}
	if client.client == nil {
		t.Error("NewClient() client should not be nil")
	}
}

// drain reads a stream until it ends and returns the fragments and the terminal error.
func drain(s Stream) ([]string, error) {
	var chunks []string
	for {
		chunk, err := s.Recv()
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
}

func TestClient_StreamChat(t *testing.T) {
	tests := []struct {
		name       string
		serverResp func(t *testing.T, w http.ResponseWriter, r *http.Request)
		wantChunks []string
		wantErr    bool
		wantEnd    error
	}{
		{
			name: "successful streaming",
			serverResp: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("expected POST, got %s", r.Method)
				}
				if r.URL.Path != "/v1/chat/completions" {
					t.Errorf("expected /v1/chat/completions, got %s", r.URL.Path)
				}
				if r.Header.Get("Authorization") != "Bearer test-key" {
					t.Errorf("Authorization = %q, want Bearer test-key", r.Header.Get("Authorization"))
				}

				var req struct {
					Model    string    `json:"model"`
					Stream   bool      `json:"stream"`
					Messages []Message `json:"messages"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					t.Errorf("failed to decode request: %v", err)
				}
				if req.Model != "test-model" {
					t.Errorf("model = %q, want test-model", req.Model)
				}
				if !req.Stream {
					t.Error("stream flag not set")
				}
				if len(req.Messages) != 2 || req.Messages[0].Role != RoleSystem || req.Messages[1].Content != "Hello" {
					t.Errorf("unexpected messages: %+v", req.Messages)
				}

				w.Header().Set("Content-Type", "text/event-stream")
				flusher, _ := w.(http.Flusher)

				chunks := []string{
					`{"id":"c1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"role":"assistant"}}]}`,
					`{"id":"c1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"Hello"}}]}`,
					`{"id":"c1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":" "}}]}`,
					`{"id":"c1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"world"}}]}`,
					`{"id":"c1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
				}
				for _, chunk := range chunks {
					_, _ = w.Write([]byte("data: " + chunk + "\n\n"))
					flusher.Flush()
				}
				_, _ = w.Write([]byte("data: [DONE]\n\n"))
			},
			wantChunks: []string{"Hello", " ", "world"},
			wantEnd:    io.EOF,
		},
		{
			name: "connection closed before finish reason",
			serverResp: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				flusher, _ := w.(http.Flusher)
				for _, chunk := range []string{
					`{"id":"c1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"Ten"}}]}`,
					`{"id":"c1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":" million"}}]}`,
				} {
					_, _ = w.Write([]byte("data: " + chunk + "\n\n"))
					flusher.Flush()
				}
			},
			wantChunks: []string{"Ten", " million"},
			wantEnd:    ErrTruncatedStream,
		},
		{
			name: "finish reason without done marker",
			serverResp: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				_, _ = w.Write([]byte("data: " + `{"id":"c1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"ok"},"finish_reason":"stop"}]}` + "\n\n"))
			},
			wantChunks: []string{"ok"},
			wantEnd:    io.EOF,
		},
		{
			name: "server error",
			serverResp: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			},
			wantErr: true,
		},
		{
			name: "unauthorized",
			serverResp: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				tt.serverResp(t, w, r)
			}))
			defer server.Close()

			client := NewClient(server.URL+"/v1", "test-key", "test-model")
			stream, err := client.StreamChat(context.Background(), []Message{
				{Role: RoleSystem, Content: "system prompt"},
				{Role: RoleUser, Content: "Hello"},
			})

			if tt.wantErr {
				if err == nil {
					_ = stream.Close()
					t.Fatal("StreamChat() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("StreamChat() unexpected error: %v", err)
			}
			defer func() {
				_ = stream.Close()
			}()

			chunks, err := drain(stream)
			if !errors.Is(err, tt.wantEnd) {
				t.Fatalf("Recv() terminal error = %v, want %v", err, tt.wantEnd)
			}
			if len(chunks) != len(tt.wantChunks) {
				t.Fatalf("Recv() received %d chunks, want %d (%q)", len(chunks), len(tt.wantChunks), chunks)
			}
			for i, chunk := range chunks {
				if chunk != tt.wantChunks[i] {
					t.Errorf("Recv() chunk[%d] = %q, want %q", i, chunk, tt.wantChunks[i])
				}
			}
		})
	}
}

func TestClient_Ping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{name: "model available", status: http.StatusOK},
		{name: "model missing", status: http.StatusNotFound, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/models/test-model" {
					t.Errorf("expected /v1/models/test-model, got %s", r.URL.Path)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				if tt.status == http.StatusOK {
					_, _ = w.Write([]byte(`{"id":"test-model","object":"model","created":0,"owned_by":"openai"}`))
					return
				}
				_, _ = w.Write([]byte(`{"error":{"message":"not found","type":"invalid_request_error"}}`))
			}))
			defer server.Close()

			client := NewClient(server.URL+"/v1", "test-key", "test-model")
			err := client.Ping(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("Ping() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
