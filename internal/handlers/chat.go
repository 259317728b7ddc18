package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"isd-finance-ai/internal/contextutil"
	"isd-finance-ai/internal/llm"
	"isd-finance-ai/internal/service"
)

const (
	// GenericErrorBody is the only failure text a caller ever sees.
	GenericErrorBody = "An error occurred during your request."
	// InvalidRequestBody is returned with 400 when the conversation is empty.
	InvalidRequestBody = "Invalid request: messages must not be empty."

	// StreamStatusTrailer reports how a plain-text stream ended.
	StreamStatusTrailer = "X-Stream-Status"
	StreamComplete      = "complete"
	StreamError         = "error"
)

// ChatHandler handles HTTP requests for chat.
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
	}
}

// ChatRequest represents the HTTP request payload for chat.
type ChatRequest struct {
	Messages  []llm.Message `json:"messages"`
	Namespace string        `json:"namespace,omitempty"`
}

// ServeHTTP handles HTTP requests for chat.
//
// The completion is relayed as plain text, or as Server-Sent Events when the
// caller sends Accept: text/event-stream. Every failure before the first
// byte is written yields a fixed-text error response.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeText(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.ErrorContext(ctx, "invalid request body", "error", err, "kind", service.KindInternal)
		writeText(w, http.StatusInternalServerError, GenericErrorBody)
		return
	}

	stream, err := h.chatService.StartChat(ctx, service.ChatRequest{
		Messages:  req.Messages,
		Namespace: req.Namespace,
	})
	if err != nil {
		h.handleServiceError(ctx, w, err)
		return
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			logger.WarnContext(ctx, "failed to close completion stream", "error", cerr)
		}
	}()

	if wantsEventStream(r) {
		h.relayEvents(ctx, w, stream)
		return
	}
	h.relayText(ctx, w, stream)
}

// relayText writes fragments verbatim and reports the outcome in a trailer.
func (h *ChatHandler) relayText(ctx context.Context, w http.ResponseWriter, stream llm.Stream) {
	logger := contextutil.LoggerFromContext(ctx)
	flusher, _ := w.(http.Flusher)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Trailer", StreamStatusTrailer)
	w.WriteHeader(http.StatusOK)

	fragments, err := relay(stream, func(chunk string) error {
		if _, err := io.WriteString(w, chunk); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		logger.ErrorContext(ctx, "completion stream interrupted",
			"error", err,
			"kind", service.KindCompletion,
			"fragments", fragments,
		)
		w.Header().Set(StreamStatusTrailer, StreamError)
		return
	}

	w.Header().Set(StreamStatusTrailer, StreamComplete)
	logger.InfoContext(ctx, "completion stream finished", "fragments", fragments)
}

// relayEvents writes each fragment as an SSE data frame.
func (h *ChatHandler) relayEvents(ctx context.Context, w http.ResponseWriter, stream llm.Stream) {
	logger := contextutil.LoggerFromContext(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.ErrorContext(ctx, "streaming not supported by response writer", "kind", service.KindInternal)
		writeText(w, http.StatusInternalServerError, GenericErrorBody)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fragments, err := relay(stream, func(chunk string) error {
		// JSON-encode so newlines in the fragment cannot break framing.
		data, err := json.Marshal(chunk)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		logger.ErrorContext(ctx, "completion stream interrupted",
			"error", err,
			"kind", service.KindCompletion,
			"fragments", fragments,
		)
		data, _ := json.Marshal(GenericErrorBody)
		_, _ = fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
		flusher.Flush()
		return
	}

	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
	logger.InfoContext(ctx, "completion stream finished", "fragments", fragments)
}

// relay pulls fragments from stream until io.EOF and hands each to write.
// It returns the number of fragments written.
func relay(stream llm.Stream, write func(string) error) (int, error) {
	n := 0
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if err := write(chunk); err != nil {
			return n, fmt.Errorf("failed to write fragment: %w", err)
		}
		n++
	}
}

// handleServiceError maps service errors to HTTP status codes. Only
// validation failures are distinguishable to the caller.
func (h *ChatHandler) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	logger := contextutil.LoggerFromContext(ctx)
	kind := service.ErrorKind(err)

	if kind == service.KindValidation {
		logger.WarnContext(ctx, "rejected chat request", "error", err, "kind", kind)
		writeText(w, http.StatusBadRequest, InvalidRequestBody)
		return
	}

	logger.ErrorContext(ctx, "chat request failed", "error", err, "kind", kind)
	writeText(w, http.StatusInternalServerError, GenericErrorBody)
}

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// writeText writes a plain-text response.
func writeText(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(statusCode)
	_, _ = io.WriteString(w, message)
}
