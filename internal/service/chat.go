package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_context_retriever.go -package=mocks isd-finance-ai/internal/service ContextRetriever
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_completion_client.go -package=mocks isd-finance-ai/internal/service CompletionClient
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_chat_service.go -package=mocks -mock_names=ChatService=MockChatService isd-finance-ai/internal/service ChatService

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"isd-finance-ai/internal/contextutil"
	"isd-finance-ai/internal/llm"
)

// ContextRetriever returns the text block that grounds an answer to query.
// This interface is defined from the service layer's perspective (consumer-first).
type ContextRetriever interface {
	GetContext(ctx context.Context, query, namespace string) (string, error)
}

// CompletionClient opens streaming chat completions.
type CompletionClient interface {
	StreamChat(ctx context.Context, messages []llm.Message) (llm.Stream, error)
}

// ChatRequest represents a chat request in the domain layer.
type ChatRequest struct {
	// Messages is the caller's conversation, oldest first.
	Messages []llm.Message
	// Namespace optionally scopes context retrieval.
	Namespace string
}

// ChatService provides chat functionality.
type ChatService interface {
	// StartChat retrieves context for the latest message, assembles the prompt
	// and opens the completion stream. Every error is returned before any
	// fragment has been produced. The caller must Close the returned stream.
	StartChat(ctx context.Context, req ChatRequest) (llm.Stream, error)
}

// Options holds the deadlines applied to outbound calls. Zero disables a deadline.
type Options struct {
	RetrievalTimeout  time.Duration
	CompletionTimeout time.Duration
}

// chatService implements ChatService.
type chatService struct {
	retriever   ContextRetriever
	completions CompletionClient
	opts        Options
	tracer      trace.Tracer
}

// NewChatService creates a new ChatService.
func NewChatService(retriever ContextRetriever, completions CompletionClient, opts Options) ChatService {
	return &chatService{
		retriever:   retriever,
		completions: completions,
		opts:        opts,
		tracer:      otel.Tracer("isd-finance-ai/internal/service"),
	}
}

// StartChat implements ChatService.
func (s *chatService) StartChat(ctx context.Context, req ChatRequest) (llm.Stream, error) {
	ctx, span := s.tracer.Start(ctx, "ChatService.StartChat")
	defer span.End()
	logger := contextutil.LoggerFromContext(ctx)

	span.SetAttributes(attribute.Int("chat.messages", len(req.Messages)))

	if len(req.Messages) == 0 {
		err := &ValidationError{
			Field:   "messages",
			Message: "must not be empty",
		}
		logger.WarnContext(ctx, "empty conversation in chat request")
		recordError(span, err)
		return nil, err
	}

	latest := req.Messages[len(req.Messages)-1]

	retrievalCtx, cancelRetrieval := withOptionalTimeout(ctx, s.opts.RetrievalTimeout)
	contextBlock, err := s.retriever.GetContext(retrievalCtx, latest.Content, req.Namespace)
	cancelRetrieval()
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrContextRetrieval, err)
		recordError(span, err)
		return nil, err
	}

	prompt := BuildPrompt(contextBlock, req.Messages)

	// The completion deadline spans the whole stream, so its cancel func
	// travels with the stream and runs on Close.
	completionCtx, cancelCompletion := withOptionalTimeout(ctx, s.opts.CompletionTimeout)
	stream, err := s.completions.StreamChat(completionCtx, prompt)
	if err != nil {
		cancelCompletion()
		err = fmt.Errorf("%w: %w", ErrCompletion, err)
		recordError(span, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("chat.prompt_messages", len(prompt)),
		attribute.Int("chat.context_length", len(contextBlock)),
	)
	logger.InfoContext(ctx, "completion stream opened",
		"messages", len(req.Messages),
		"prompt_messages", len(prompt),
		"context_length", len(contextBlock),
	)

	return &cancelOnClose{Stream: stream, cancel: cancelCompletion}, nil
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func recordError(span trace.Span, err error) {
	kind := ErrorKind(err)
	span.RecordError(err)
	span.SetAttributes(attribute.String("error.kind", kind))
	span.SetStatus(codes.Error, kind)
}

// cancelOnClose releases the completion deadline once the stream is closed.
type cancelOnClose struct {
	llm.Stream
	cancel context.CancelFunc
}

func (s *cancelOnClose) Close() error {
	defer s.cancel()
	return s.Stream.Close()
}
