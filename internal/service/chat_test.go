package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"isd-finance-ai/internal/llm"
	"isd-finance-ai/internal/service"
	"isd-finance-ai/internal/service/mocks"
)

func init() {
	// Set default logger to discard output for cleaner test output
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// fakeStream replays fixed fragments and records Close.
type fakeStream struct {
	chunks []string
	closed bool
}

func (f *fakeStream) Recv() (string, error) {
	if len(f.chunks) == 0 {
		return "", io.EOF
	}
	chunk := f.chunks[0]
	f.chunks = f.chunks[1:]
	return chunk, nil
}

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

func TestNewChatService(t *testing.T) {
	ctrl := gomock.NewController(t)

	svc := service.NewChatService(mocks.NewMockContextRetriever(ctrl), mocks.NewMockCompletionClient(ctrl), service.Options{})
	if svc == nil {
		t.Fatal("NewChatService() returned nil")
	}
}

func TestChatService_StartChat(t *testing.T) {
	const question = "What was District X's 2022 budget?"
	const contextBlock = "District X 2022 budget: $10M"

	tests := []struct {
		name      string
		req       service.ChatRequest
		mockSetup func(r *mocks.MockContextRetriever, c *mocks.MockCompletionClient, stream *fakeStream)
		wantKind  string
	}{
		{
			name: "single user message",
			req: service.ChatRequest{
				Messages: []llm.Message{{Role: llm.RoleUser, Content: question}},
			},
			mockSetup: func(r *mocks.MockContextRetriever, c *mocks.MockCompletionClient, stream *fakeStream) {
				r.EXPECT().GetContext(gomock.Any(), question, "").Return(contextBlock, nil)
				c.EXPECT().
					StreamChat(gomock.Any(), gomock.Any()).
					DoAndReturn(func(ctx context.Context, prompt []llm.Message) (llm.Stream, error) {
						if len(prompt) != 2 {
							t.Fatalf("prompt has %d messages, want 2", len(prompt))
						}
						if prompt[0].Role != llm.RoleSystem || prompt[0].Content != service.BuildSystemPrompt(contextBlock) {
							t.Errorf("prompt[0] = %+v, want system message with context", prompt[0])
						}
						if !strings.Contains(prompt[0].Content, service.ContextStartMarker+"\n"+contextBlock+"\n"+service.ContextEndMarker) {
							t.Error("context block not found between markers")
						}
						if prompt[1] != (llm.Message{Role: llm.RoleUser, Content: question}) {
							t.Errorf("prompt[1] = %+v, want user question", prompt[1])
						}
						return stream, nil
					})
			},
		},
		{
			name: "retrieves with last message and forwards only user turns",
			req: service.ChatRequest{
				Namespace: "district-x",
				Messages: []llm.Message{
					{Role: llm.RoleSystem, Content: "be terse"},
					{Role: llm.RoleUser, Content: "q1"},
					{Role: llm.RoleAssistant, Content: "a1"},
					{Role: llm.RoleUser, Content: "q2"},
				},
			},
			mockSetup: func(r *mocks.MockContextRetriever, c *mocks.MockCompletionClient, stream *fakeStream) {
				r.EXPECT().GetContext(gomock.Any(), "q2", "district-x").Return("ctx", nil).Times(1)
				c.EXPECT().
					StreamChat(gomock.Any(), []llm.Message{
						{Role: llm.RoleSystem, Content: service.BuildSystemPrompt("ctx")},
						{Role: llm.RoleUser, Content: "q1"},
						{Role: llm.RoleUser, Content: "q2"},
					}).
					Return(stream, nil)
			},
		},
		{
			name: "empty conversation",
			req:  service.ChatRequest{},
			mockSetup: func(r *mocks.MockContextRetriever, c *mocks.MockCompletionClient, stream *fakeStream) {
				// No calls expected
			},
			wantKind: service.KindValidation,
		},
		{
			name: "retriever failure skips completion",
			req: service.ChatRequest{
				Messages: []llm.Message{{Role: llm.RoleUser, Content: question}},
			},
			mockSetup: func(r *mocks.MockContextRetriever, c *mocks.MockCompletionClient, stream *fakeStream) {
				r.EXPECT().GetContext(gomock.Any(), question, "").Return("", errors.New("vector store unavailable"))
			},
			wantKind: service.KindRetrieval,
		},
		{
			name: "completion failure",
			req: service.ChatRequest{
				Messages: []llm.Message{{Role: llm.RoleUser, Content: question}},
			},
			mockSetup: func(r *mocks.MockContextRetriever, c *mocks.MockCompletionClient, stream *fakeStream) {
				r.EXPECT().GetContext(gomock.Any(), question, "").Return(contextBlock, nil)
				c.EXPECT().StreamChat(gomock.Any(), gomock.Any()).Return(nil, errors.New("401 unauthorized"))
			},
			wantKind: service.KindCompletion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			retriever := mocks.NewMockContextRetriever(ctrl)
			completions := mocks.NewMockCompletionClient(ctrl)
			upstream := &fakeStream{chunks: []string{"Ten", " million"}}
			tt.mockSetup(retriever, completions, upstream)

			svc := service.NewChatService(retriever, completions, service.Options{
				RetrievalTimeout:  time.Second,
				CompletionTimeout: time.Minute,
			})

			stream, err := svc.StartChat(context.Background(), tt.req)

			if tt.wantKind != "" {
				if err == nil {
					t.Fatal("StartChat() expected error, got nil")
				}
				if got := service.ErrorKind(err); got != tt.wantKind {
					t.Errorf("ErrorKind() = %v, want %v (err: %v)", got, tt.wantKind, err)
				}
				if stream != nil {
					t.Error("StartChat() should not return a stream on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("StartChat() unexpected error: %v", err)
			}

			var got strings.Builder
			for {
				chunk, err := stream.Recv()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					t.Fatalf("Recv() error = %v", err)
				}
				got.WriteString(chunk)
			}
			if got.String() != "Ten million" {
				t.Errorf("stream body = %q, want %q", got.String(), "Ten million")
			}

			if err := stream.Close(); err != nil {
				t.Errorf("Close() error = %v", err)
			}
			if !upstream.closed {
				t.Error("Close() should close the upstream stream")
			}
		})
	}
}

func TestChatService_StartChat_EmptyIsValidationError(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := service.NewChatService(mocks.NewMockContextRetriever(ctrl), mocks.NewMockCompletionClient(ctrl), service.Options{})

	_, err := svc.StartChat(context.Background(), service.ChatRequest{Messages: []llm.Message{}})

	var validationErr *service.ValidationError
	if !errors.As(err, &validationErr) || validationErr.Field != "messages" {
		t.Errorf("StartChat() error = %v, want ValidationError on messages", err)
	}
}

func TestChatService_StartChat_RetrievalDeadline(t *testing.T) {
	ctrl := gomock.NewController(t)
	retriever := mocks.NewMockContextRetriever(ctrl)
	completions := mocks.NewMockCompletionClient(ctrl)

	retriever.EXPECT().
		GetContext(gomock.Any(), "q", "").
		DoAndReturn(func(ctx context.Context, query, namespace string) (string, error) {
			if _, ok := ctx.Deadline(); !ok {
				t.Error("retriever context should carry a deadline")
			}
			<-ctx.Done()
			return "", ctx.Err()
		})

	svc := service.NewChatService(retriever, completions, service.Options{RetrievalTimeout: 10 * time.Millisecond})
	_, err := svc.StartChat(context.Background(), service.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "q"}},
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("StartChat() error = %v, want deadline exceeded", err)
	}
	if service.ErrorKind(err) != service.KindRetrieval {
		t.Errorf("ErrorKind() = %v, want %v", service.ErrorKind(err), service.KindRetrieval)
	}
}

func TestChatService_StartChat_CloseCancelsCompletionContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	retriever := mocks.NewMockContextRetriever(ctrl)
	completions := mocks.NewMockCompletionClient(ctrl)

	var streamCtx context.Context
	retriever.EXPECT().GetContext(gomock.Any(), gomock.Any(), gomock.Any()).Return("", nil)
	completions.EXPECT().
		StreamChat(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ []llm.Message) (llm.Stream, error) {
			streamCtx = ctx
			return &fakeStream{}, nil
		})

	svc := service.NewChatService(retriever, completions, service.Options{})
	stream, err := svc.StartChat(context.Background(), service.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "q"}},
	})
	if err != nil {
		t.Fatalf("StartChat() error = %v", err)
	}

	if streamCtx.Err() != nil {
		t.Fatal("completion context should be live while the stream is open")
	}
	_ = stream.Close()
	if streamCtx.Err() == nil {
		t.Error("Close() should cancel the completion context")
	}
}
