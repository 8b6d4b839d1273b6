package api

import (
	"context"
	"strings"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/matheus3301/parley/internal/query"
	"github.com/matheus3301/parley/internal/typing"
)

// MessageService implements the MessageService gRPC service.
type MessageService struct {
	query  *query.Client
	typing *typing.Debouncer
}

func NewMessageService(q *query.Client, d *typing.Debouncer) *MessageService {
	return &MessageService{query: q, typing: d}
}

// SendMessage ends any typing indicator in the chat, then sends optimistically.
func (s *MessageService) SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResponse, error) {
	if err := requireChat(req.ChatID); err != nil {
		return nil, err
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "message content is empty")
	}
	s.typing.Stop(req.ChatID)
	msg, err := s.query.SendMessage(ctx, req.ChatID, content)
	if err != nil {
		return nil, toStatus("send message", err)
	}
	return &SendMessageResponse{Message: msg}, nil
}

func (s *MessageService) Keystroke(_ context.Context, req *ChatRequest) (*Empty, error) {
	if err := requireChat(req.ChatID); err != nil {
		return nil, err
	}
	s.typing.Keystroke(req.ChatID)
	return &Empty{}, nil
}

func (s *MessageService) StopTyping(_ context.Context, req *ChatRequest) (*Empty, error) {
	if err := requireChat(req.ChatID); err != nil {
		return nil, err
	}
	s.typing.Stop(req.ChatID)
	return &Empty{}, nil
}
