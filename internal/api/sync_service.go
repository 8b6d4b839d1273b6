package api

import (
	"context"

	"go.uber.org/zap"

	"github.com/matheus3301/parley/internal/presence"
	"github.com/matheus3301/parley/internal/protocol"
	"github.com/matheus3301/parley/internal/status"
	"github.com/matheus3301/parley/internal/transport"
)

// SyncService implements the SyncService gRPC service.
type SyncService struct {
	transport *transport.Transport
	presence  *presence.Store
	wsURL     string
	logger    *zap.Logger
}

func NewSyncService(t *transport.Transport, p *presence.Store, wsURL string, logger *zap.Logger) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{transport: t, presence: p, wsURL: wsURL, logger: logger}
}

func (s *SyncService) Subscribe(_ context.Context, req *ChatRequest) (*CommandResponse, error) {
	if err := requireChat(req.ChatID); err != nil {
		return nil, err
	}
	return s.send(protocol.Subscribe(req.ChatID)), nil
}

func (s *SyncService) Unsubscribe(_ context.Context, req *ChatRequest) (*CommandResponse, error) {
	if err := requireChat(req.ChatID); err != nil {
		return nil, err
	}
	return s.send(protocol.Unsubscribe(req.ChatID)), nil
}

func (s *SyncService) send(cmd protocol.Command) *CommandResponse {
	queued := s.transport.Status() != status.Connected
	s.transport.Send(cmd)
	return &CommandResponse{Queued: queued}
}

func (s *SyncService) GetTyping(_ context.Context, req *ChatRequest) (*GetTypingResponse, error) {
	if err := requireChat(req.ChatID); err != nil {
		return nil, err
	}
	users := s.presence.TypingUsers(req.ChatID)
	if users == nil {
		users = []string{}
	}
	return &GetTypingResponse{ChatID: req.ChatID, UserIDs: users}, nil
}

func (s *SyncService) GetOnline(_ context.Context, _ *Empty) (*GetOnlineResponse, error) {
	users := s.presence.OnlineUsers()
	if users == nil {
		users = []string{}
	}
	return &GetOnlineResponse{UserIDs: users}, nil
}

// Reconnect starts a fresh connection attempt, resetting the retry budget.
// It is the way out of disconnected after retries are exhausted.
func (s *SyncService) Reconnect(_ context.Context, _ *Empty) (*Empty, error) {
	s.logger.Info("reconnect requested", zap.String("url", s.wsURL))
	s.transport.Connect(s.wsURL, s.presence.SetStatus)
	return &Empty{}, nil
}
