package api

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/presence"
	"github.com/matheus3301/parley/internal/transport"
	"github.com/matheus3301/parley/internal/typing"
)

const watchBuffer = 256

// SessionService implements the SessionService gRPC service.
type SessionService struct {
	sessionName string
	server      string
	startedAt   time.Time
	transport   *transport.Transport
	presence    *presence.Store
	typing      *typing.Debouncer
	bus         *bus.Bus
	logger      *zap.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// NewSessionService creates a new session service. server is the websocket
// address the daemon connects to.
func NewSessionService(sessionName, server string, t *transport.Transport, p *presence.Store, d *typing.Debouncer, b *bus.Bus, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		sessionName: sessionName,
		server:      server,
		startedAt:   time.Now(),
		transport:   t,
		presence:    p,
		typing:      d,
		bus:         b,
		logger:      logger,
		closed:      make(chan struct{}),
	}
}

// Close ends every open WatchEvents stream so the server can stop gracefully.
func (s *SessionService) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

func (s *SessionService) GetStatus(_ context.Context, _ *GetStatusRequest) (*GetStatusResponse, error) {
	resp := &GetStatusResponse{
		Session:         s.sessionName,
		Server:          s.server,
		Status:          s.presence.Status(),
		UptimeMs:        time.Since(s.startedAt).Milliseconds(),
		SubscribedChats: s.presence.SubscribedChats(),
		OnlineUsers:     s.presence.OnlineUsers(),
	}
	if s.transport != nil {
		resp.QueuedCommands = s.transport.QueueLen()
	}
	if s.typing != nil {
		resp.TypingIn = s.typing.Active()
	}
	return resp, nil
}

// WatchEvents streams bus events until the client goes away. Events the
// stream cannot keep up with are dropped by the bus.
func (s *SessionService) WatchEvents(req *WatchEventsRequest, stream EventStream) error {
	ch, unsubscribe := s.bus.Subscribe("", watchBuffer)
	defer unsubscribe()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.closed:
			return nil
		case evt := <-ch:
			if !matchesNamespace(evt.Kind, req.Namespaces) {
				continue
			}
			out, err := toEvent(evt)
			if err != nil {
				s.logger.Warn("skipping unencodable event", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.Send(out); err != nil {
				return err
			}
		}
	}
}

func matchesNamespace(kind string, namespaces []string) bool {
	if len(namespaces) == 0 {
		return true
	}
	for _, ns := range namespaces {
		if strings.HasPrefix(kind, ns) {
			return true
		}
	}
	return false
}

func toEvent(evt bus.Event) (*Event, error) {
	out := &Event{
		ID:              uuid.NewString(),
		Kind:            evt.Kind,
		TimestampUnixMs: evt.Timestamp.UnixMilli(),
	}
	if evt.Payload != nil {
		payload, err := json.Marshal(evt.Payload)
		if err != nil {
			return nil, err
		}
		out.Payload = payload
	}
	return out, nil
}
