package api

import (
	"context"

	"github.com/matheus3301/parley/internal/query"
	"github.com/matheus3301/parley/internal/store"
)

// ChatService implements the ChatService gRPC service over the query client.
type ChatService struct {
	query *query.Client
	cache *store.Cache
}

func NewChatService(q *query.Client, cache *store.Cache) *ChatService {
	return &ChatService{query: q, cache: cache}
}

func (s *ChatService) ListChats(ctx context.Context, req *ListChatsRequest) (*ListChatsResponse, error) {
	if req.Refresh {
		s.cache.Invalidate(store.KeyChats)
	}
	chats, err := s.query.Chats(ctx)
	if err != nil {
		return nil, toStatus("list chats", err)
	}
	return &ListChatsResponse{Chats: chats}, nil
}

func (s *ChatService) GetChatDetails(ctx context.Context, req *GetChatDetailsRequest) (*GetChatDetailsResponse, error) {
	if err := requireChat(req.ChatID); err != nil {
		return nil, err
	}
	details, err := s.query.ChatDetails(ctx, req.ChatID)
	if err != nil {
		return nil, toStatus("chat details", err)
	}
	return &GetChatDetailsResponse{Details: details}, nil
}

func (s *ChatService) ListMessages(ctx context.Context, req *ListMessagesRequest) (*ListMessagesResponse, error) {
	if err := requireChat(req.ChatID); err != nil {
		return nil, err
	}
	if req.LoadMore {
		mp, hasMore, err := s.query.LoadMore(ctx, req.ChatID)
		if err != nil {
			return nil, toStatus("load more messages", err)
		}
		return &ListMessagesResponse{Messages: mp.Messages(), HasMore: hasMore}, nil
	}
	mp, err := s.query.Messages(ctx, req.ChatID)
	if err != nil {
		return nil, toStatus("list messages", err)
	}
	return &ListMessagesResponse{Messages: mp.Messages(), HasMore: mp.NextCursor() != ""}, nil
}

func (s *ChatService) ListContacts(ctx context.Context, _ *ListContactsRequest) (*ListContactsResponse, error) {
	contacts, err := s.query.Contacts(ctx)
	if err != nil {
		return nil, toStatus("list contacts", err)
	}
	pending, err := s.query.PendingRequests(ctx)
	if err != nil {
		return nil, toStatus("list pending requests", err)
	}
	return &ListContactsResponse{Contacts: contacts, Pending: pending}, nil
}
