package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/matheus3301/parley/internal/api"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn    *grpc.ClientConn
	Session *SessionClient
	Chat    *ChatClient
	Message *MessageClient
	Sync    *SyncClient
}

// New dials the daemon's Unix domain socket and returns typed service clients.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(api.CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}

	return &Client{
		conn:    conn,
		Session: &SessionClient{conn: conn},
		Chat:    &ChatClient{conn: conn},
		Message: &MessageClient{conn: conn},
		Sync:    &SyncClient{conn: conn},
	}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func invoke[Resp any](ctx context.Context, conn *grpc.ClientConn, service, method string, req any) (*Resp, error) {
	out := new(Resp)
	if err := conn.Invoke(ctx, "/"+service+"/"+method, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

type SessionClient struct{ conn *grpc.ClientConn }

func (c *SessionClient) GetStatus(ctx context.Context) (*api.GetStatusResponse, error) {
	return invoke[api.GetStatusResponse](ctx, c.conn, api.SessionServiceName, "GetStatus", &api.GetStatusRequest{})
}

// WatchEvents calls fn for every streamed event until ctx is done, the
// daemon closes the stream, or fn returns an error.
func (c *SessionClient) WatchEvents(ctx context.Context, req *api.WatchEventsRequest, fn func(*api.Event) error) error {
	desc := &api.SessionServiceDesc.Streams[0]
	stream, err := c.conn.NewStream(ctx, desc, "/"+api.SessionServiceName+"/"+desc.StreamName)
	if err != nil {
		return err
	}
	if err := stream.SendMsg(req); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		evt := new(api.Event)
		if err := stream.RecvMsg(evt); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
}

type ChatClient struct{ conn *grpc.ClientConn }

func (c *ChatClient) ListChats(ctx context.Context, refresh bool) (*api.ListChatsResponse, error) {
	return invoke[api.ListChatsResponse](ctx, c.conn, api.ChatServiceName, "ListChats", &api.ListChatsRequest{Refresh: refresh})
}

func (c *ChatClient) GetChatDetails(ctx context.Context, chatID string) (*api.GetChatDetailsResponse, error) {
	return invoke[api.GetChatDetailsResponse](ctx, c.conn, api.ChatServiceName, "GetChatDetails", &api.GetChatDetailsRequest{ChatID: chatID})
}

func (c *ChatClient) ListMessages(ctx context.Context, chatID string, loadMore bool) (*api.ListMessagesResponse, error) {
	return invoke[api.ListMessagesResponse](ctx, c.conn, api.ChatServiceName, "ListMessages", &api.ListMessagesRequest{ChatID: chatID, LoadMore: loadMore})
}

func (c *ChatClient) ListContacts(ctx context.Context) (*api.ListContactsResponse, error) {
	return invoke[api.ListContactsResponse](ctx, c.conn, api.ChatServiceName, "ListContacts", &api.ListContactsRequest{})
}

type MessageClient struct{ conn *grpc.ClientConn }

func (c *MessageClient) SendMessage(ctx context.Context, chatID, content string) (*api.SendMessageResponse, error) {
	return invoke[api.SendMessageResponse](ctx, c.conn, api.MessageServiceName, "SendMessage", &api.SendMessageRequest{ChatID: chatID, Content: content})
}

func (c *MessageClient) Keystroke(ctx context.Context, chatID string) error {
	_, err := invoke[api.Empty](ctx, c.conn, api.MessageServiceName, "Keystroke", &api.ChatRequest{ChatID: chatID})
	return err
}

func (c *MessageClient) StopTyping(ctx context.Context, chatID string) error {
	_, err := invoke[api.Empty](ctx, c.conn, api.MessageServiceName, "StopTyping", &api.ChatRequest{ChatID: chatID})
	return err
}

type SyncClient struct{ conn *grpc.ClientConn }

func (c *SyncClient) Subscribe(ctx context.Context, chatID string) (*api.CommandResponse, error) {
	return invoke[api.CommandResponse](ctx, c.conn, api.SyncServiceName, "Subscribe", &api.ChatRequest{ChatID: chatID})
}

func (c *SyncClient) Unsubscribe(ctx context.Context, chatID string) (*api.CommandResponse, error) {
	return invoke[api.CommandResponse](ctx, c.conn, api.SyncServiceName, "Unsubscribe", &api.ChatRequest{ChatID: chatID})
}

func (c *SyncClient) GetTyping(ctx context.Context, chatID string) (*api.GetTypingResponse, error) {
	return invoke[api.GetTypingResponse](ctx, c.conn, api.SyncServiceName, "GetTyping", &api.ChatRequest{ChatID: chatID})
}

func (c *SyncClient) GetOnline(ctx context.Context) (*api.GetOnlineResponse, error) {
	return invoke[api.GetOnlineResponse](ctx, c.conn, api.SyncServiceName, "GetOnline", &api.Empty{})
}

func (c *SyncClient) Reconnect(ctx context.Context) error {
	_, err := invoke[api.Empty](ctx, c.conn, api.SyncServiceName, "Reconnect", &api.Empty{})
	return err
}
