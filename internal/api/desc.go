package api

import (
	"context"

	"google.golang.org/grpc"
)

// Fully-qualified service names on the wire.
const (
	SessionServiceName = "parley.v1.SessionService"
	ChatServiceName    = "parley.v1.ChatService"
	MessageServiceName = "parley.v1.MessageService"
	SyncServiceName    = "parley.v1.SyncService"
)

// SessionServer reports daemon state and streams bus events.
type SessionServer interface {
	GetStatus(context.Context, *GetStatusRequest) (*GetStatusResponse, error)
	WatchEvents(*WatchEventsRequest, EventStream) error
}

// ChatServer serves cached chats and history.
type ChatServer interface {
	ListChats(context.Context, *ListChatsRequest) (*ListChatsResponse, error)
	GetChatDetails(context.Context, *GetChatDetailsRequest) (*GetChatDetailsResponse, error)
	ListMessages(context.Context, *ListMessagesRequest) (*ListMessagesResponse, error)
	ListContacts(context.Context, *ListContactsRequest) (*ListContactsResponse, error)
}

// MessageServer sends messages and local typing activity.
type MessageServer interface {
	SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error)
	Keystroke(context.Context, *ChatRequest) (*Empty, error)
	StopTyping(context.Context, *ChatRequest) (*Empty, error)
}

// SyncServer controls chat subscriptions and exposes presence.
type SyncServer interface {
	Subscribe(context.Context, *ChatRequest) (*CommandResponse, error)
	Unsubscribe(context.Context, *ChatRequest) (*CommandResponse, error)
	GetTyping(context.Context, *ChatRequest) (*GetTypingResponse, error)
	GetOnline(context.Context, *Empty) (*GetOnlineResponse, error)
	Reconnect(context.Context, *Empty) (*Empty, error)
}

// EventStream is the server side of WatchEvents.
type EventStream interface {
	Send(*Event) error
	Context() context.Context
}

type eventStream struct {
	grpc.ServerStream
}

func (s eventStream) Send(evt *Event) error {
	return s.SendMsg(evt)
}

// unary builds a method descriptor that decodes Req and invokes call on the
// registered implementation S.
func unary[S, Req, Resp any](service, method string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionServiceName,
	HandlerType: (*SessionServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(SessionServiceName, "GetStatus", SessionServer.GetStatus),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(WatchEventsRequest)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(SessionServer).WatchEvents(in, eventStream{stream})
			},
		},
	},
}

var ChatServiceDesc = grpc.ServiceDesc{
	ServiceName: ChatServiceName,
	HandlerType: (*ChatServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(ChatServiceName, "ListChats", ChatServer.ListChats),
		unary(ChatServiceName, "GetChatDetails", ChatServer.GetChatDetails),
		unary(ChatServiceName, "ListMessages", ChatServer.ListMessages),
		unary(ChatServiceName, "ListContacts", ChatServer.ListContacts),
	},
}

var MessageServiceDesc = grpc.ServiceDesc{
	ServiceName: MessageServiceName,
	HandlerType: (*MessageServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MessageServiceName, "SendMessage", MessageServer.SendMessage),
		unary(MessageServiceName, "Keystroke", MessageServer.Keystroke),
		unary(MessageServiceName, "StopTyping", MessageServer.StopTyping),
	},
}

var SyncServiceDesc = grpc.ServiceDesc{
	ServiceName: SyncServiceName,
	HandlerType: (*SyncServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(SyncServiceName, "Subscribe", SyncServer.Subscribe),
		unary(SyncServiceName, "Unsubscribe", SyncServer.Unsubscribe),
		unary(SyncServiceName, "GetTyping", SyncServer.GetTyping),
		unary(SyncServiceName, "GetOnline", SyncServer.GetOnline),
		unary(SyncServiceName, "Reconnect", SyncServer.Reconnect),
	},
}

// Register adds all control services to s.
func Register(s grpc.ServiceRegistrar, session SessionServer, chat ChatServer, message MessageServer, sync SyncServer) {
	s.RegisterService(&SessionServiceDesc, session)
	s.RegisterService(&ChatServiceDesc, chat)
	s.RegisterService(&MessageServiceDesc, message)
	s.RegisterService(&SyncServiceDesc, sync)
}
