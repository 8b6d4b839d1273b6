package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		want    EventType
		wantErr bool
	}{
		{"valid", `{"type":"typing","payload":{"chatId":"c1"}}`, TypeTyping, false},
		{"no payload", `{"type":"presence"}`, TypePresence, false},
		{"not json", `{"type":`, "", true},
		{"array", `[1,2]`, "", true},
		{"missing type", `{"payload":{}}`, "", true},
		{"numeric type", `{"type":3,"payload":{}}`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := ParseEnvelope([]byte(tt.frame))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedFrame) {
					t.Fatalf("ParseEnvelope() error = %v, want ErrMalformedFrame", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEnvelope() error = %v", err)
			}
			if env.Type != tt.want {
				t.Errorf("Type = %q, want %q", env.Type, tt.want)
			}
		})
	}
}

func TestDecodeMessage(t *testing.T) {
	frame := `{"type":"message","payload":{"id":"m1","chatId":"c1","senderId":"u2","type":"text","content":"hi","createdAt":"2026-01-02T03:04:05Z","updatedAt":"2026-01-02T03:04:05Z","clientId":"temp-1"}}`
	env, err := ParseEnvelope([]byte(frame))
	if err != nil {
		t.Fatal(err)
	}
	evt, err := Decode(env)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	msg, ok := evt.(NewMessage)
	if !ok {
		t.Fatalf("Decode() = %T, want NewMessage", evt)
	}
	if msg.ID != "m1" || msg.ChatID != "c1" || msg.Content != "hi" || msg.ClientID != "temp-1" {
		t.Errorf("unexpected message: %+v", msg)
	}
	if msg.SenderID == nil || *msg.SenderID != "u2" {
		t.Errorf("SenderID = %v, want u2", msg.SenderID)
	}
}

func TestDecodeSystemMessageHasNilSender(t *testing.T) {
	env, _ := ParseEnvelope([]byte(`{"type":"message","payload":{"id":"m1","chatId":"c1","senderId":null,"type":"system","content":"x joined","createdAt":"2026-01-02T03:04:05Z","updatedAt":"2026-01-02T03:04:05Z"}}`))
	evt, err := Decode(env)
	if err != nil {
		t.Fatal(err)
	}
	if evt.(NewMessage).SenderID != nil {
		t.Error("system message should have nil sender")
	}
}

func TestDecodeEditedRequiresEditedAt(t *testing.T) {
	env, _ := ParseEnvelope([]byte(`{"type":"message_edited","payload":{"id":"m1","chatId":"c1","content":"x","createdAt":"2026-01-02T03:04:05Z","updatedAt":"2026-01-02T03:04:05Z"}}`))
	if _, err := Decode(env); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("Decode() error = %v, want ErrMalformedFrame", err)
	}
}

func TestDecodeUnknown(t *testing.T) {
	env, _ := ParseEnvelope([]byte(`{"type":"call_started","payload":{"chatId":"c1"}}`))
	evt, err := Decode(env)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	u, ok := evt.(Unknown)
	if !ok {
		t.Fatalf("Decode() = %T, want Unknown", evt)
	}
	if u.Type() != "call_started" {
		t.Errorf("Type() = %q", u.Type())
	}
	if string(u.Payload) != `{"chatId":"c1"}` {
		t.Errorf("Payload = %s", u.Payload)
	}
}

func TestDecodeBadPayload(t *testing.T) {
	env, _ := ParseEnvelope([]byte(`{"type":"user_online","payload":{"userId":42}}`))
	if _, err := Decode(env); err == nil {
		t.Error("Decode() should fail on mistyped payload field")
	}
	env, _ = ParseEnvelope([]byte(`{"type":"user_online"}`))
	if _, err := Decode(env); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("Decode() error = %v, want ErrMalformedFrame", err)
	}
}

func TestDecodeVariants(t *testing.T) {
	tests := []struct {
		frame string
		want  EventType
	}{
		{`{"type":"presence","payload":{"status":"connected","subscribedChats":["a"]}}`, TypePresence},
		{`{"type":"stop_typing","payload":{"chatId":"c"}}`, TypeStopTyping},
		{`{"type":"user_offline","payload":{"userId":"u"}}`, TypeUserOffline},
		{`{"type":"message_deleted","payload":{"chatId":"c","messageId":"m"}}`, TypeMessageDeleted},
		{`{"type":"read_receipt","payload":{"chatId":"c","userId":"u","readAt":"2026-01-02T03:04:05Z"}}`, TypeReadReceipt},
		{`{"type":"delivery_receipt","payload":{"chatId":"c","messageIds":["m"],"userId":"u","deliveredAt":"2026-01-02T03:04:05Z"}}`, TypeDeliveryReceipt},
		{`{"type":"reaction_added","payload":{"messageId":"m","chatId":"c","userId":"u","emoji":"👍","user":{"id":"u","name":"U","image":null}}}`, TypeReactionAdded},
		{`{"type":"reaction_removed","payload":{"messageId":"m","chatId":"c","userId":"u","emoji":"👍","user":{"id":"u","name":"U","image":null}}}`, TypeReactionRemoved},
		{`{"type":"contact_request","payload":{"id":"r","from":{"id":"u","name":"U","email":"u@x","image":null},"createdAt":"2026-01-02T03:04:05Z"}}`, TypeContactRequest},
		{`{"type":"contact_accepted","payload":{"id":"r","user":{"id":"u","name":"U","email":"u@x","image":null},"acceptedAt":"2026-01-02T03:04:05Z"}}`, TypeContactAccepted},
		{`{"type":"contact_removed","payload":{"chatId":"c","contactName":"U"}}`, TypeContactRemoved},
		{`{"type":"removed_from_chat","payload":{"chatId":"c","chatName":"G","removedBy":null}}`, TypeRemovedFromChat},
		{`{"type":"added_to_chat","payload":{"chatId":"c"}}`, TypeAddedToChat},
		{`{"type":"participants_changed","payload":{"chatId":"c"}}`, TypeParticipantsChanged},
		{`{"type":"chat_settings_updated","payload":{"chatId":"c","isMuted":true}}`, TypeChatSettingsUpdated},
		{`{"type":"error","payload":{"message":"boom"}}`, TypeError},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			env, err := ParseEnvelope([]byte(tt.frame))
			if err != nil {
				t.Fatal(err)
			}
			evt, err := Decode(env)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if evt.Type() != tt.want {
				t.Errorf("Type() = %q, want %q", evt.Type(), tt.want)
			}
			if _, unknown := evt.(Unknown); unknown {
				t.Error("known type decoded as Unknown")
			}
		})
	}
}

func TestEncodeCommand(t *testing.T) {
	data, err := EncodeCommand(StopTyping("c9"))
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		Type    string `json:"type"`
		Payload struct {
			ChatID string `json:"chatId"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Type != "stop_typing" || got.Payload.ChatID != "c9" {
		t.Errorf("EncodeCommand() = %s", data)
	}
}
