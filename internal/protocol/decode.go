package protocol

import (
	"encoding/json"
	"fmt"
)

// Decode turns an envelope into its typed event variant. Unrecognized types
// yield Unknown and no error.
func Decode(env Envelope) (Event, error) {
	switch env.Type {
	case TypePresence:
		return decodeAs[Presence](env)
	case TypeTyping:
		return decodeAs[TypingEvent](env)
	case TypeStopTyping:
		return decodeAs[StopTypingEvent](env)
	case TypeUserOnline:
		return decodeAs[UserOnline](env)
	case TypeUserOffline:
		return decodeAs[UserOffline](env)
	case TypeMessage:
		return decodeAs[NewMessage](env)
	case TypeMessageEdited:
		evt, err := decodeAs[MessageEdited](env)
		if err == nil && evt.EditedAt == nil {
			return nil, fmt.Errorf("%w: message_edited without editedAt", ErrMalformedFrame)
		}
		return evt, err
	case TypeMessageDeleted:
		return decodeAs[MessageDeleted](env)
	case TypeReadReceipt:
		return decodeAs[ReadReceipt](env)
	case TypeDeliveryReceipt:
		return decodeAs[DeliveryReceipt](env)
	case TypeReactionAdded:
		return decodeAs[ReactionAdded](env)
	case TypeReactionRemoved:
		return decodeAs[ReactionRemoved](env)
	case TypeContactRequest:
		return decodeAs[ContactRequest](env)
	case TypeContactAccepted:
		return decodeAs[ContactAccepted](env)
	case TypeContactRemoved:
		return decodeAs[ContactRemoved](env)
	case TypeRemovedFromChat:
		return decodeAs[RemovedFromChat](env)
	case TypeAddedToChat:
		return decodeAs[AddedToChat](env)
	case TypeParticipantsChanged:
		return decodeAs[ParticipantsChanged](env)
	case TypeChatSettingsUpdated:
		return decodeAs[ChatSettingsUpdated](env)
	case TypeError:
		return decodeAs[ServerError](env)
	default:
		return Unknown{Kind: env.Type, Payload: env.Payload}, nil
	}
}

func decodeAs[E Event](env Envelope) (E, error) {
	var evt E
	if len(env.Payload) == 0 {
		return evt, fmt.Errorf("%w: %s without payload", ErrMalformedFrame, env.Type)
	}
	if err := json.Unmarshal(env.Payload, &evt); err != nil {
		return evt, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return evt, nil
}
