package protocol

// CommandKind enumerates the outbound command variants.
type CommandKind string

const (
	CmdSubscribe   CommandKind = "subscribe"
	CmdUnsubscribe CommandKind = "unsubscribe"
	CmdTyping      CommandKind = "typing"
	CmdStopTyping  CommandKind = "stop_typing"
)

// Command is an outbound command. All variants carry only a chat id.
type Command struct {
	Kind   CommandKind
	ChatID string
}

type commandPayload struct {
	ChatID string `json:"chatId"`
}

func Subscribe(chatID string) Command   { return Command{Kind: CmdSubscribe, ChatID: chatID} }
func Unsubscribe(chatID string) Command { return Command{Kind: CmdUnsubscribe, ChatID: chatID} }
func Typing(chatID string) Command      { return Command{Kind: CmdTyping, ChatID: chatID} }
func StopTyping(chatID string) Command  { return Command{Kind: CmdStopTyping, ChatID: chatID} }
