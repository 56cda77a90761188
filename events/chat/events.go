package chat

// ChatUserMessageEvent carries a typed user message into the pipeline. Spoken
// messages arrive as stt.final_output instead; the chat handler consumes both.
type ChatUserMessageEvent struct {
	Text string
}

func (e *ChatUserMessageEvent) GetId() string {
	return "chat.user_message"
}

type ChatResponseStartedEvent struct {
	ResponseID string
}

func (e *ChatResponseStartedEvent) GetId() string {
	return "chat.response_started"
}

// ChatSentenceEvent carries one complete sentence extracted from the response
// stream. Index orders sentences within their response; synthesis and
// playback preserve it.
type ChatSentenceEvent struct {
	ResponseID string
	Index      int
	Text       string
}

func (e *ChatSentenceEvent) GetId() string {
	return "chat.sentence"
}

type ChatResponseCompletedEvent struct {
	ResponseID string
	FullText   string // The complete response text.
}

func (e *ChatResponseCompletedEvent) GetId() string {
	return "chat.response_completed"
}

type ChatFailedEvent struct {
	Error string
}

func (e *ChatFailedEvent) GetId() string {
	return "chat.failed"
}
