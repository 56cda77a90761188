package chat

type ChatConfig struct {
	HistoryWindow int // Number of most recent messages included in each completion request.
}

func DefaultConfig() ChatConfig {
	return ChatConfig{
		HistoryWindow: 10,
	}
}
