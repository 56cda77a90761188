package playback

// PlaybackChunkStartedEvent is emitted when a chunk becomes the active one.
// The session pushes the audio to the client at exactly this moment, so the
// browser renders chunks in the player's order.
type PlaybackChunkStartedEvent struct {
	ResponseID string
	ChunkIndex int
	Audio      []byte
	Text       string
}

func (e *PlaybackChunkStartedEvent) GetId() string {
	return "playback.chunk_started"
}

// PlaybackFinishedEvent is the client's acknowledgement that it finished
// rendering a chunk.
type PlaybackFinishedEvent struct {
	ResponseID string
	ChunkIndex int
	Failed     bool   // True when the client reports a decode or playback error.
	Error      string // Client-supplied detail when Failed.
}

func (e *PlaybackFinishedEvent) GetId() string {
	return "playback.finished"
}

// PlaybackStopEvent requests that queued and active playback be discarded,
// for example when the user starts a new recording.
type PlaybackStopEvent struct{}

func (e *PlaybackStopEvent) GetId() string {
	return "playback.stop"
}

// PlaybackStatusEvent is a projection of the playback queue for UI
// indicators.
type PlaybackStatusEvent struct {
	QueueLength   int
	IsPlaying     bool
	ActiveChunkID string
}

func (e *PlaybackStatusEvent) GetId() string {
	return "playback.status"
}
