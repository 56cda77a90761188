package stt

// STTTranscribeRequestEvent carries a recorded utterance into the pipeline.
// Audio is the compressed payload as uploaded; Format is the short container
// name when known ("webm", "wav", ...), empty to let the service sniff it.
type STTTranscribeRequestEvent struct {
	Audio    []byte
	Format   string
	Language string
}

func (e *STTTranscribeRequestEvent) GetId() string {
	return "stt.transcribe_request"
}

// STTProcessingEvent tells the client its audio was received and transcription
// is underway.
type STTProcessingEvent struct{}

func (e *STTProcessingEvent) GetId() string {
	return "stt.processing"
}

type STTFinalOutputEvent struct {
	Text     string
	Language string
	Model    string
}

func (e *STTFinalOutputEvent) GetId() string {
	return "stt.final_output"
}

type STTFailedEvent struct {
	Error string
}

func (e *STTFailedEvent) GetId() string {
	return "stt.failed"
}
