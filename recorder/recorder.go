package recorder

import (
	"bytes"
	"sync"
	"time"

	"voicekit/core"
)

// State is the recording toggle position.
type State int

const (
	StateIdle State = iota
	StateRecording
)

func (s State) String() string {
	if s == StateRecording {
		return "recording"
	}
	return "idle"
}

// Consumer receives the packaged capture when recording stops.
type Consumer func(audio []byte, startedAt time.Time)

// Recorder is a two-state toggle around microphone capture. The browser does
// the actual device capture; the recorder tracks the session's recording
// state, buffers interim frames, and hands the accumulated audio to the
// consumer on stop.
type Recorder struct {
	mu        sync.Mutex
	state     State
	buf       bytes.Buffer
	startedAt time.Time
	consumer  Consumer
	logger    *core.Logger
}

func NewRecorder(consumer Consumer, logger *core.Logger) *Recorder {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Recorder{
		consumer: consumer,
		logger:   logger.With(map[string]any{"component": "recorder"}),
	}
}

// Start begins a new capture. Calling Start while already recording is a
// no-op; the current state is returned either way.
func (r *Recorder) Start() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateRecording {
		r.logger.Warn("start ignored, already recording")
		return r.state
	}
	r.state = StateRecording
	r.buf.Reset()
	r.startedAt = time.Now()
	return r.state
}

// Append buffers an interim audio frame. Frames arriving while idle are
// dropped.
func (r *Recorder) Append(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRecording {
		return
	}
	r.buf.Write(data)
}

// Stop packages the accumulated audio and hands it to the consumer. Calling
// Stop while idle is a no-op; the current state is returned either way.
func (r *Recorder) Stop() State {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		return StateIdle
	}
	audio := make([]byte, r.buf.Len())
	copy(audio, r.buf.Bytes())
	startedAt := r.startedAt
	r.buf.Reset()
	r.state = StateIdle
	consumer := r.consumer
	r.mu.Unlock()

	if consumer != nil && len(audio) > 0 {
		consumer(audio, startedAt)
	}
	return StateIdle
}

// State reports the current toggle position.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}
