package player

import (
	"fmt"
	"sync"
	"time"

	"voicekit/core"
)

// State is the queue manager's position in its playback cycle.
type State int

const (
	// StateIdle means no active playback and an empty queue.
	StateIdle State = iota
	// StateDraining means no active playback while the player is between
	// chunks, either about to start the next one or waiting out the
	// inter-chunk delay.
	StateDraining
	// StatePlaying means one chunk is being rendered through a live resource.
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// Chunk is one synthesized audio fragment. Identity is (ResponseID,
// ChunkIndex); chunks are immutable after creation except for the Played
// flag, which is set once when playback finishes naturally.
type Chunk struct {
	ID         string
	ResponseID string
	ChunkIndex int
	Audio      []byte
	Text       string
	EnqueuedAt time.Time
	Played     bool
}

// Resource renders a single chunk to the output device. One resource is
// acquired per chunk and never reused.
//
// Play begins rendering and returns once playback is underway. Exactly one of
// onComplete or onError fires afterwards, at most once, and never
// synchronously from inside Play. Release stops rendering and frees the
// underlying handle; it is called on every exit path, must be safe to call
// after a callback has fired, and must not itself invoke the callbacks.
type Resource interface {
	Play(onComplete func(), onError func(err error)) error
	Release()
}

// ResourceFactory acquires a playback resource for the chunk about to play.
type ResourceFactory func(chunk *Chunk) (Resource, error)

// Status is a pure projection of player state for UI indicators.
type Status struct {
	QueueLength   int    `json:"queue_length"`
	IsPlaying     bool   `json:"is_playing"`
	ActiveChunkID string `json:"active_chunk_id,omitempty"`
}

type Config struct {
	// InterChunkDelay is the pause between one chunk ending and the next
	// starting, so back-to-back starts do not click.
	InterChunkDelay time.Duration `json:"inter_chunk_delay,omitempty"`
	// PlaybackTimeout bounds how long a chunk may render without reporting
	// completion or error before it is abandoned.
	PlaybackTimeout time.Duration `json:"playback_timeout,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		InterChunkDelay: 100 * time.Millisecond,
		PlaybackTimeout: 30 * time.Second,
	}
}

// Player plays audio chunks strictly in arrival order, one at a time. All
// transitions run under one mutex, so completion, error, timeout, stop and
// enqueue are serialised exactly like callbacks on a single-threaded event
// loop. A failed or timed-out chunk is dropped, never retried, and the queue
// keeps going.
type Player struct {
	// OnStatusChange, when set before first use, observes a status snapshot
	// after every transition. Called outside the player lock.
	OnStatusChange func(status Status)

	mu           sync.Mutex
	config       Config
	logger       *core.Logger
	newResource  ResourceFactory
	state        State
	queue        []*Chunk
	active       *Chunk
	resource     Resource
	epoch        uint64
	delayTimer   *time.Timer
	timeoutTimer *time.Timer
}

func NewPlayer(factory ResourceFactory, config Config, logger *core.Logger) *Player {
	if config.InterChunkDelay <= 0 {
		config.InterChunkDelay = DefaultConfig().InterChunkDelay
	}
	if config.PlaybackTimeout <= 0 {
		config.PlaybackTimeout = DefaultConfig().PlaybackTimeout
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Player{
		config:      config,
		logger:      logger.With(map[string]any{"component": "player"}),
		newResource: factory,
		state:       StateIdle,
	}
}

// ChunkID composes the identity string for a (responseID, chunkIndex) pair.
func ChunkID(responseID string, chunkIndex int) string {
	return fmt.Sprintf("%s:%d", responseID, chunkIndex)
}

// Enqueue appends a chunk to the queue tail and returns its identity. Chunks
// play in the exact order Enqueue was called; ResponseID and ChunkIndex tag
// the chunk for display grouping only and are never used to reorder. If the
// player is idle, playback starts immediately.
func (p *Player) Enqueue(audio []byte, text string, responseID string, chunkIndex int) string {
	if len(audio) == 0 || responseID == "" {
		p.logger.Warn("dropping invalid chunk", "response_id", responseID, "chunk_index", chunkIndex, "bytes", len(audio))
		return ""
	}

	chunk := &Chunk{
		ID:         ChunkID(responseID, chunkIndex),
		ResponseID: responseID,
		ChunkIndex: chunkIndex,
		Audio:      audio,
		Text:       text,
		EnqueuedAt: time.Now(),
	}

	p.mu.Lock()
	p.queue = append(p.queue, chunk)
	if p.state == StateIdle {
		p.state = StateDraining
		p.playNextLocked()
	}
	status := p.statusLocked()
	p.mu.Unlock()

	p.notify(status)
	return chunk.ID
}

// Stop releases any active playback immediately, discards all queued chunks
// and returns to idle. Safe to call in any state, any number of times.
func (p *Player) Stop() {
	p.mu.Lock()
	p.cancelTimersLocked()
	if p.resource != nil {
		p.resource.Release()
		p.resource = nil
	}
	p.active = nil
	p.queue = nil
	p.state = StateIdle
	status := p.statusLocked()
	p.mu.Unlock()

	p.notify(status)
}

// Status reports queue length, playback flag and the active chunk identity.
// No side effects.
func (p *Player) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusLocked()
}

func (p *Player) statusLocked() Status {
	status := Status{
		QueueLength: len(p.queue),
		IsPlaying:   p.state == StatePlaying,
	}
	if p.active != nil {
		status.ActiveChunkID = p.active.ID
	}
	return status
}

func (p *Player) notify(status Status) {
	if p.OnStatusChange != nil {
		p.OnStatusChange(status)
	}
}

// playNextLocked pops the head chunk and starts rendering it, or returns to
// idle when the queue is empty. Caller holds the mutex.
func (p *Player) playNextLocked() {
	if len(p.queue) == 0 {
		p.state = StateIdle
		p.active = nil
		return
	}

	chunk := p.queue[0]
	p.queue = p.queue[1:]
	p.active = chunk
	p.state = StatePlaying
	p.epoch++
	epoch := p.epoch

	resource, err := p.newResource(chunk)
	if err != nil {
		p.logger.Error("failed to acquire playback resource", "chunk", chunk.ID, "error", err.Error())
		p.finishPlaybackLocked(false)
		return
	}
	p.resource = resource

	onComplete := func() { p.playbackCompleted(epoch) }
	onError := func(playErr error) { p.playbackFailed(epoch, playErr) }
	if err := resource.Play(onComplete, onError); err != nil {
		p.logger.Error("failed to start playback", "chunk", chunk.ID, "error", err.Error())
		p.finishPlaybackLocked(false)
		return
	}

	p.timeoutTimer = time.AfterFunc(p.config.PlaybackTimeout, func() { p.playbackTimedOut(epoch) })
}

// finishPlaybackLocked tears down the active playback on any exit path and
// schedules the next chunk after the inter-chunk delay. Caller holds the
// mutex.
func (p *Player) finishPlaybackLocked(markPlayed bool) {
	if p.timeoutTimer != nil {
		p.timeoutTimer.Stop()
		p.timeoutTimer = nil
	}
	if p.resource != nil {
		p.resource.Release()
		p.resource = nil
	}
	if p.active != nil {
		if markPlayed {
			p.active.Played = true
		}
		p.active = nil
	}
	p.state = StateDraining
	p.delayTimer = time.AfterFunc(p.config.InterChunkDelay, p.delayElapsed)
}

func (p *Player) delayElapsed() {
	p.mu.Lock()
	if p.state != StateDraining {
		// Stop intervened while the delay was pending.
		p.mu.Unlock()
		return
	}
	p.delayTimer = nil
	p.playNextLocked()
	status := p.statusLocked()
	p.mu.Unlock()

	p.notify(status)
}

// playbackCompleted, playbackFailed and playbackTimedOut are the three
// terminal callbacks for an active chunk. Whichever arrives first wins; the
// epoch and state guards make the losers no-ops.
func (p *Player) playbackCompleted(epoch uint64) {
	p.mu.Lock()
	if epoch != p.epoch || p.state != StatePlaying {
		p.mu.Unlock()
		return
	}
	p.logger.Debug("chunk playback completed", "chunk", p.active.ID)
	p.finishPlaybackLocked(true)
	status := p.statusLocked()
	p.mu.Unlock()

	p.notify(status)
}

func (p *Player) playbackFailed(epoch uint64, err error) {
	p.mu.Lock()
	if epoch != p.epoch || p.state != StatePlaying {
		p.mu.Unlock()
		return
	}
	p.logger.Warn("chunk playback failed, skipping", "chunk", p.active.ID, "error", err.Error())
	p.finishPlaybackLocked(false)
	status := p.statusLocked()
	p.mu.Unlock()

	p.notify(status)
}

func (p *Player) playbackTimedOut(epoch uint64) {
	p.mu.Lock()
	if epoch != p.epoch || p.state != StatePlaying {
		p.mu.Unlock()
		return
	}
	p.logger.Warn("chunk playback timed out, abandoning", "chunk", p.active.ID, "timeout", p.config.PlaybackTimeout)
	p.finishPlaybackLocked(false)
	status := p.statusLocked()
	p.mu.Unlock()

	p.notify(status)
}

func (p *Player) cancelTimersLocked() {
	if p.delayTimer != nil {
		p.delayTimer.Stop()
		p.delayTimer = nil
	}
	if p.timeoutTimer != nil {
		p.timeoutTimer.Stop()
		p.timeoutTimer = nil
	}
}
