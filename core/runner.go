package core

import (
	"context"
	"sync"
)

const runnerChanBuffer = 100

// Runner wires an ordered handler slice into a pipeline and owns its
// lifecycle. Each handler's output feeds the next handler's input; packets
// addressed to the top surface here, where the session can observe them.
type Runner struct {
	Handlers []IHandler

	// Finished is closed when the pipeline stops, either via Stop or after a
	// handler requests session end.
	Finished chan struct{}

	// OnTopPacket, when set before Start, observes every packet that reaches
	// the pipeline top. The session uses it to push client-facing events over
	// the wire.
	OnTopPacket func(packet *EventPacket)

	logger         *Logger
	ctx            context.Context
	cancel         context.CancelFunc
	topOutputChan  chan *EventPacket
	lastOutputChan chan *EventPacket
	inputChans     []chan *EventPacket
	stopOnce       sync.Once
}

func NewRunner(handlers []IHandler, logger *Logger) *Runner {
	if logger == nil {
		logger = GetLogger()
	}
	return &Runner{
		Handlers: handlers,
		Finished: make(chan struct{}),
		logger:   logger,
	}
}

// Start initializes and starts every handler, chaining each handler's output
// channel to the next handler's input.
func (r *Runner) Start() error {
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.topOutputChan = make(chan *EventPacket, runnerChanBuffer)
	r.lastOutputChan = make(chan *EventPacket, runnerChanBuffer)

	r.inputChans = make([]chan *EventPacket, len(r.Handlers))
	for i := range r.Handlers {
		r.inputChans[i] = make(chan *EventPacket, runnerChanBuffer)
	}

	for i, handler := range r.Handlers {
		var outputNextChan chan *EventPacket
		if i < len(r.Handlers)-1 {
			outputNextChan = r.inputChans[i+1]
		} else {
			outputNextChan = r.lastOutputChan
		}

		if err := handler.Initialize(r.inputChans[i], outputNextChan, r.topOutputChan, r.ctx); err != nil {
			r.cancel()
			return err
		}
		if err := handler.Start(); err != nil {
			r.cancel()
			return err
		}
	}

	go r.listenToOutputs()
	return nil
}

// Push delivers a packet to the head of the pipeline. The session uses it to
// inject events decoded from the browser.
func (r *Runner) Push(packet *EventPacket) error {
	if len(r.Handlers) == 0 {
		return nil
	}
	return r.Handlers[0].HandleEvent(packet)
}

func (r *Runner) listenToOutputs() {
	for {
		select {
		case packet := <-r.lastOutputChan:
			r.processFinalOutput(packet)
		case packet := <-r.topOutputChan:
			r.processTopOutput(packet)
		case <-r.ctx.Done():
			return
		}
	}
}

// processFinalOutput drops packets that fall off the end of the chain.
// Handlers forward events they do not consume, so reaching the tail is
// normal, not an error.
func (r *Runner) processFinalOutput(packet *EventPacket) {
	if packet == nil || packet.Event == nil {
		return
	}
	r.logger.Debug("packet reached pipeline tail", "event", packet.Event.GetId(), "relayer", packet.Relayer)
}

func (r *Runner) processTopOutput(packet *EventPacket) {
	if packet == nil || packet.Event == nil {
		return
	}

	switch event := packet.Event.(type) {
	case *CriticalErrorEvent:
		r.logger.Error("critical pipeline error", "error", event.Error, "relayer", packet.Relayer)
		if r.OnTopPacket != nil {
			r.OnTopPacket(packet)
		}
	case *EndSessionEvent:
		r.logger.Info("handler requested session end", "reason", event.Reason)
		if r.OnTopPacket != nil {
			r.OnTopPacket(packet)
		}
		go r.Stop()
	default:
		if r.OnTopPacket != nil {
			r.OnTopPacket(packet)
		}
		// Echo top-level events back through the head so every handler can
		// observe them.
		if len(r.Handlers) > 0 {
			echoed := NewEventPacket(packet.Event, EventRelayDestinationNextService, "Runner")
			if err := r.Handlers[0].HandleEvent(echoed); err != nil {
				r.logger.Error("failed to echo top event into pipeline", "event", packet.Event.GetId(), "error", err.Error())
			}
		}
	}
}

// Stop cancels the pipeline context and cleans up every handler. Safe to call
// more than once.
func (r *Runner) Stop() error {
	var firstErr error
	r.stopOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
		for _, handler := range r.Handlers {
			if err := handler.Cleanup(); err != nil {
				r.logger.Error("handler cleanup failed", "error", err.Error())
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		close(r.Finished)
	})
	return firstErr
}

// Reset returns every handler to its initial state without tearing the
// pipeline down.
func (r *Runner) Reset() error {
	var firstErr error
	for _, handler := range r.Handlers {
		if err := handler.Reset(); err != nil {
			r.logger.Error("handler reset failed", "error", err.Error())
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
