package factories

import (
	"context"
	"fmt"

	"voicekit/core"
)

// Pipeline bundles a session's constructed handlers with the runner that
// drives them.
type Pipeline struct {
	Runner   *core.Runner
	Handlers *SessionHandlers

	logger *core.Logger
}

// BuildPipeline constructs all session handlers and wires them into a
// runner in pipeline order. The runner is not started; set observers like
// Runner.OnTopPacket first, then call Start.
func BuildPipeline(cfg SessionConfig, logger *core.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = core.GetLogger()
	}
	handlers, err := cfg.BuildHandlers(logger)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	return &Pipeline{
		Runner:   core.NewRunner(handlers.Ordered(), logger),
		Handlers: handlers,
		logger:   logger.With(map[string]any{"component": "pipeline"}),
	}, nil
}

// NewPipeline wraps an already assembled handler chain. Callers that need
// a custom chain build their own handlers and runner; BuildPipeline covers
// the standard session layout.
func NewPipeline(runner *core.Runner, handlers *SessionHandlers, logger *core.Logger) *Pipeline {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Pipeline{
		Runner:   runner,
		Handlers: handlers,
		logger:   logger.With(map[string]any{"component": "pipeline"}),
	}
}

// Start initializes and starts every handler in the chain.
func (p *Pipeline) Start() error {
	if err := p.Runner.Start(); err != nil {
		p.logger.With(map[string]any{"error": err}).Error("runner failed to start")
		return err
	}
	return nil
}

// Push delivers a packet to the head of the pipeline.
func (p *Pipeline) Push(packet *core.EventPacket) error {
	return p.Runner.Push(packet)
}

// Wait blocks until the pipeline finishes on its own or ctx is cancelled,
// then stops the runner either way.
func (p *Pipeline) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		p.logger.Info("context cancelled, stopping runner")
		p.Runner.Stop()
		return ctx.Err()
	case <-p.Runner.Finished:
		p.logger.Info("runner finished")
		return nil
	}
}

// Stop tears the pipeline down. Safe to call more than once.
func (p *Pipeline) Stop() error {
	return p.Runner.Stop()
}
