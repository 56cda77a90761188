package core

import (
	"context"
	"errors"
)

type IService interface {
	Initialize(
		ctx context.Context,
	) error
	Cleanup() error
	Reset() error
}

type IHandler interface {
	Initialize(
		InputChan chan *EventPacket,
		outputChan chan *EventPacket,
		OutputTopChan chan *EventPacket,
		ctx context.Context,
	) error // Wires the handler into the pipeline and initializes its service.
	Start() error // Starts the handler's main logic. This is where the handler begins processing events.
	HandleEvent(packet *EventPacket) error

	Cleanup() error // Cleans up resources used by the handler.
	Reset() error   // Resets the handler to its initial state.
}

type BaseHandler struct {
	Service               IService
	BackupServices        []IService
	Logger                *Logger
	Ctx                   context.Context
	InputChan             chan *EventPacket
	outputNextChan        chan *EventPacket
	outputTopChan         chan *EventPacket
	FatalServiceErrorChan chan error
	handleEventFunc       func(packet *EventPacket) error
}

func (h *BaseHandler) Initialize(
	InputChan chan *EventPacket,
	OutputNextChan chan *EventPacket,
	OutputTopChan chan *EventPacket,
	ctx context.Context,
) error {
	h.InputChan = InputChan
	h.outputNextChan = OutputNextChan
	h.outputTopChan = OutputTopChan
	h.FatalServiceErrorChan = make(chan error)
	h.Ctx = ctx
	go h.fatalErrorHandlerLoop()
	return h.Service.Initialize(ctx)
}

// SetHandleEventFunc registers fn as the handler's packet callback and starts
// the input pump that feeds it. Must be called after Initialize. Handlers
// that run their own event loop over InputChan skip this and read the channel
// themselves.
func (h *BaseHandler) SetHandleEventFunc(fn func(packet *EventPacket) error) {
	h.handleEventFunc = fn
	go h.inputPumpLoop()
}

func (h *BaseHandler) Start() error {
	return nil
}

func (h *BaseHandler) HandleEvent(packet *EventPacket) error {
	if h.handleEventFunc != nil {
		return h.handleEventFunc(packet)
	}
	h.SendPacket(packet)
	return nil
}

func (h *BaseHandler) Cleanup() error {
	return h.Service.Cleanup()
}

func (h *BaseHandler) Reset() error {
	return h.Service.Reset()
}

func (h *BaseHandler) SwitchToBackupService() error {
	if len(h.BackupServices) == 0 {
		return errors.New("no backup services available")
	}
	h.Service = h.BackupServices[0]
	if err := h.Service.Initialize(h.Ctx); err != nil {
		return err
	}
	h.BackupServices = h.BackupServices[1:] // Remove the promoted service from the backup list.
	return nil
}

func (h *BaseHandler) SendPacket(packet *EventPacket) {
	var out chan *EventPacket
	switch packet.Destination {
	case EventRelayDestinationTopService:
		out = h.outputTopChan
	default:
		// Default to the next handler if the destination is unrecognized.
		out = h.outputNextChan
	}
	select {
	case out <- packet:
	case <-h.Ctx.Done():
	}
}

func (h *BaseHandler) HandleError(err error) {
	select {
	case h.FatalServiceErrorChan <- err:
	case <-h.Ctx.Done():
	}
}

func (h *BaseHandler) inputPumpLoop() {
	for {
		select {
		case <-h.Ctx.Done():
			return
		case packet, ok := <-h.InputChan:
			if !ok {
				return
			}
			if packet == nil {
				continue
			}
			if err := h.handleEventFunc(packet); err != nil {
				h.Logger.Error("handler failed to process event", "event", packet.Event.GetId(), "error", err.Error())
			}
		}
	}
}

func (h *BaseHandler) fatalErrorHandlerLoop() {
	for {
		select {
		case err := <-h.FatalServiceErrorChan:
			h.Logger.Error("fatal service error", "error", err.Error())
			if switchErr := h.SwitchToBackupService(); switchErr != nil {
				h.Logger.Error("failed to switch to backup service", "error", switchErr.Error())
				h.SendPacket(
					NewEventPacket(&CriticalErrorEvent{Error: err.Error()}, EventRelayDestinationTopService, "BaseHandler"),
				)
				return
			}
			h.SendPacket(
				NewEventPacket(&ServiceRecoveredEvent{Error: err.Error()}, EventRelayDestinationTopService, "BaseHandler"),
			)
		case <-h.Ctx.Done():
			return
		}
	}
}

func NewBaseHandler(service IService, backupServices []IService, ctx context.Context, logger *Logger) *BaseHandler {
	if logger == nil {
		logger = GetLogger()
	}
	return &BaseHandler{
		Service:        service,
		BackupServices: backupServices,
		Logger:         logger,
		Ctx:            ctx,
	}
}
