package core

type CriticalErrorEvent struct {
	Error string
}

func (e *CriticalErrorEvent) GetId() string {
	return "shared.critical_error"
}

type WarningEvent struct {
	Error string
}

func (e *WarningEvent) GetId() string {
	return "shared.warning"
}

// ServiceRecoveredEvent is fired after a handler replaces a failed service
// with a backup and the pipeline can keep going.
type ServiceRecoveredEvent struct {
	Error string // The error that triggered the switch.
}

func (e *ServiceRecoveredEvent) GetId() string {
	return "shared.service_recovered"
}

// EndSessionEvent is fired when a handler decides the session is over. The
// runner handles it by stopping the pipeline gracefully.
type EndSessionEvent struct {
	Reason string
}

func (e *EndSessionEvent) GetId() string {
	return "shared.end_session"
}
