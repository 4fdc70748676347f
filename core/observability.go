package core

// ContextStats represents runtime observability state for a run loop or
// execution context.
type ContextStats struct {
	Name     string
	Type     string
	Pending  int
	Running  int
	Executed int64
	Rejected int64
	Closed   bool
}

// TimerStats represents runtime observability state for a timed context.
type TimerStats struct {
	Name      string
	Pending   int
	Fired     int64
	Cancelled int64
	Rejected  int64
	Closed    bool
}

// ScopeStats represents runtime observability state for an async scope.
type ScopeStats struct {
	Name          string
	InFlight      int
	Spawned       int64
	Errors        int
	DroppedErrors int
	StopRequested bool
	Closed        bool
}
