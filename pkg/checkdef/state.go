package checkdef

// State is the evaluation state of one check within a run.
//
//	Pending -> Evaluating -> {CacheHit, Built, Failed} -> Reported
type State int

// Check states.
const (
	StatePending State = iota
	StateEvaluating
	StateCacheHit
	StateBuilt
	StateFailed
	StateReported
)

var stateNames = [...]string{
	StatePending:    "pending",
	StateEvaluating: "evaluating",
	StateCacheHit:   "cache_hit",
	StateBuilt:      "built",
	StateFailed:     "failed",
	StateReported:   "reported",
}

// String returns the state name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether s is an evaluation result.
func (s State) Terminal() bool {
	return s == StateCacheHit || s == StateBuilt || s == StateFailed
}

// CanTransition reports whether a check may move from s to next.
func (s State) CanTransition(next State) bool {
	switch s {
	case StatePending:
		return next == StateEvaluating
	case StateEvaluating:
		return next.Terminal()
	case StateCacheHit, StateBuilt, StateFailed:
		return next == StateReported
	}
	return false
}

// Status is the reported outcome of a check.
type Status string

// Outcome statuses.
const (
	StatusBuilt    Status = "built"
	StatusCacheHit Status = "cache_hit"
	StatusFailed   Status = "failed"
)

func (s State) status() Status {
	switch s {
	case StateCacheHit:
		return StatusCacheHit
	case StateBuilt:
		return StatusBuilt
	}
	return StatusFailed
}
