package examsession

// Phase is the lifecycle state of an attempt.
type Phase string

const (
	PhaseLoading            Phase = "loading"
	PhasePermissionsPending Phase = "permissions-pending"
	PhaseInProgress         Phase = "in-progress"
	PhaseSubmitting         Phase = "submitting"
	PhaseEnded              Phase = "ended"
	PhaseAborted            Phase = "aborted"
)

// transitions lists every legal phase change. Aborted is reachable from any
// non-terminal phase and is handled separately.
var transitions = map[Phase][]Phase{
	PhaseLoading:            {PhasePermissionsPending, PhaseInProgress},
	PhasePermissionsPending: {PhaseInProgress},
	PhaseInProgress:         {PhaseSubmitting},
	PhaseSubmitting:         {PhaseEnded, PhaseInProgress},
}

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool {
	return p == PhaseEnded || p == PhaseAborted
}

// CanTransition reports whether p may move to next.
func (p Phase) CanTransition(next Phase) bool {
	if p.Terminal() {
		return false
	}
	if next == PhaseAborted {
		return true
	}
	for _, allowed := range transitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}
