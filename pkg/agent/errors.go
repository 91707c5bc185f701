package agent

import "fmt"

// Phases reported by TimeoutError.
const (
	PhaseModel   = "model"
	PhaseExecute = "execute"
)

// TransportError reports a model call that failed after the provider's own
// retries. Err is usually an *api.APIError.
type TransportError struct {
	Round int
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("agent: model call failed in round %d: %v", e.Round, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError reports that the per-round watchdog expired. It is distinct
// from cancellation by the caller, which surfaces as ctx.Err().
type TimeoutError struct {
	Round int
	Phase string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("agent: round %d timed out during %s", e.Round, e.Phase)
}
