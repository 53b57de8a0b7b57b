package pipeline

// ErrKind tags the reason a pipeline run ended without a completed
// publish.
type ErrKind string

const (
	ErrKindSignatureInvalid    ErrKind = "signature-invalid"
	ErrKindUnsupportedProvider ErrKind = "unsupported-provider"
	ErrKindUnsupportedEvent    ErrKind = "unsupported-event-kind"
	ErrKindNoCommandAvailable  ErrKind = "no-command-available"
	ErrKindPlannerFailure      ErrKind = "planner-failure"
	ErrKindSandboxFailure      ErrKind = "sandbox-failure"
	ErrKindCommandFailure      ErrKind = "command-failure"
	ErrKindPublishFailure      ErrKind = "publish-failure"
	ErrKindCancelled           ErrKind = "cancelled"
)

// Error wraps an underlying cause with the kind the orchestrator
// classified it as, so callers (HTTP handler, tests) can branch on Kind
// without string-matching error text.
type Error struct {
	Kind  ErrKind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind ErrKind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}
