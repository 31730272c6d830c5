package verify

// Status is the terminal result of a verification attempt. Transient
// failures are not a Status: they surface as an error from Verify and are
// always safe to retry.
type Status string

const (
	// StatusCommitted means both conditions held and the claim was recorded.
	StatusCommitted Status = "committed"
	// StatusRejected means evidence was gathered but the conditions were
	// not met (or a concurrent attempt won the claim race).
	StatusRejected Status = "rejected"
	// StatusAlreadyClaimed means the user had already claimed this task;
	// no evidence was gathered.
	StatusAlreadyClaimed Status = "already_claimed"
	// StatusNotRegistered means the caller has no stored X handle.
	StatusNotRegistered Status = "not_registered"
	// StatusUnknownTask means the referenced task id does not exist.
	StatusUnknownTask Status = "unknown_task"
)

// Outcome describes a completed verification attempt.
type Outcome struct {
	Status Status
	TaskID int64

	// Reward is the task reward, set on Committed.
	Reward float64

	// Per-condition evidence, set when the attempt reached the decision
	// point. Lets the transport tell the user which condition failed.
	ReplySatisfied   bool
	RetweetSatisfied bool
	Citation         string
}
