package schemas

import "time"

// Status is the lifecycle state of an admitted request.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Record is the lifecycle record kept per request id. It is created at
// admission and mutated only by the worker that owns the item; done and
// error are terminal.
type Record struct {
	Status     Status         `json:"status"`
	QueuedAt   time.Time      `json:"queued_at"`
	FinishedAt *time.Time     `json:"finished_at"`
	Result     AnalysisResult `json:"result"`
	Error      string         `json:"error,omitempty"`
}
