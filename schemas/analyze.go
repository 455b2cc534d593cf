// Package schemas defines the shared types passed between the gateway's
// admission layer, the work queue, the workers, and the HTTP handlers.
package schemas

import "time"

// AnalyzeRequest is the body of POST /analyze. At least one field must be
// non-empty; the admission layer concatenates them into a single text blob.
type AnalyzeRequest struct {
	Title    string `json:"title,omitempty"`
	Abstract string `json:"abstract,omitempty"`
	Text     string `json:"text,omitempty"`
	URL      string `json:"url,omitempty"`
}

// SubmitResult is returned to the client immediately after admission.
type SubmitResult struct {
	RequestID string `json:"request_id"`
	Status    Status `json:"status"`
	Cached    bool   `json:"cached,omitempty"`
}

// AnalysisResult is the structured output for a single item. The model is
// asked for id, summary, key_points and recommendation, but extra fields are
// preserved as-is, and an unparseable response is stored as {"raw": content}.
type AnalysisResult map[string]any

// ID returns the request id carried inside the result, or "" if absent.
func (r AnalysisResult) ID() string {
	id, _ := r["id"].(string)
	return id
}

// RawResult wraps model output that could not be decoded into a structured
// result. It still terminates the request as done.
func RawResult(content string) AnalysisResult {
	return AnalysisResult{"raw": content}
}

// Item is the unit placed on the work queue. Immutable once enqueued.
type Item struct {
	ID          string
	Text        string
	SubmittedAt time.Time
	CacheKey    string
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status    string `json:"status"`
	QueueSize int    `json:"queue_size"`
	Workers   int    `json:"workers"`
}

// ReadyStatus is the body of GET /ready. Ready is true iff at least one
// worker goroutine is alive.
type ReadyStatus struct {
	Ready        bool   `json:"ready"`
	WorkersAlive int    `json:"workers_alive"`
	TotalWorkers int    `json:"total_workers"`
	Reason       string `json:"reason,omitempty"`
}
