package job

import (
	"encoding/json"
	"time"
)

// HandlerIndexWorker tags jobs that failed in the asynchronous index consumer.
const HandlerIndexWorker = "index-worker"

// Job is a failed asynchronous task kept so it can be inspected and replayed.
// SourceID is the chapter the task was indexing.
type Job struct {
	ID        string          `json:"id"`
	SourceID  string          `json:"source_id"`
	Handler   string          `json:"handler"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
	Retries   int             `json:"retries"`
	CreatedAt time.Time       `json:"created_at"`
}
