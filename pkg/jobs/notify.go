package jobs

import "time"

// Event types published to a Notifier.
const (
	EventStatus   = "status"
	EventProgress = "progress"
	EventComplete = "complete"
	EventError    = "error"
)

// Event is a job lifecycle or progress update.
type Event struct {
	JobID       string    `json:"job_id"`
	Type        string    `json:"type"`
	Status      Status    `json:"status"`
	Completed   int       `json:"completed"`
	Total       int       `json:"total"`
	Percent     float64   `json:"percent"`
	CurrentItem string    `json:"current_item,omitempty"`
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// percent returns progress as 0-100.
func percent(completed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(completed) / float64(total) * 100
}

// Notifier receives job events. Publish must not block.
type Notifier interface {
	Publish(Event)
}

type nopNotifier struct{}

func (nopNotifier) Publish(Event) {}
