package models

import (
	"time"
)

// PollJobStatus tracks the lifecycle of a polling job.
type PollJobStatus string

const (
	JobAccepted  PollJobStatus = "accepted"
	JobRunning   PollJobStatus = "running"
	JobCompleted PollJobStatus = "completed"
	JobFailed    PollJobStatus = "failed"
)

// PollJob is a recurring price-fetch job for a set of symbols.
type PollJob struct {
	ID        string        `json:"id" gorm:"type:uuid;primaryKey"`
	Symbols   StringList    `json:"symbols" gorm:"type:jsonb;not null"`
	Interval  time.Duration `json:"interval" gorm:"not null"`
	Provider  string        `json:"provider" gorm:"not null"`
	Status    PollJobStatus `json:"status" gorm:"not null"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// TableName maps PollJob to its table.
func (PollJob) TableName() string { return "poll_jobs" }

// AverageRequest fetches the latest moving average for a symbol.
type AverageRequest struct {
	Symbol string `param:"symbol" validate:"required"`
}

// PollRequest starts a polling job.
type PollRequest struct {
	Symbols  []string `json:"symbols" validate:"required,min=1,dive,required"`
	Interval int      `json:"interval" default:"60" validate:"gte=1"`
	Provider string   `json:"provider" default:"alphavantage" validate:"oneof=alphavantage finnhub"`
}

// PollResponse echoes the accepted job back to the caller.
type PollResponse struct {
	JobID  string                 `json:"job_id"`
	Status PollJobStatus          `json:"status"`
	Config map[string]interface{} `json:"config"`
}
