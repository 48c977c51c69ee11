package models

import "time"

// JobKind identifies what a job generates.
type JobKind string

const (
	JobKindMetadata      JobKind = "metadata"
	JobKindSemanticModel JobKind = "semantic_model"
)

// JobState is a job's lifecycle state. Terminal states are sticky.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job wraps an asynchronous generation request.
type Job struct {
	ID          string     `json:"id"`
	Kind        JobKind    `json:"kind"`
	State       JobState   `json:"state"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Progress is in [0, 1], reported at pipeline stage boundaries.
	Progress float64 `json:"progress"`

	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// GenerateRequest is the validated input for metadata generation, shared by
// the synchronous endpoint and job submission.
type GenerateRequest struct {
	Database string `json:"database" validate:"required"`
	Schema   string `json:"schema" validate:"required"`
	Table    string `json:"table" validate:"required"`

	SampleSize    int `json:"sample_size" validate:"min=1,max=10000"`
	NumSamples    int `json:"num_samples" validate:"min=1,max=20"`
	MaxPartitions int `json:"max_partitions" validate:"min=1,max=100"`

	Sections SectionFlags `json:"sections"`
}

// Defaults for unset generation parameters.
const (
	DefaultSampleSize    = 20
	DefaultNumSamples    = 5
	DefaultMaxPartitions = 10
)

// ApplyDefaults fills zero-valued parameters with their documented defaults.
func (r *GenerateRequest) ApplyDefaults() {
	if r.SampleSize == 0 {
		r.SampleSize = DefaultSampleSize
	}
	if r.NumSamples == 0 {
		r.NumSamples = DefaultNumSamples
	}
	if r.MaxPartitions == 0 {
		r.MaxPartitions = DefaultMaxPartitions
	}
}
