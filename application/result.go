package application

import (
	"errors"

	"github.com/glekoz/resize-service/internal/models"
)

// Verdict is what the transport should do with the delivery.
type Verdict int

const (
	// VerdictDone: thumbnail stored and post updated, acknowledge.
	VerdictDone Verdict = iota
	// VerdictSkip: nothing left to do (the post is gone), acknowledge.
	VerdictSkip
	// VerdictRetry: hand the task back to the queue.
	VerdictRetry
	// VerdictReject: the task can never succeed.
	VerdictReject
)

func (v Verdict) String() string {
	switch v {
	case VerdictDone:
		return "done"
	case VerdictSkip:
		return "skip"
	case VerdictRetry:
		return "retry"
	case VerdictReject:
		return "reject"
	default:
		return "unknown"
	}
}

// Stage is the last pipeline step a task reached.
type Stage int

const (
	StageReceived Stage = iota
	StageDownloading
	StageTransforming
	StageUploading
	StageUpdating
)

func (s Stage) String() string {
	switch s {
	case StageReceived:
		return "received"
	case StageDownloading:
		return "downloading"
	case StageTransforming:
		return "transforming"
	case StageUploading:
		return "uploading"
	case StageUpdating:
		return "updating"
	default:
		return "unknown"
	}
}

type Result struct {
	Verdict   Verdict
	Stage     Stage
	Err       error
	Thumbnail *models.Thumbnail
	// Duplicate is set when a done-marker short-circuited the pipeline.
	Duplicate bool
}

// Failed builds the result for err raised at stage.
func Failed(stage Stage, err error) Result {
	switch {
	case errors.Is(err, models.ErrRecordNotFound):
		return Result{Verdict: VerdictSkip, Stage: stage, Err: err}
	case models.Retryable(err):
		return Result{Verdict: VerdictRetry, Stage: stage, Err: err}
	default:
		return Result{Verdict: VerdictReject, Stage: stage, Err: err}
	}
}
