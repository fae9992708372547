// Package arena contains the arena-ranking domain: leaderboard snapshots, kungfu
// attributions, the kungfu reference table, distribution statistics and season week
// labelling. It has no infrastructure dependencies.
package arena

import (
	"errors"
	"fmt"
)

// Base errors for errors.Is() checks.
var (
	ErrUpstream        = errors.New("upstream request failed")
	ErrInvalidResponse = errors.New("invalid upstream response")
	ErrInvalidWeek     = errors.New("invalid default week")
	ErrNoSnapshot      = errors.New("no ranking snapshot available")
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrTimeout         = errors.New("operation timeout")
)

// Stage names the step of the pipeline that produced an error.
type Stage string

const (
	StageTimeTag   Stage = "time_tag"
	StageRanking   Stage = "ranking"
	StageIndicator Stage = "role_indicator"
	StageHistory   Stage = "match_history"
	StageResolve   Stage = "resolve"
	StageReport    Stage = "report"
)

// StageError is a failure of one pipeline stage. It is returned as a value and
// never aborts an aggregation on its own.
type StageError struct {
	Stage   Stage
	Kind    error  // base error for errors.Is()
	Message string // human-readable
	Err     error  // underlying cause, optional
}

// Error implements the error interface.
func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

// Unwrap returns the underlying cause.
func (e *StageError) Unwrap() error {
	return e.Err
}

// Is matches the error kind.
func (e *StageError) Is(target error) bool {
	return e.Kind != nil && errors.Is(e.Kind, target)
}

// NewStageError creates a StageError.
func NewStageError(stage Stage, kind error, message string, cause error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Message: message, Err: cause}
}

// StageOf returns the stage of the first StageError in err's chain.
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

// ErrorResult is the wire form of a failure: {"error": true, "message": "..."}.
type ErrorResult struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

// ToErrorResult converts err into its wire form.
func ToErrorResult(err error) ErrorResult {
	if err == nil {
		return ErrorResult{}
	}
	return ErrorResult{Error: true, Message: err.Error()}
}
