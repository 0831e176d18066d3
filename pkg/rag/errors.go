package rag

import "fmt"

type Stage string

const (
	StageImage    Stage = "image"
	StageEncode   Stage = "encode"
	StageRetrieve Stage = "retrieve"
)

// Error is an orchestration failure. Err may wrap an *image.Error, which is a
// client error; anything else is a service error.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("query failed at %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) error {
	return &Error{Stage: stage, Err: err}
}
