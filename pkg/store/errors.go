package store

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type OperationErrorCode string

const (
	OperationErrorValidation      OperationErrorCode = "validation_failed"
	OperationErrorEncodeFailed    OperationErrorCode = "encode_failed"
	OperationErrorDecodeFailed    OperationErrorCode = "decode_failed"
	OperationErrorTransportFailed OperationErrorCode = "transport_failed"
	OperationErrorTimeout         OperationErrorCode = "timeout"
	OperationErrorQueryFailed     OperationErrorCode = "query_failed"
)

type OperationError struct {
	Backend    string
	Code       OperationErrorCode
	Operation  string
	StatusCode int
	Message    string
	Cause      error
}

func (e *OperationError) Error() string {
	if e == nil {
		return "vector store operation failed"
	}
	detail := e.Message
	if detail == "" && e.Cause != nil {
		detail = e.Cause.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s failed (code=%s status=%d): %s", e.Backend, e.Operation, e.Code, e.StatusCode, detail)
	}
	return fmt.Sprintf("%s %s failed (code=%s): %s", e.Backend, e.Operation, e.Code, detail)
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func opErr(backend, op string, code OperationErrorCode, msg string, cause error) error {
	return &OperationError{
		Backend:   backend,
		Code:      code,
		Operation: op,
		Message:   msg,
		Cause:     cause,
	}
}

func classifyCallError(backend, op, message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(backend, op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(backend, op, OperationErrorTimeout, message, err)
	}
	return opErr(backend, op, OperationErrorTransportFailed, message, err)
}
