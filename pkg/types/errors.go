package types

import "errors"

var (
	// ErrNotAuthorized is returned when a principal lacks emergency authorization
	ErrNotAuthorized = errors.New("not authorized to request emergency access tokens")

	// ErrNotFound is returned when a token does not exist or belongs to someone else
	ErrNotFound = errors.New("token not found")

	// ErrInvalidInput is returned when required fields are missing
	ErrInvalidInput = errors.New("invalid input")

	// ErrEvaluationFailure marks an unexpected fault during policy evaluation
	ErrEvaluationFailure = errors.New("policy evaluation failed")

	// ErrAuditWrite is returned when the audit sink cannot record an entry
	ErrAuditWrite = errors.New("audit write failed")
)
