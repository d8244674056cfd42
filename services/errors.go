package services

import "errors"

// Sentinel-Fehler der Service-Schicht. Die Handler mappen sie per errors.Is
// auf HTTP-Statuscodes (404 / 409 / 502 / 428).
var (
	ErrNotFound             = errors.New("record not found")
	ErrAlreadyExists        = errors.New("record already exists")
	ErrUpstreamFailure      = errors.New("upstream service failed")
	ErrConfirmationRequired = errors.New("confirmation required")
	ErrReviewLocked         = errors.New("recommendation is deleted")
)
