// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package tasks

import "errors"

// PermanentError marks a failure that retrying cannot fix, such as a
// malformed payload or an unknown task type. The worker records these as
// failed and acks the message instead of cycling it through the retry
// middleware.
type PermanentError struct {
	Message string
	Cause   error
}

// NewPermanentError wraps cause as a permanent failure.
func NewPermanentError(message string, cause error) *PermanentError {
	return &PermanentError{Message: message, Cause: cause}
}

func (e *PermanentError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *PermanentError) Unwrap() error {
	return e.Cause
}

// IsPermanent reports whether err is a permanent failure.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
