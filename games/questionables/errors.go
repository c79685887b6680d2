/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package questionables

import (
	"errors"
)

// kindError is a rejection of a requested operation. It never mutates the
// session and is only ever reported to the requester.
type kindError struct {
	kind string
	msg  string
}

func (e *kindError) Error() string {
	return e.msg
}

var (
	ErrSessionExists = &kindError{"SESSION_EXISTS", "a session is already running"}
	ErrNoSession     = &kindError{"NO_SESSION", "no session is running"}
	ErrInvalidCode   = &kindError{"INVALID_CODE", "invalid join code"}
	ErrNotLeader     = &kindError{"NOT_LEADER", "only the leader can do that"}
	ErrInvalidState  = &kindError{"INVALID_STATE", "not allowed in the current phase"}
	ErrInvalidOwner  = &kindError{"INVALID_OWNER", "that answer cannot be voted for"}
	ErrAlreadyVoted  = &kindError{"ALREADY_VOTED", "you have already voted this round"}
)

// Kind returns the wire identifier of a session error, or "INTERNAL" if err
// did not originate from this package.
func Kind(err error) string {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}

	return "INTERNAL"
}
