// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package battle

import (
	"errors"
	"fmt"
)

// Kind classifies a recoverable engine error.
type Kind int

const (
	// GroupError is a structural or state conflict, like an unknown group or a claimed slot.
	GroupError Kind = iota + 1
	// InputError is a caller value that violates a constraint.
	InputError
	// UserError is an authorization or uniqueness conflict.
	UserError
)

func (k Kind) String() string {
	switch k {
	case GroupError:
		return "group_error"
	case InputError:
		return "input_error"
	case UserError:
		return "user_error"
	default:
		return "unknown"
	}
}

// Error is returned for every rejected operation. Reason is human readable.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string {
	return e.Reason
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

func errGroupNotInitialized(groupID string) *Error {
	return newError(GroupError, "group %s is not initialized", groupID)
}

// KindOf returns the kind of an engine error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

func IsGroupError(err error) bool {
	k, ok := KindOf(err)
	return ok && k == GroupError
}

func IsInputError(err error) bool {
	k, ok := KindOf(err)
	return ok && k == InputError
}

func IsUserError(err error) bool {
	k, ok := KindOf(err)
	return ok && k == UserError
}

// StoreError wraps a ledger failure. The operation it aborted left no trace
// in memory and published nothing.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("ledger failure during %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsStoreError reports whether err is a ledger failure.
func IsStoreError(err error) bool {
	var e *StoreError
	return errors.As(err, &e)
}
