// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vexerr defines the closed error taxonomy shared by every VEX
// component: Input, Storage, Integrity, Provider, Resource, Cancelled,
// Configuration. Integrity failures are never returned through this type —
// components that detect a broken invariant return a report struct instead.
package vexerr

import (
	"errors"
	"fmt"
)

// Kind identifies which of the six error-valued taxonomy categories an error
// belongs to; Integrity has no Kind because it is reported as data.
type Kind int

const (
	// Input covers malformed arguments or out-of-range values. Fails fast,
	// never reaches storage.
	Input Kind = iota
	// Storage covers persistence failure or contention. No partial writes
	// survive a Storage error.
	Storage
	// Provider covers LLM unavailability, timeout, or malformed response.
	Provider
	// Resource covers capacity exhaustion or quota limits.
	Resource
	// Cancelled covers cooperative abort of an in-flight operation.
	Cancelled
	// Configuration covers missing or invalid settings. Fails fast, never
	// reaches storage.
	Configuration
)

func (k Kind) String() string {
	switch k {
	case Input:
		return "input"
	case Storage:
		return "storage"
	case Provider:
		return "provider"
	case Resource:
		return "resource"
	case Cancelled:
		return "cancelled"
	case Configuration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Error is a taxonomy-tagged error. Components that need to discriminate on
// failure category should use errors.As to recover one of these.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a taxonomy error without a wrapped cause.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap builds a taxonomy error around an existing cause. Wrap(kind, op, msg, nil)
// is equivalent to New.
func Wrap(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var e *Error
	for errors.As(err, &e) {
		if e.Kind == kind {
			return true
		}
		err = e.Cause
	}
	return false
}

// IntegrityReport describes a detected chain or proof inconsistency. It is
// returned as data, never raised as an error, per the Integrity propagation
// rule: verification failures are reports, not faults.
type IntegrityReport struct {
	OK              bool
	FirstBrokenID   string
	FirstBrokenNote string
}
