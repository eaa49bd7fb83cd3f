// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrGraphNotFound is returned for unknown graph ids
	ErrGraphNotFound = errors.New("graph not found")
	// ErrItemNotFound is returned for unknown item ids
	ErrItemNotFound = errors.New("item not found")
	// ErrCannotDeleteDefault is returned when deleting a protected default graph
	ErrCannotDeleteDefault = errors.New("cannot delete the default graph")
	// ErrCrossGraphEdge is returned when edge endpoints live in different graphs
	ErrCrossGraphEdge = errors.New("edge endpoints belong to different graphs")
	// ErrSelfEdge is returned when both edge endpoints are the same item
	ErrSelfEdge = errors.New("edge endpoints must be distinct items")
)

// ValidationError reports a rejected input; no state was changed
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func validationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError reports whether err wraps a ValidationError
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
