// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrUnsupportedInput indicates an input variant that is recognized but not implemented.
var ErrUnsupportedInput = errors.New("input type not yet supported")

// ErrEmptyInput indicates a required input was missing or blank.
var ErrEmptyInput = errors.New("input is empty")

// ErrInvalidPlan indicates the completion service returned an unusable plan.
var ErrInvalidPlan = errors.New("invalid plan")

// ErrInvalidQuestion indicates generated question content failed validation.
var ErrInvalidQuestion = errors.New("invalid question")

// ErrValidation indicates a malformed generation request.
var ErrValidation = errors.New("validation failed")
