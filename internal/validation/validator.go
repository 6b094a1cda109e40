// Velograph - Ecosystem Analytics and Discovery Ranking Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velograph

// Package validation provides struct validation using go-playground/validator
// v10: a thread-safe singleton validator with translated field errors that
// feed the API's VALIDATION_ERROR response shape.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is a single field validation failure.
type FieldError struct {
	Field   string      `json:"field"`
	Tag     string      `json:"tag"`
	Param   string      `json:"param,omitempty"`
	Value   interface{} `json:"value,omitempty"`
	Message string      `json:"message"`
}

// Error returns the human-readable message.
func (e *FieldError) Error() string {
	return e.Message
}

// RequestValidationError is a collection of field validation failures for
// one request payload.
type RequestValidationError struct {
	fields []FieldError
}

// Fields returns the individual field errors.
func (ve *RequestValidationError) Fields() []FieldError {
	return ve.fields
}

// Error implements the error interface with a combined message.
func (ve *RequestValidationError) Error() string {
	if len(ve.fields) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(ve.fields))
	for i, fe := range ve.fields {
		messages[i] = fe.Message
	}
	return strings.Join(messages, "; ")
}

// GetValidator returns the singleton validator instance. The singleton
// caches struct metadata and is safe for concurrent use.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateStruct validates s, returning nil on success or a
// *RequestValidationError listing every failing field.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &RequestValidationError{fields: []FieldError{{
			Field:   "unknown",
			Tag:     "unknown",
			Message: err.Error(),
		}}}
	}

	fields := make([]FieldError, len(validationErrs))
	for i, fe := range validationErrs {
		fields[i] = FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Value:   fe.Value(),
			Message: translateError(fe),
		}
	}
	return &RequestValidationError{fields: fields}
}

// errorMessageTemplates maps validation tags to message templates.
var errorMessageTemplates = map[string]string{
	"required": "%s is required",
	"uuid4":    "%s must be a valid UUID",
	"datetime": "%s must be a valid RFC3339 timestamp",
	"url":      "%s must be a valid URL",
}

// errorMessageWithParam maps validation tags to templates taking a param.
var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"min":   "%s must be at least %s",
	"max":   "%s must be at most %s",
}

// translateError converts a validator.FieldError to a readable message.
func translateError(fe validator.FieldError) string {
	field := fe.Field()
	tag := fe.Tag()

	if template, ok := errorMessageTemplates[tag]; ok {
		return fmt.Sprintf(template, field)
	}
	if template, ok := errorMessageWithParam[tag]; ok {
		return fmt.Sprintf(template, field, fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", field, tag)
}
