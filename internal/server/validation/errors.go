package validation

import (
	"strings"
)

// FieldError is a single failed rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error collects field errors in rule order, so the same input always
// produces the same list.
type Error struct {
	Fields []FieldError
}

// FieldErr builds an Error holding one message.
func FieldErr(field, message string) *Error {
	return &Error{Fields: []FieldError{{Field: field, Message: message}}}
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *Error) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Has reports whether field failed any rule.
func (e *Error) Has(field string) bool {
	return e.First(field) != ""
}

// First returns the first message for field, or "".
func (e *Error) First(field string) string {
	for _, f := range e.Fields {
		if f.Field == field {
			return f.Message
		}
	}
	return ""
}

// Map groups messages per field.
func (e *Error) Map() map[string][]string {
	m := make(map[string][]string, len(e.Fields))
	for _, f := range e.Fields {
		m[f.Field] = append(m[f.Field], f.Message)
	}
	return m
}

// UniqueMessage is reported when another user already holds the value.
func UniqueMessage(field string) string {
	return "The " + field + " has already been taken."
}
