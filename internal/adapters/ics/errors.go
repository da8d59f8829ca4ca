package ics

import "errors"

var (
	// ErrEmpty is returned for an empty calendar payload.
	ErrEmpty = errors.New("ics: empty calendar")
	// ErrParse wraps calendar syntax errors.
	ErrParse = errors.New("ics: parse failed")
	// ErrRange is returned when the expansion window is inverted.
	ErrRange = errors.New("ics: window end is before start")
)
