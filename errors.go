package main

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Match them with errors.Is.
var (
	ErrSyntax   = errors.New("syntax error")
	ErrSemantic = errors.New("semantic error")
	ErrInternal = errors.New("internal error")
)

// Error is a positioned diagnostic.
type Error struct {
	Kind error
	Pos  Pos
	Msg  string

	// Incomplete is set when a syntax error was caused by running out of
	// input, so more input might fix it.
	Incomplete bool
}

func (e *Error) Error() string {
	if e.Pos.Line == 0 {
		return fmt.Sprintf("%v: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %v: %s", e.Pos, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func syntaxErrorf(tok Token, format string, args ...any) *Error {
	return &Error{
		Kind:       ErrSyntax,
		Pos:        tok.Pos,
		Msg:        fmt.Sprintf(format, args...),
		Incomplete: tok.Type == EOF,
	}
}

func semanticErrorf(pos Pos, format string, args ...any) *Error {
	return &Error{Kind: ErrSemantic, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// IsIncomplete reports whether err is a syntax error at end of input.
func IsIncomplete(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Incomplete
}

// ErrorList collects the diagnostics of one compilation.
type ErrorList struct {
	errs []error
}

func (l *ErrorList) Add(err error) {
	l.errs = append(l.errs, err)
}

func (l *ErrorList) HasErrors() bool {
	return len(l.errs) > 0
}

func (l *ErrorList) Len() int {
	return len(l.errs)
}

func (l *ErrorList) Errors() []error {
	return l.errs
}

func (l *ErrorList) String() string {
	lines := make([]string, len(l.errs))
	for i, err := range l.errs {
		lines[i] = err.Error()
	}
	return strings.Join(lines, "\n")
}

// Err returns all collected diagnostics joined into one error, or nil.
func (l *ErrorList) Err() error {
	return errors.Join(l.errs...)
}
