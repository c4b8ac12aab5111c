package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/shuoer86/grants-stack-indexer/internal/calculator"
	"github.com/shuoer86/grants-stack-indexer/internal/model"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The operation ran but did not fully succeed (failed flush chunks, apply error)
	ExitCommandError = 2 // Bad invocation or unusable input (missing files, bad config, unknown round)
)

// Error codes reported in JSON output.
const (
	ErrCodeGeneric    = "E001"
	ErrCodeNotFound   = "E002"
	ErrCodeConfig     = "E003"
	ErrCodeInput      = "E004"
	ErrCodeStore      = "E005"
	ErrCodePartial    = "E006"
	ErrCodeBadRequest = "E007"
)

// ExitError carries the process exit code of a failed command.
type ExitError struct {
	Code    int
	ErrCode string // one of the ErrCode constants
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError without an underlying cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, ErrCode: ErrCodeGeneric, Message: message}
}

// WrapExitError wraps err with an exit code. The JSON error code is derived
// from err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, ErrCode: errCodeOf(err), Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

func errCodeOf(err error) string {
	switch {
	case err == nil:
		return ErrCodeGeneric
	case model.IsNotFound(err):
		return ErrCodeNotFound
	case calculator.IsConfiguration(err):
		return ErrCodeConfig
	case model.IsUnknownChangeKind(err):
		return ErrCodeInput
	default:
		return ErrCodeGeneric
	}
}

// OutputFormatter writes command results as JSON envelopes or text.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose/diagnostic output; defaults to Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success writes data. In text mode render prints it; a nil render falls
// back to fmt.
func (f *OutputFormatter) Success(data any, render func(w io.Writer)) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(CLIResponse{Status: "ok", Data: data})
	}
	if render != nil {
		render(f.Writer)
		return nil
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error writes an error envelope (JSON) or an "Error [code]: msg" line.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err through the formatter and returns it as an *ExitError,
// so main only has to map it to an exit code. Errors that are not already
// an *ExitError exit with ExitFailure.
func (f *OutputFormatter) Fail(err error, details any) error {
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		exitErr = WrapExitError(ExitFailure, "command failed", err)
	}
	_ = f.Error(exitErr.ErrCode, exitErr.Error(), details)
	return exitErr
}

// VerboseLog writes to ErrWriter (or Writer) when verbose output is on, so
// JSON on stdout stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}
