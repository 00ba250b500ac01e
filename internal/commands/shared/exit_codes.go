// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package shared

import (
	"errors"
	"fmt"
	"io"
	"os"

	pkgerrors "github.com/tombee/hostagent/pkg/errors"
)

// Exit codes of the hostagent command
const (
	ExitSuccess           = 0
	ExitFailed            = 1
	ExitConfigError       = 2
	ExitControllerMissing = 3
	ExitStillRunning      = 4
	ExitMarkerError       = 5
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewFailedError creates an error for general command failures
func NewFailedError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitFailed, Message: msg, Cause: cause}
}

// NewConfigError creates an error for unreadable or invalid configuration
func NewConfigError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitConfigError, Message: msg, Cause: cause}
}

// NewControllerMissingError creates an error for a controller that could not be started
func NewControllerMissingError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitControllerMissing, Message: msg, Cause: cause}
}

// NewStillRunningError creates an error for a controller that survived a stop
func NewStillRunningError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitStillRunning, Message: msg, Cause: cause}
}

// NewMarkerError creates an error for a failed legacy marker update
func NewMarkerError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitMarkerError, Message: msg, Cause: cause}
}

// ExitCode returns the code err should exit with.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailed
}

// HandleExitError prints err and exits with its code
func HandleExitError(err error) {
	if err == nil {
		return
	}
	printError(os.Stderr, err)
	os.Exit(ExitCode(err))
}

func printError(w io.Writer, err error) {
	fmt.Fprintln(w, RenderError("Error: "+err.Error()))
	printUserVisibleSuggestion(w, err)
}

// printUserVisibleSuggestion prints the suggestion of the first
// UserVisibleError in the chain.
func printUserVisibleSuggestion(w io.Writer, err error) {
	for err != nil {
		if userErr, ok := err.(pkgerrors.UserVisibleError); ok {
			if userErr.IsUserVisible() {
				if suggestion := userErr.Suggestion(); suggestion != "" {
					fmt.Fprintf(w, "\nSuggestion: %s\n", suggestion)
				}
			}
			return
		}

		// errors.Join results have no single Unwrap
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				if _, ok := e.(pkgerrors.UserVisibleError); ok {
					printUserVisibleSuggestion(w, e)
					return
				}
			}
			return
		}

		err = errors.Unwrap(err)
	}
}
