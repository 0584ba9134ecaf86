/*
 * Copyright (c) 2026 Laminar Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package cli

import (
	"fmt"
	"os"
)

// CLIError represents a CLI error with suggestions.
type CLIError struct {
	Message     string
	Detail      string
	Suggestions []string
	ExitCode    int
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	return e.Message
}

// Print prints the error with formatting.
func (e *CLIError) Print() {
	fmt.Printf("\n%s %s\n", ErrorIcon(), Error(e.Message))

	if e.Detail != "" {
		fmt.Printf("  %s\n", Dimmed(e.Detail))
	}

	if len(e.Suggestions) > 0 {
		fmt.Println()
		fmt.Printf("  %s\n", Highlight("Suggestions:"))
		for _, s := range e.Suggestions {
			fmt.Printf("    - %s\n", s)
		}
	}
	fmt.Println()
}

// Exit prints the error and exits with the error code.
func (e *CLIError) Exit() {
	e.Print()
	os.Exit(e.ExitCode)
}

// NewCLIError creates a new CLI error.
func NewCLIError(message string) *CLIError {
	return &CLIError{
		Message:  message,
		ExitCode: 1,
	}
}

// WithDetail adds detail to the error.
func (e *CLIError) WithDetail(detail string) *CLIError {
	e.Detail = detail
	return e
}

// WithSuggestion adds a suggestion to the error.
func (e *CLIError) WithSuggestion(suggestion string) *CLIError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithExitCode sets the exit code.
func (e *CLIError) WithExitCode(code int) *CLIError {
	e.ExitCode = code
	return e
}

// Common CLI errors with helpful suggestions, raised by the node and
// discovery binaries during startup.

// ErrBindFailed creates a socket-bind failure error.
func ErrBindFailed(which, addr string, err error) *CLIError {
	return NewCLIError(fmt.Sprintf("failed to bind %s gateway", which)).
		WithDetail(fmt.Sprintf("could not listen on %s: %v", addr, err)).
		WithSuggestion("check that no other process is already bound to this address").
		WithSuggestion("pick a different port with --clientPort/--clusterPort")
}

// ErrDataDirUnusable creates a data-directory error.
func ErrDataDirUnusable(dir string, err error) *CLIError {
	return NewCLIError("data directory is unusable").
		WithDetail(fmt.Sprintf("%s: %v", dir, err)).
		WithSuggestion("ensure the directory exists and is writable").
		WithSuggestion("pass a different path with --data")
}

// ErrInvalidConfig creates a configuration validation error.
func ErrInvalidConfig(reason string) *CLIError {
	return NewCLIError("invalid configuration").
		WithDetail(reason).
		WithSuggestion("run with --help to see available flags")
}

// ErrNodeIdentityCorrupt creates an error for a damaged node.id file.
func ErrNodeIdentityCorrupt(path string, err error) *CLIError {
	return NewCLIError("node identity file is corrupt").
		WithDetail(fmt.Sprintf("%s: %v", path, err)).
		WithSuggestion("remove the file to provision a fresh identity (the node will rejoin via UPDATE_CONFIG)").
		WithSuggestion("restore it from backup if this node must keep its existing cluster membership")
}

