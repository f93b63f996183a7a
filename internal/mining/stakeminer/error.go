// Copyright (c) 2024-2026 The Nucash developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package stakeminer

// ErrorKind identifies a kind of error.  It has full support for errors.Is
// and errors.As, so the caller can directly check against an error kind
// when determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific error.
const (
	// ErrNotStakeBlock indicates a block submitted as a stake block does
	// not carry a coinstake transaction.
	ErrNotStakeBlock = ErrorKind("ErrNotStakeBlock")

	// ErrStaleBlock indicates a stake block no longer builds on the current
	// best chain tip.
	ErrStaleBlock = ErrorKind("ErrStaleBlock")

	// ErrKernelSpent indicates the kernel input of a stake block has
	// already been spent.
	ErrKernelSpent = ErrorKind("ErrKernelSpent")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies an error related to stake mining.  It has full support for
// errors.Is and errors.As, so the caller can ascertain the specific reason
// for the error by checking the underlying error.
type Error struct {
	Err         error
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// stakeError creates an Error given a set of arguments.
func stakeError(kind ErrorKind, desc string) Error {
	return Error{Err: kind, Description: desc}
}
