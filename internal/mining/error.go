// Copyright (c) 2024-2026 The Nucash developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

// ErrorKind identifies a kind of error.  It has full support for errors.Is
// and errors.As, so the caller can directly check against an error kind
// when determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific RuleError.
const (
	// ErrGettingDifficulty indicates that there was an error getting the
	// next required difficulty for a new block template.
	ErrGettingDifficulty = ErrorKind("ErrGettingDifficulty")

	// ErrTransactionAppend indicates there was a problem adding a msgtx
	// to a msgblock.
	ErrTransactionAppend = ErrorKind("ErrTransactionAppend")

	// ErrCheckBlockSanity indicates that a newly created block template
	// failed the configured structural sanity check.
	ErrCheckBlockSanity = ErrorKind("ErrCheckBlockSanity")

	// ErrCoinbaseScript indicates that the signature script for a coinbase
	// transaction could not be built.
	ErrCoinbaseScript = ErrorKind("ErrCoinbaseScript")

	// ErrInvalidTimestamp indicates a stake block template was requested
	// without a usable block timestamp.
	ErrInvalidTimestamp = ErrorKind("ErrInvalidTimestamp")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies an error related to mining.  It has full support for
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

// makeError creates an Error given a set of arguments.
func makeError(kind ErrorKind, desc string) Error {
	return Error{Err: kind, Description: desc}
}

// miningRuleError creates an Error given a set of arguments.
func miningRuleError(kind ErrorKind, desc string) error {
	return makeError(kind, desc)
}
