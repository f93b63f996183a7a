// Copyright (c) 2020-2021 The Decred developers
// Copyright (c) 2024-2026 The Nucash developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"errors"
	"io"
	"testing"
)

// TestErrorKindStringer tests the stringized output for the ErrorKind type.
func TestErrorKindStringer(t *testing.T) {
	tests := []struct {
		in   ErrorKind
		want string
	}{
		{ErrGettingDifficulty, "ErrGettingDifficulty"},
		{ErrTransactionAppend, "ErrTransactionAppend"},
		{ErrCheckBlockSanity, "ErrCheckBlockSanity"},
		{ErrCoinbaseScript, "ErrCoinbaseScript"},
		{ErrInvalidTimestamp, "ErrInvalidTimestamp"},
	}

	for i, test := range tests {
		result := test.in.Error()
		if result != test.want {
			t.Errorf("#%d: got: %s want: %s", i, result, test.want)
			continue
		}
	}
}

// TestError tests the error output for the Error type.
func TestError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   Error
		want string
	}{{
		Error{Description: "some error"},
		"some error",
	}, {
		Error{Description: "human-readable error"},
		"human-readable error",
	}}

	for i, test := range tests {
		result := test.in.Error()
		if result != test.want {
			t.Errorf("#%d: got: %s want: %s", i, result, test.want)
			continue
		}
	}
}

// TestErrorKindIsAs ensures both ErrorKind and Error can be identified as being
// a specific error kind via errors.Is and unwrapped via errors.As.
func TestErrorKindIsAs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
		wantAs    ErrorKind
	}{{
		name:      "ErrGettingDifficulty == ErrGettingDifficulty",
		err:       ErrGettingDifficulty,
		target:    ErrGettingDifficulty,
		wantMatch: true,
		wantAs:    ErrGettingDifficulty,
	}, {
		name:      "Error.ErrGettingDifficulty == ErrGettingDifficulty",
		err:       makeError(ErrGettingDifficulty, ""),
		target:    ErrGettingDifficulty,
		wantMatch: true,
		wantAs:    ErrGettingDifficulty,
	}, {
		name:      "Error.ErrGettingDifficulty == Error.ErrGettingDifficulty",
		err:       makeError(ErrGettingDifficulty, ""),
		target:    makeError(ErrGettingDifficulty, ""),
		wantMatch: true,
		wantAs:    ErrGettingDifficulty,
	}, {
		name:      "ErrGettingDifficulty != ErrTransactionAppend",
		err:       ErrGettingDifficulty,
		target:    ErrTransactionAppend,
		wantMatch: false,
		wantAs:    ErrGettingDifficulty,
	}, {
		name:      "Error.ErrGettingDifficulty != ErrTransactionAppend",
		err:       makeError(ErrGettingDifficulty, ""),
		target:    ErrTransactionAppend,
		wantMatch: false,
		wantAs:    ErrGettingDifficulty,
	}, {
		name:      "ErrGettingDifficulty != Error.ErrTransactionAppend",
		err:       ErrGettingDifficulty,
		target:    makeError(ErrTransactionAppend, ""),
		wantMatch: false,
		wantAs:    ErrGettingDifficulty,
	}, {
		name:      "Error.ErrGettingDifficulty != Error.ErrTransactionAppend",
		err:       makeError(ErrGettingDifficulty, ""),
		target:    makeError(ErrTransactionAppend, ""),
		wantMatch: false,
		wantAs:    ErrGettingDifficulty,
	}, {
		name:      "Error.ErrGettingDifficulty != io.EOF",
		err:       makeError(ErrGettingDifficulty, ""),
		target:    io.EOF,
		wantMatch: false,
		wantAs:    ErrGettingDifficulty,
	}}

	for _, test := range tests {
		// Ensure the error matches or not depending on the expected result.
		result := errors.Is(test.err, test.target)
		if result != test.wantMatch {
			t.Errorf("%s: incorrect error identification -- got %v, want %v",
				test.name, result, test.wantMatch)
			continue
		}

		// Ensure the underlying error kind can be unwrapped is and is the
		// expected kind.
		var kind ErrorKind
		if !errors.As(test.err, &kind) {
			t.Errorf("%s: unable to unwrap to error kind", test.name)
			continue
		}
		if kind != test.wantAs {
			t.Errorf("%s: unexpected unwrapped error kind -- got %v, want %v",
				test.name, kind, test.wantAs)
			continue
		}
	}
}
