/*******************************************************************************
* Copyright 2026 The janus authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package test

import (
	"testing"

	"github.com/sapcc/go-bits/errext"
)

// ExpectNoError fails the test if the error is non-nil.
func ExpectNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err.Error())
	}
}

// ExpectNoErrors fails the test if the error set contains any errors.
func ExpectNoErrors(t *testing.T, errs errext.ErrorSet) {
	t.Helper()
	for _, err := range errs {
		t.Error(err.Error())
	}
	if !errs.IsEmpty() {
		t.FailNow()
	}
}

// ExpectError fails the test unless the error is non-nil and renders to the
// expected message.
func ExpectError(t *testing.T, err error, expected string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, but got no error", expected)
	}
	if err.Error() != expected {
		t.Fatalf("expected error %q, but got %q", expected, err.Error())
	}
}
