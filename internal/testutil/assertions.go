package testutil

import (
	"testing"

	"agrifin-loan-engine/internal/domain/loan"
)

// AssertCode checks that err maps to the expected engine error code.
func AssertCode(t *testing.T, err error, expectedCode string) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected error with code %q, got nil", expectedCode)
	}
	if got := loan.Code(err); got != expectedCode {
		t.Errorf("expected error code %q, got %q (error: %v)", expectedCode, got, err)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
