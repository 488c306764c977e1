// Package testutil carries the small assertion helpers shared by the
// bridge's tests.
package testutil

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

// RequireNoError fails the test immediately if err is non-nil.
func RequireNoError(t *testing.T, err error, message string) {
	t.Helper()
	if err == nil {
		return
	}
	if message == "" {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Fatalf("%s: %v", message, err)
}

// RequireErrorIs fails the test immediately unless errors.Is matches.
func RequireErrorIs(t *testing.T, err error, target error, message string) {
	t.Helper()
	if errors.Is(err, target) {
		return
	}
	if message == "" {
		t.Fatalf("error %v does not match %v", err, target)
	}
	t.Fatalf("%s: error %v does not match %v", message, err, target)
}

// RequireEqual fails the test immediately when values are not deeply equal.
func RequireEqual(t *testing.T, got any, want any, message string) {
	t.Helper()
	if reflect.DeepEqual(got, want) {
		return
	}
	if message == "" {
		t.Fatalf("values differ.\nwant: %#v\ngot: %#v", want, got)
	}
	t.Fatalf("%s.\nwant: %#v\ngot: %#v", message, want, got)
}

// RequireTrue fails the test immediately if condition is false.
func RequireTrue(t *testing.T, condition bool, message string) {
	t.Helper()
	if condition {
		return
	}
	if message == "" {
		t.Fatalf("expected condition to be true")
		return
	}
	t.Fatalf("%s.", message)
}

// RequireStringContains fails the test immediately if substring is missing.
func RequireStringContains(t *testing.T, haystack string, needle string, message string) {
	t.Helper()
	if needle == "" || strings.Contains(haystack, needle) {
		return
	}
	if message == "" {
		t.Fatalf("expected %q to contain %q", haystack, needle)
		return
	}
	t.Fatalf("%s.", message)
}
