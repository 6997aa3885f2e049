// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package errors

import (
	"errors"
	"testing"
)

func TestError(t *testing.T) {
	err := New(KindValidation, "invalid input")
	if err.Error() != "invalid input" {
		t.Errorf("expected 'invalid input', got '%s'", err.Error())
	}

	wrapped := Wrap(err, KindInternal, "failed to validate")
	if wrapped.Error() != "failed to validate: invalid input" {
		t.Errorf("expected 'failed to validate: invalid input', got '%s'", wrapped.Error())
	}
}

func TestGetKind(t *testing.T) {
	err := New(KindValidation, "invalid input")
	if GetKind(err) != KindValidation {
		t.Errorf("expected KindValidation, got %v", GetKind(err))
	}

	wrapped := Wrap(err, KindInternal, "failed")
	if GetKind(wrapped) != KindInternal {
		t.Errorf("expected KindInternal, got %v", GetKind(wrapped))
	}

	if GetKind(errors.New("std error")) != KindUnknown {
		t.Errorf("expected KindUnknown, got %v", GetKind(errors.New("std error")))
	}
}

func TestWrapNilIsNil(t *testing.T) {
	if Wrap(nil, KindInternal, "ignored") != nil {
		t.Error("wrapping nil should stay nil")
	}
	if Wrapf(nil, KindInternal, "ignored %d", 1) != nil {
		t.Error("wrapping nil should stay nil")
	}
}

func TestUnwrapChain(t *testing.T) {
	cause := errors.New("socket closed")
	err := Wrap(cause, KindUnavailable, "netlink read")

	if !Is(err, cause) {
		t.Error("expected Is to find the wrapped cause")
	}
	if Unwrap(err) != cause {
		t.Errorf("Unwrap = %v, want the original cause", Unwrap(err))
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindUnknown:     "unknown",
		KindInternal:    "internal",
		KindValidation:  "validation",
		KindNotFound:    "not_found",
		KindUnavailable: "unavailable",
	}
	for kind, want := range cases {
		if kind.String() != want {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, kind.String(), want)
		}
	}
}
