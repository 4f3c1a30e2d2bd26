package errs

import (
	"errors"
	"fmt"
	"testing"

	"gorm.io/gorm"
)

func TestKinds(t *testing.T) {
	cause := errors.New("disk full")

	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"not found", NotFound("visitor", 7), IsNotFound},
		{"validation", Validation("fingerprint", "required"), IsValidation},
		{"persistence", Persistence("insert log", cause), IsPersistence},
		{"conflict", Conflict("fingerprint", "abc", cause), IsConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			if !tt.check(wrapped) {
				t.Errorf("Expected %v to match its kind through wrapping", wrapped)
			}
		})
	}

	if !errors.Is(Persistence("insert log", cause), cause) {
		t.Error("Expected persistence error to unwrap to its cause")
	}
	if IsNotFound(Validation("x", "y")) {
		t.Error("Expected validation error not to be reported as not found")
	}
}

func TestPersistence_NilAndNested(t *testing.T) {
	if Persistence("op", nil) != nil {
		t.Error("Expected nil for a nil cause")
	}

	inner := Persistence("inner", errors.New("boom"))
	outer := Persistence("outer", inner)
	if outer != inner {
		t.Errorf("Expected nested persistence error to be returned as is, got %v", outer)
	}
}

func TestFromStore(t *testing.T) {
	if FromStore("find", "visitor", 1, nil) != nil {
		t.Error("Expected nil for nil error")
	}
	if !IsNotFound(FromStore("find", "visitor", 1, gorm.ErrRecordNotFound)) {
		t.Error("Expected record not found to map to NotFound")
	}
	if !IsConflict(FromStore("insert", "fingerprint", "abc", errors.New("constraint failed: UNIQUE constraint failed: fingerprints.value"))) {
		t.Error("Expected unique violation to map to Conflict")
	}
	if !IsPersistence(FromStore("insert", "fingerprint", "abc", errors.New("database is locked"))) {
		t.Error("Expected other errors to map to Persistence")
	}
}

func TestValidationError_Message(t *testing.T) {
	if got := Validation("", "empty body").Error(); got != "validation failed: empty body" {
		t.Errorf("Expected message without field, got %q", got)
	}
	if got := Validation("email", "invalid").Error(); got != "validation failed on email: invalid" {
		t.Errorf("Expected message with field, got %q", got)
	}
}
