package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/VividCortex/mysqlerr"
	"github.com/go-sql-driver/mysql"
)

func TestClassifyMapsMySQLErrorToDbError(t *testing.T) {
	raw := &mysql.MySQLError{Number: mysqlerr.ER_DUP_ENTRY, Message: "Duplicate entry '1' for key 'PRIMARY'"}
	got := classify(raw)

	var dbErr *DbError
	if !errors.As(got, &dbErr) {
		t.Fatalf("expected *DbError, got %T", got)
	}
	if dbErr.Code != mysqlerr.ER_DUP_ENTRY {
		t.Fatalf("expected code %d, got %d", mysqlerr.ER_DUP_ENTRY, dbErr.Code)
	}
	if !IsDuplicateEntry(got) {
		t.Fatal("expected IsDuplicateEntry to report true")
	}
	if dbErr.ConstantName != "ER_DUP_ENTRY" {
		t.Fatalf("expected ConstantName %q, got %q", "ER_DUP_ENTRY", dbErr.ConstantName)
	}
}

// An unrecognized MySQL error code must leave ConstantName empty
// rather than panic or guess.
func TestClassifyLeavesConstantNameEmptyForUnknownCode(t *testing.T) {
	raw := &mysql.MySQLError{Number: 65000, Message: "made up for this test"}
	got := classify(raw)

	var dbErr *DbError
	if !errors.As(got, &dbErr) {
		t.Fatalf("expected *DbError, got %T", got)
	}
	if dbErr.ConstantName != "" {
		t.Fatalf("expected empty ConstantName for an unrecognized code, got %q", dbErr.ConstantName)
	}
}

func TestClassifyMapsOtherErrorsToDbConnectError(t *testing.T) {
	got := classify(errors.New("connection refused"))

	var connErr *DbConnectError
	if !errors.As(got, &connErr) {
		t.Fatalf("expected *DbConnectError, got %T", got)
	}
}

func TestIsConstraintViolation(t *testing.T) {
	err := classify(&mysql.MySQLError{Number: mysqlerr.ER_BAD_NULL_ERROR, Message: "Column cannot be null"})
	if !IsConstraintViolation(err) {
		t.Fatal("expected ER_BAD_NULL_ERROR to be a constraint violation")
	}
	if IsDuplicateEntry(err) {
		t.Fatal("did not expect a null violation to also be a duplicate entry")
	}
}

func TestClassifyNilIsNil(t *testing.T) {
	if classify(nil) != nil {
		t.Fatal("expected classify(nil) to return nil")
	}
}

func TestClassifyMapsContextDeadlineToSystemError(t *testing.T) {
	got := classify(context.DeadlineExceeded)

	var sysErr *SystemError
	if !errors.As(got, &sysErr) {
		t.Fatalf("expected *SystemError, got %T", got)
	}

	var connErr *DbConnectError
	if errors.As(got, &connErr) {
		t.Fatal("a Save/Load context timeout must not be misclassified as a lost connection")
	}
}
