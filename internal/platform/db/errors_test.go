package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestNotFound(t *testing.T) {
	if got := NotFound(pgx.ErrNoRows); !errors.Is(got, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", got)
	}
	if got := NotFound(fmt.Errorf("scan: %w", pgx.ErrNoRows)); !errors.Is(got, ErrNotFound) {
		t.Errorf("expected wrapped ErrNoRows to map to ErrNotFound, got %v", got)
	}

	other := errors.New("boom")
	if got := NotFound(other); got != other {
		t.Errorf("expected passthrough, got %v", got)
	}
	if NotFound(nil) != nil {
		t.Error("expected nil to stay nil")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !IsUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Error("expected 23505 to be a unique violation")
	}
	if !IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})) {
		t.Error("expected wrapped 23505 to be a unique violation")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("foreign key violation is not a unique violation")
	}
	if IsUniqueViolation(errors.New("plain")) {
		t.Error("plain error is not a unique violation")
	}
}

func TestNoTx_RunsFunction(t *testing.T) {
	called := false
	err := NoTx{}.InTx(context.Background(), func(ctx context.Context) error {
		called = true
		if TxFromContext(ctx) != nil {
			t.Error("expected no transaction in context")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected fn to be called")
	}

	want := errors.New("rollback")
	if got := (NoTx{}).InTx(context.Background(), func(context.Context) error { return want }); got != want {
		t.Errorf("expected fn error to propagate, got %v", got)
	}
}
