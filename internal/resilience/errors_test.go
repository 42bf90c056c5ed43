package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
)

func TestIsTransient_ExplicitTransientError(t *testing.T) {
	err := NewTransientError(errors.New("pool exhausted"))
	if !IsTransient(err) {
		t.Error("expected TransientError to be transient")
	}
}

func TestIsTransient_WrappedByEris(t *testing.T) {
	wrapped := eris.Wrap(NewTransientError(errors.New("pool exhausted")), "db: ping")
	if !IsTransient(wrapped) {
		t.Error("expected wrapped TransientError to be transient")
	}
}

func TestIsTransient_NilError(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
}

func TestIsTransient_RegularError(t *testing.T) {
	if IsTransient(errors.New("db: parse config: invalid port")) {
		t.Error("config error should not be transient")
	}
}

func TestIsTransient_Syscall(t *testing.T) {
	for _, errno := range []syscall.Errno{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED} {
		err := fmt.Errorf("dial tcp 127.0.0.1:5432: %w", errno)
		if !IsTransient(err) {
			t.Errorf("%v should be transient", errno)
		}
	}
}

func TestIsTransient_NetworkTimeout(t *testing.T) {
	err := &net.DNSError{IsTimeout: true, Err: "timeout"}
	if !IsTransient(err) {
		t.Error("network timeout should be transient")
	}
}

func TestIsTransient_PgError(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"57P03", true},  // starting up
		{"53300", true},  // too many connections
		{"08006", true},  // connection failure
		{"40001", true},  // serialization failure
		{"28P01", false}, // bad password
		{"42P01", false}, // undefined table
		{"23505", false}, // unique violation
	}
	for _, tt := range tests {
		err := fmt.Errorf("postgres: upsert: %w", &pgconn.PgError{Code: tt.code})
		if got := IsTransient(err); got != tt.want {
			t.Errorf("code %s: IsTransient = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestIsTransient_StringPatterns(t *testing.T) {
	patterns := []string{
		"connection reset by peer",
		"connect: connection refused",
		"broken pipe",
		"i/o timeout",
		"FATAL: the database system is starting up",
		"database is locked (5) (SQLITE_BUSY)",
	}
	for _, p := range patterns {
		if !IsTransient(errors.New(p)) {
			t.Errorf("expected %q to be transient", p)
		}
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	te := NewTransientError(inner)

	if !errors.Is(te, inner) {
		t.Error("TransientError.Unwrap should return the inner error")
	}
	if te.Error() != "root cause" {
		t.Errorf("expected error message %q, got %q", inner.Error(), te.Error())
	}
}
