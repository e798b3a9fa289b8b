package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
)

func TestTxFromContext_Nil(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Error("expected nil tx from empty context")
	}
}

func TestTxFromContext_WithWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), txKey, "not-a-tx")
	if tx := TxFromContext(ctx); tx != nil {
		t.Error("expected nil when context value is wrong type")
	}
}

func TestWithTx_NoPool(t *testing.T) {
	err := WithTx(context.Background(), nil, pgx.TxOptions{}, func(context.Context) error { return nil })
	if err == nil {
		t.Fatal("expected error without a pool")
	}
}

func TestWithTx_Commits(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectBeginTx(Serializable)
	mock.ExpectExec("UPDATE appointments").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err = WithTx(context.Background(), mock, Serializable, func(ctx context.Context) error {
		if TxFromContext(ctx) == nil {
			t.Error("expected tx on context")
		}
		_, err := Conn(ctx, mock).Exec(ctx, "UPDATE appointments SET notes = 'x'")
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectBeginTx(Serializable)
	mock.ExpectRollback()

	boom := errors.New("boom")
	err = WithTx(context.Background(), mock, Serializable, func(ctx context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestWithTx_NestedReusesOuter(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectBeginTx(Serializable)
	mock.ExpectCommit()

	tr := NewTransactor(mock, Serializable)
	err = tr.WithinTx(context.Background(), func(outer context.Context) error {
		return tr.WithinTx(outer, func(inner context.Context) error {
			if TxFromContext(inner) != TxFromContext(outer) {
				t.Error("expected nested call to reuse the outer tx")
			}
			return nil
		})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestTransactor_RetriesSerializationFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectBeginTx(Serializable)
	mock.ExpectRollback()
	mock.ExpectBeginTx(Serializable)
	mock.ExpectCommit()

	calls := 0
	err = NewTransactor(mock, Serializable).WithinTx(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("insert: %w", &pgconn.PgError{Code: CodeSerializationFailure})
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestTransactor_GivesUpAfterMaxAttempts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	for i := 0; i < MaxTxAttempts; i++ {
		mock.ExpectBeginTx(Serializable)
		mock.ExpectRollback()
	}

	calls := 0
	err = NewTransactor(mock, Serializable).WithinTx(context.Background(), func(ctx context.Context) error {
		calls++
		return &pgconn.PgError{Code: CodeDeadlockDetected}
	})
	if !IsCode(err, CodeDeadlockDetected) {
		t.Fatalf("expected deadlock error, got %v", err)
	}
	if calls != MaxTxAttempts {
		t.Errorf("expected %d attempts, got %d", MaxTxAttempts, calls)
	}
}

func TestTransactor_DoesNotRetryOtherErrors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectBeginTx(Serializable)
	mock.ExpectRollback()

	calls := 0
	boom := errors.New("boom")
	err = NewTransactor(mock, Serializable).WithinTx(context.Background(), func(ctx context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Errorf("expected single failed attempt, got %v after %d calls", err, calls)
	}
}

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: CodeSerializationFailure})
	if !IsCode(err, CodeSerializationFailure, CodeDeadlockDetected) {
		t.Error("expected serialization failure to match")
	}
	if IsCode(err, CodeUniqueViolation) {
		t.Error("did not expect unique violation to match")
	}
	if IsCode(errors.New("plain"), CodeSerializationFailure) {
		t.Error("plain errors carry no SQLSTATE")
	}
}
