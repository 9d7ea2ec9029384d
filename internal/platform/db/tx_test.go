package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
)

func TestTxFromContext_Nil(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Error("expected nil tx from empty context")
	}
}

func TestTxFromContext_WithWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), DBTxKey, "not-a-tx")
	if tx := TxFromContext(ctx); tx != nil {
		t.Error("expected nil when context value is wrong type")
	}
}

func TestWithTx_NoBeginner(t *testing.T) {
	err := WithTx(context.Background(), nil, func(context.Context) error { return nil })
	if err == nil || err.Error() != "no database connection available" {
		t.Errorf("unexpected error: %v", err)
	}
}

type failingBeginner struct{}

func (failingBeginner) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("pool closed")
}

func TestWithTx_BeginError(t *testing.T) {
	called := false
	err := WithTx(context.Background(), failingBeginner{}, func(context.Context) error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if called {
		t.Error("fn must not run when begin fails")
	}
}

// stubTx satisfies pgx.Tx for context plumbing only.
type stubTx struct{ pgx.Tx }

func TestWithTx_JoinsExistingTransaction(t *testing.T) {
	outer := &stubTx{}
	ctx := ContextWithTx(context.Background(), outer)

	var seen pgx.Tx
	err := WithTx(ctx, failingBeginner{}, func(ctx context.Context) error {
		seen = TxFromContext(ctx)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != outer {
		t.Error("expected fn to observe the outer transaction")
	}
}

func TestValidateSchemaName(t *testing.T) {
	valid := []string{"public", "claims", "tenant_01", "_x"}
	for _, s := range valid {
		if err := ValidateSchemaName(s); err != nil {
			t.Errorf("expected %q to be valid: %v", s, err)
		}
	}
	invalid := []string{"", "1abc", "drop table", "a-b", "x;y", `"q"`}
	for _, s := range invalid {
		if err := ValidateSchemaName(s); err == nil {
			t.Errorf("expected %q to be rejected", s)
		}
	}
}

func TestEnsureSchema_InvalidName(t *testing.T) {
	if err := EnsureSchema(context.Background(), nil, "bad-name!"); err == nil {
		t.Error("expected error for invalid schema name")
	}
}
