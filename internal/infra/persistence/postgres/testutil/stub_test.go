package testutil

import (
	"context"
	"database/sql/driver"
	"testing"
)

func TestStubDBStoresAndQueriesRows(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	_, err := conn.ExecContext(ctx, "INSERT INTO datasets (id, output) VALUES ($1,$2)", []driver.NamedValue{
		{Value: "ds-1"},
		{Value: "ACR_B"},
	})
	if err != nil {
		t.Fatalf("ExecContext insert: %v", err)
	}
	if len(conn.Tables["datasets"]) != 1 {
		t.Fatalf("expected datasets row to be stored, got %v", conn.Tables["datasets"])
	}

	_, err = conn.ExecContext(ctx, "DELETE FROM datasets WHERE id=$1", []driver.NamedValue{{Value: "ds-1"}})
	if err != nil {
		t.Fatalf("ExecContext delete: %v", err)
	}
	if len(conn.Tables["datasets"]) != 0 {
		t.Fatalf("expected row to be deleted")
	}

	conn.Tables["datasets"] = []map[string]any{{"id": "ds-2", "output": "ACR_A"}}
	rows, err := conn.QueryContext(ctx, "select id, output from datasets order by seq", nil)
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	defer func() { _ = rows.Close() }()

	dest := make([]driver.Value, 2)
	if err := rows.Next(dest); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if dest[0] != "ds-2" || dest[1] != "ACR_A" {
		t.Fatalf("unexpected row values: %v", dest)
	}
}

func TestStubTransactionsApplyOnCommitOnly(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	tx, err := conn.BeginTx(ctx, driver.TxOptions{})
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if _, err := conn.ExecContext(ctx, "INSERT INTO datasets (id) VALUES ($1)", []driver.NamedValue{{Value: "a"}}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if len(conn.Tables["datasets"]) != 0 {
		t.Fatalf("expected pending insert to stay invisible")
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if len(conn.Tables["datasets"]) != 0 {
		t.Fatalf("expected rollback to discard insert")
	}

	tx, _ = conn.BeginTx(ctx, driver.TxOptions{})
	_, _ = conn.ExecContext(ctx, "INSERT INTO datasets (id) VALUES ($1)", []driver.NamedValue{{Value: "b"}})
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(conn.Tables["datasets"]) != 1 {
		t.Fatalf("expected committed row, got %v", conn.Tables["datasets"])
	}
}

func TestStubFailureToggles(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	conn.FailPing = true
	if err := conn.Ping(ctx); err == nil {
		t.Fatalf("expected ping failure")
	}
	conn.FailBegin = true
	if _, err := conn.BeginTx(ctx, driver.TxOptions{}); err == nil {
		t.Fatalf("expected begin failure")
	}
	conn.FailTables = map[string]bool{"datasets": true}
	if _, err := conn.QueryContext(ctx, "select id from datasets", nil); err == nil {
		t.Fatalf("expected query failure")
	}
	if _, err := conn.QueryContext(ctx, "update datasets", nil); err == nil {
		t.Fatalf("expected parse failure")
	}
}
