//go:build blackbox

package blackbox

import (
	"net/http"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

func TestTradingSession_PersistsAllThreeTables(t *testing.T) {
	db := filepath.Join(t.TempDir(), "papertrade.db")

	out := run(t, db, "register", "alice", "--password", "pw", "--confirm", "pw")
	if !contains(out, "Registered alice with $10,000.00") {
		t.Fatalf("unexpected register output:\n%s", out)
	}

	run(t, db, "buy", "alice", "MSFT", "10")
	run(t, db, "sell", "alice", "MSFT", "4")

	out = runFail(t, db, "sell", "alice", "MSFT", "7")
	if !contains(out, "you only have 6 shares of MSFT") {
		t.Fatalf("expected insufficient shares message, got:\n%s", out)
	}

	if n := queryInt(t, db, `SELECT shares FROM positions WHERE symbol = ?`, "MSFT"); n != 6 {
		t.Fatalf("expected 6 MSFT shares, got %d", n)
	}
	if n := queryInt(t, db, `SELECT COUNT(*) FROM transactions`); n != 2 {
		t.Fatalf("expected 2 transactions, got %d", n)
	}

	out = run(t, db, "history", "alice", "--format", "csv")
	if !contains(out, ",buy,MSFT,10,410.10,4101.00,") || !contains(out, ",sell,MSFT,4,410.10,1640.40,") {
		t.Fatalf("unexpected history:\n%s", out)
	}
}

func TestServe_AnswersHealthAndStopsOnSignal(t *testing.T) {
	db := filepath.Join(t.TempDir(), "papertrade.db")
	addr := freeAddr(t)

	cmd := command(db, "serve", "--addr", addr)
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	deadline := time.Now().Add(10 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("health returned %d", resp.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			_ = cmd.Process.Kill()
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case err := <-done:
		if err != nil {
			if _, ok := err.(*exec.ExitError); ok {
				t.Fatalf("serve exited with error: %v", err)
			}
		}
	case <-time.After(15 * time.Second):
		_ = cmd.Process.Kill()
		t.Fatal("serve did not stop on SIGTERM")
	}
}
