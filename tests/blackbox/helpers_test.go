//go:build blackbox

package blackbox

import (
	"database/sql"
	"net"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func contains(s, sub string) bool { return strings.Contains(s, sub) }

func queryInt(t *testing.T, dbPath, query string, args ...any) int {
	t.Helper()

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func freeAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return ln.Addr().String()
}
