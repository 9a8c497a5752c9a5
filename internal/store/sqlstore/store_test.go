package sqlstore

import (
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

var testStore *SQLStore

func SetupTestDB(t *testing.T) {
	var err error
	testStore, err = New("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
}

func TeardownTestDB() {
	testStore.db.Close()
}

func TestRebind(t *testing.T) {
	s := &SQLStore{driverName: "postgres"}
	got := s.rebind("SELECT body FROM records WHERE collection = ? AND id = ?")
	want := "SELECT body FROM records WHERE collection = $1 AND id = $2"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}

	s = &SQLStore{driverName: "pgx"}
	if got := s.rebind("id = ?"); got != "id = $1" {
		t.Errorf("Expected pgx placeholders, got %q", got)
	}

	s = &SQLStore{driverName: "sqlite3"}
	if got := s.rebind("id = ?"); got != "id = ?" {
		t.Errorf("Expected sqlite placeholders untouched, got %q", got)
	}
}
