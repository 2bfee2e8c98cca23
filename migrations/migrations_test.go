package migrations

import "testing"

func TestFiles_Ordered(t *testing.T) {
	t.Parallel()

	up, err := Files(".up.sql")
	if err != nil {
		t.Fatalf("Files() error = %v", err)
	}
	down, err := Files(".down.sql")
	if err != nil {
		t.Fatalf("Files() error = %v", err)
	}
	if len(up) == 0 || len(up) != len(down) {
		t.Fatalf("expected matching up/down files, got %d/%d", len(up), len(down))
	}
	if up[0] != "000001_accounts.up.sql" {
		t.Errorf("first migration = %s, want 000001_accounts.up.sql", up[0])
	}
	for i := 1; i < len(up); i++ {
		if up[i-1] >= up[i] {
			t.Errorf("migrations out of order: %s before %s", up[i-1], up[i])
		}
	}
}
