//go:build go1.18

package domain

import (
	"testing"
)

// Parsing must never panic and must either return a usable ID or an error.
func FuzzParseCellID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("G-001")
	f.Add("'; DROP TABLE grid_cells;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseCellID(input)
		if err != nil {
			return
		}
		if id.IsNil() {
			t.Fatal("parsed nil cell ID without error")
		}
		again, err := ParseCellID(id.String())
		if err != nil {
			t.Fatalf("round-trip failed: %v", err)
		}
		if again != id {
			t.Fatal("round-trip changed ID value")
		}
	})
}
