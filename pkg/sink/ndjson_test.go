package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNDJSONStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matches.ndjson")
	store, err := NewNDJSONStore(path)
	if err != nil {
		t.Fatalf("NewNDJSONStore() error = %v", err)
	}

	ctx := context.Background()
	for _, id := range []string{"NA1_1", "NA1_2"} {
		if err := store.Write(ctx, decodedMatch(t, id, "p1")); err != nil {
			t.Fatalf("Write(%s) error = %v", id, err)
		}
	}
	if err := store.Write(ctx, decodedMatch(t, "NA1_1", "p1")); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate Write() = %v, want ErrDuplicate", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64<<10), 16<<20)
	for scanner.Scan() {
		var line struct {
			Metadata struct {
				MatchID string `json:"matchId"`
			} `json:"metadata"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("line is not JSON: %v", err)
		}
		ids = append(ids, line.Metadata.MatchID)
	}
	if len(ids) != 2 || ids[0] != "NA1_1" || ids[1] != "NA1_2" {
		t.Errorf("ids = %v, want [NA1_1 NA1_2]", ids)
	}
}
