package rawzone

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"orderlake/internal/model"
)

func TestWrite_KeepsSourceBytesAndIndents(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	r1, err := model.DecodeRawRecord([]byte(`{"order_id":"o1","user_id":"u1","extra":{"k":1}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	r2 := model.RawRecord{OrderID: "o2", UserID: "u2"}

	path, err := w.Write("orders", []model.RawRecord{r1, r2})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if path != filepath.Join(dir, "orders.json") {
		t.Fatalf("unexpected path %s", path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(b), "\n  {") {
		t.Fatalf("output not indented:\n%s", b)
	}
	var got []map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 records, got %d", len(got))
	}
	if _, ok := got[0]["extra"]; !ok {
		t.Fatalf("unknown field lost: %v", got[0])
	}
	if got[1]["order_id"] != "o2" {
		t.Fatalf("unexpected second record: %v", got[1])
	}
}

func TestWrite_OverwritesPreviousRun(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	if _, err := w.Write("orders", []model.RawRecord{{OrderID: "a"}, {OrderID: "b"}}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if _, err := w.Write("orders", nil); err != nil {
		t.Fatalf("second write: %v", err)
	}
	b, err := os.ReadFile(w.Path("orders"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.TrimSpace(string(b)) != "[]" {
		t.Fatalf("want empty array, got %s", b)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("leftover files: %v", entries)
	}
}
