package metrics

import (
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistry_CountersAndTextfile(t *testing.T) {
	r := NewRegistry()
	r.Fetched.Add(5)
	r.Rejected.WithLabelValues("empty_items").Inc()
	r.Rejected.WithLabelValues("missing_field").Add(2)
	r.PartitionsWritten.WithLabelValues("fact_order", "merged").Inc()
	r.RowsWritten.WithLabelValues("fact_order").Add(3)

	if got := testutil.ToFloat64(r.Fetched); got != 5 {
		t.Fatalf("fetched = %v", got)
	}
	if got := testutil.ToFloat64(r.Rejected.WithLabelValues("missing_field")); got != 2 {
		t.Fatalf("rejected missing_field = %v", got)
	}

	path := filepath.Join(t.TempDir(), "orderlake.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, want := range []string{
		"orderlake_records_fetched_total 5",
		`orderlake_records_rejected_total{reason="empty_items"} 1`,
		`orderlake_partitions_written_total{mode="merged",table="fact_order"} 1`,
	} {
		if !strings.Contains(string(b), want) {
			t.Fatalf("textfile missing %q:\n%s", want, b)
		}
	}
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.FactsBuilt.Add(7)
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "orderlake_facts_built_total 7") {
		t.Fatalf("unexpected body:\n%s", b)
	}
}
