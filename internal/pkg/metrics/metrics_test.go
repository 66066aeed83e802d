package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestWriteTextfile(t *testing.T) {
	before := testutil.ToFloat64(WorkflowTotal.WithLabelValues("update", "ok"))
	WorkflowTotal.WithLabelValues("update", "ok").Inc()
	if got := testutil.ToFloat64(WorkflowTotal.WithLabelValues("update", "ok")); got != before+1 {
		t.Fatalf("counter = %v, want %v", got, before+1)
	}

	path := filepath.Join(t.TempDir(), "nanoflash.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `nanoflash_workflow_total{outcome="ok",workflow="update"}`) {
		t.Errorf("textfile misses workflow counter:\n%s", data)
	}
}
