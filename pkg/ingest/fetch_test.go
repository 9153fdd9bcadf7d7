package ingest

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFetchFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jd.txt")
	if err := os.WriteFile(path, []byte("Senior Staff Engineer at Acme"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	record, err := Fetch(path)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if record.RawDescription != "Senior Staff Engineer at Acme" {
		t.Fatalf("unexpected content: %q", record.RawDescription)
	}
	if record.JobID == "" {
		t.Fatal("expected a generated job id")
	}
}

func TestFetchFromFileEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jd.txt")
	if err := os.WriteFile(path, []byte(""), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Fetch(path); err == nil {
		t.Fatal("expected an error for an empty file")
	}
}

func TestFetchFromURLStripsHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><head><style>.x{}</style></head><body><h1>Staff Engineer</h1><script>evil()</script><p>Build platforms.</p></body></html>"))
	}))
	defer srv.Close()

	record, err := Fetch(srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if record.URL != srv.URL {
		t.Fatalf("expected URL to be recorded, got %q", record.URL)
	}
	for _, bad := range []string{"<h1>", "<script>", "evil()"} {
		if strings.Contains(record.RawDescription, bad) {
			t.Fatalf("expected stripped HTML, still found %q in %q", bad, record.RawDescription)
		}
	}
	if !strings.Contains(record.RawDescription, "Staff Engineer") {
		t.Fatalf("expected text content to survive stripping, got %q", record.RawDescription)
	}
}
