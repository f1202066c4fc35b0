package manifest_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/halcyon-foundry/autarch/internal/manifest"
)

const validDoc = `{
	"version": "1",
	"operations": [
		{"id": "ping", "name": "Ping", "description": "liveness probe"},
		{"id": "audit.logs", "name": "Audit Logs", "description": "review recent activity logs"},
		{"id": "state.export", "name": "Export State", "description": "export kernel state snapshot", "inputs": {"format": "json or yaml"}}
	]
}`

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func loadedCatalog(t *testing.T) *manifest.Catalog {
	t.Helper()
	c, err := manifest.New()
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	if err := c.LoadFile(writeDoc(t, validDoc)); err != nil {
		t.Fatalf("load: %v", err)
	}
	return c
}

func TestLoadFileAdmitsValidDocument(t *testing.T) {
	c := loadedCatalog(t)

	if !c.Loaded() {
		t.Fatal("catalog not loaded")
	}
	op, ok := c.Get("state.export")
	if !ok || op.Inputs["format"] != "json or yaml" {
		t.Fatalf("operation = %+v, ok = %v", op, ok)
	}
	if ops := c.Operations(); len(ops) != 3 || ops[0].ID != "audit.logs" {
		t.Fatalf("operations = %+v", ops)
	}
}

func TestSchemaRejectsMalformedDocuments(t *testing.T) {
	c, err := manifest.New()
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}

	cases := map[string]string{
		"not json":       `{{`,
		"missing fields": `{"version": "1"}`,
		"bad operation":  `{"version": "1", "operations": [{"id": ""}]}`,
		"bad inputs":     `{"version": "1", "operations": [{"id": "x", "name": "X", "inputs": {"k": 5}}]}`,
	}
	for name, doc := range cases {
		if err := c.LoadFile(writeDoc(t, doc)); err == nil {
			t.Fatalf("%s: admitted", name)
		}
	}
	if c.Loaded() {
		t.Fatal("rejected document marked loaded")
	}
}

func TestDuplicateOperationIDsRejected(t *testing.T) {
	c, err := manifest.New()
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	doc := `{"version": "1", "operations": [{"id": "ping", "name": "A"}, {"id": "ping", "name": "B"}]}`
	if err := c.LoadFile(writeDoc(t, doc)); err == nil {
		t.Fatal("duplicate ids admitted")
	}
}

func TestLoadURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(validDoc))
	}))
	defer srv.Close()

	c, err := manifest.New()
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	if err := c.LoadURL(context.Background(), srv.URL); err != nil {
		t.Fatalf("load url: %v", err)
	}
	if !c.Loaded() {
		t.Fatal("catalog not loaded")
	}

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer bad.Close()
	if err := c.LoadURL(context.Background(), bad.URL); err == nil {
		t.Fatal("404 admitted")
	}
}

func TestResolveBeforeLoadFails(t *testing.T) {
	c, err := manifest.New()
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	if _, err := c.ResolveIntent("ping"); err == nil {
		t.Fatal("resolution on empty catalog succeeded")
	}
}

func TestResolveIntentRules(t *testing.T) {
	c := loadedCatalog(t)

	// Slash rule: exact id at full confidence.
	res, err := c.ResolveIntent("/state.export now please")
	if err != nil || res.OperationID != "state.export" || res.Confidence != 1.0 {
		t.Fatalf("slash resolution = %+v, err = %v", res, err)
	}
	if _, err := c.ResolveIntent("/no.such.op"); err == nil {
		t.Fatal("unknown slash op resolved")
	}
	if _, err := c.ResolveIntent("/"); err == nil {
		t.Fatal("bare slash resolved")
	}

	// Ping rule.
	res, err = c.ResolveIntent("PING")
	if err != nil || res.OperationID != "ping" || res.Confidence != 1.0 {
		t.Fatalf("ping resolution = %+v, err = %v", res, err)
	}

	// Overlap ranking: two hits beat one.
	res, err = c.ResolveIntent("review the activity logs")
	if err != nil || res.OperationID != "audit.logs" {
		t.Fatalf("overlap resolution = %+v, err = %v", res, err)
	}
	if res.Confidence <= 0.6 {
		t.Fatalf("confidence = %v, want > 0.6", res.Confidence)
	}

	// No overlap falls back to the floor.
	res, err = c.ResolveIntent("zzz qqq")
	if err != nil || res.Confidence != 0.4 {
		t.Fatalf("floor resolution = %+v, err = %v", res, err)
	}
}

func TestStatusSummary(t *testing.T) {
	c, err := manifest.New()
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	if status := c.Status(); status["loaded"] != false {
		t.Fatalf("status = %+v", status)
	}

	if err := c.LoadFile(writeDoc(t, validDoc)); err != nil {
		t.Fatalf("load: %v", err)
	}
	status := c.Status()
	if status["loaded"] != true || status["operations"] != 3 || status["version"] != "1" {
		t.Fatalf("status = %+v", status)
	}
}
