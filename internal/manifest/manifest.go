// Package manifest loads the external operation catalog and resolves free
// text to catalog operations. The catalog document is validated against a
// JSON Schema before anything else sees it.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Operation is one entry in the external catalog.
type Operation struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Inputs      map[string]string `json:"inputs,omitempty"`
}

// Document is the manifest wire format.
type Document struct {
	Version    string      `json:"version"`
	Operations []Operation `json:"operations"`
}

// Resolution maps free text to a catalog operation with a heuristic
// confidence score.
type Resolution struct {
	OperationID string
	Confidence  float64
}

// documentSchema constrains manifest documents before admission.
const documentSchema = `{
	"type": "object",
	"required": ["version", "operations"],
	"properties": {
		"version": {"type": "string", "minLength": 1},
		"operations": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "name"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"name": {"type": "string", "minLength": 1},
					"description": {"type": "string"},
					"inputs": {
						"type": "object",
						"additionalProperties": {"type": "string"}
					}
				}
			}
		}
	}
}`

// Catalog holds the validated operation set.
type Catalog struct {
	mu       sync.RWMutex
	doc      *Document
	byID     map[string]Operation
	loadedAt time.Time

	schema *jsonschema.Schema
	client *http.Client
}

// New compiles the document schema and returns an empty catalog. Resolving
// against an unloaded catalog is an error.
func New() (*Catalog, error) {
	// Use jsonschema.UnmarshalJSON for correct number handling (json.Number).
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(documentSchema))
	if err != nil {
		return nil, fmt.Errorf("unmarshal manifest schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("manifest.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("manifest.json")
	if err != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", err)
	}
	return &Catalog{
		schema: schema,
		client: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// LoadFile reads and admits a manifest document from disk.
func (c *Catalog) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	return c.admit(raw)
}

// LoadURL fetches and admits a manifest document over HTTP.
func (c *Catalog) LoadURL(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build manifest request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch manifest: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch manifest: unexpected status %s", resp.Status)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read manifest body: %w", err)
	}
	return c.admit(raw)
}

// admit validates the raw document against the schema, then swaps it in.
func (c *Catalog) admit(raw []byte) error {
	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return fmt.Errorf("invalid manifest JSON: %w", err)
	}
	if err := c.schema.Validate(parsed); err != nil {
		return fmt.Errorf("manifest rejected by schema: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode manifest: %w", err)
	}
	byID := make(map[string]Operation, len(doc.Operations))
	for _, op := range doc.Operations {
		if _, dup := byID[op.ID]; dup {
			return fmt.Errorf("duplicate operation id %q", op.ID)
		}
		byID[op.ID] = op
	}

	c.mu.Lock()
	c.doc = &doc
	c.byID = byID
	c.loadedAt = time.Now()
	c.mu.Unlock()
	return nil
}

// Loaded reports whether a document has been admitted.
func (c *Catalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.doc != nil
}

// Get returns the operation with the given id.
func (c *Catalog) Get(id string) (Operation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	op, ok := c.byID[id]
	return op, ok
}

// Operations returns the catalog sorted by id.
func (c *Catalog) Operations() []Operation {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Operation, 0, len(c.byID))
	for _, op := range c.byID {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Status summarizes the catalog for diagnostics.
func (c *Catalog) Status() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := map[string]any{"loaded": c.doc != nil}
	if c.doc != nil {
		status["version"] = c.doc.Version
		status["operations"] = len(c.byID)
		status["loaded_at"] = c.loadedAt
	}
	return status
}

// ResolveIntent maps free text to an operation. A leading "/" addresses an
// operation by exact id at full confidence; "ping" resolves to a ping
// operation when the catalog has one; otherwise operations are ranked by
// word overlap against their name and description.
func (c *Catalog) ResolveIntent(text string) (Resolution, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.doc == nil {
		return Resolution{}, fmt.Errorf("manifest not loaded")
	}

	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "/") {
		fields := strings.Fields(trimmed[1:])
		if len(fields) == 0 {
			return Resolution{}, fmt.Errorf("empty operation reference")
		}
		id := fields[0]
		if _, ok := c.byID[id]; !ok {
			return Resolution{}, fmt.Errorf("unknown operation %q", id)
		}
		return Resolution{OperationID: id, Confidence: 1.0}, nil
	}

	lowered := strings.ToLower(trimmed)
	if lowered == "ping" {
		if _, ok := c.byID["ping"]; ok {
			return Resolution{OperationID: "ping", Confidence: 1.0}, nil
		}
	}

	words := strings.Fields(lowered)
	best := Resolution{Confidence: -1}
	for _, id := range sortedIDs(c.byID) {
		op := c.byID[id]
		haystack := strings.ToLower(op.Name + " " + op.Description + " " + op.ID)
		hits := 0
		for _, w := range words {
			if len(w) >= 3 && strings.Contains(haystack, w) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		confidence := 0.6 + 0.1*float64(hits)
		if confidence > 1.0 {
			confidence = 1.0
		}
		if confidence > best.Confidence {
			best = Resolution{OperationID: op.ID, Confidence: confidence}
		}
	}
	if best.Confidence < 0 {
		// Nothing overlapped; hand back the first operation at the
		// floor confidence so callers can decide whether to trust it.
		ids := sortedIDs(c.byID)
		if len(ids) == 0 {
			return Resolution{}, fmt.Errorf("manifest has no operations")
		}
		return Resolution{OperationID: ids[0], Confidence: 0.4}, nil
	}
	return best, nil
}

func sortedIDs(byID map[string]Operation) []string {
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
