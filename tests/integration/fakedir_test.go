// Fake target directory server backing the apply integration tests.
package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeDirectory is an in-memory stand-in for the target identity system. It
// accepts creates and updates, assigns sequential internal ids, and records
// every create request body for assertions.
type fakeDirectory struct {
	mu       sync.Mutex
	srv      *httptest.Server
	records  map[string]map[string]any
	nextOuid int

	// Created holds the body of every POST in arrival order.
	Created []map[string]any
}

// newFakeDirectory starts the fake server and registers its shutdown.
func newFakeDirectory(t *testing.T) *fakeDirectory {
	t.Helper()
	d := &fakeDirectory{
		records:  make(map[string]map[string]any),
		nextOuid: 7,
	}
	d.srv = httptest.NewServer(http.HandlerFunc(d.handle))
	t.Cleanup(d.srv.Close)
	return d
}

// URL returns the server's base URL.
func (d *fakeDirectory) URL() string { return d.srv.URL }

func (d *fakeDirectory) handle(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch r.Method {
	case http.MethodPost:
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		id, _ := body["_id"].(string)
		if id == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if _, taken := d.records[id]; taken {
			w.WriteHeader(http.StatusConflict)
			return
		}
		d.Created = append(d.Created, body)

		record := make(map[string]any, len(body)+1)
		for k, v := range body {
			record[k] = v
		}
		record["_ouid"] = d.nextOuid
		d.nextOuid++
		d.records[id] = record

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(record)

	case http.MethodPatch:
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		id := parts[len(parts)-1]
		record, ok := d.records[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var changes map[string]any
		if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for k, v := range changes {
			record[k] = v
		}
		json.NewEncoder(w).Encode(record)

	case http.MethodGet:
		items := make([]map[string]any, 0, len(d.records))
		for _, rec := range d.records {
			items = append(items, rec)
		}
		json.NewEncoder(w).Encode(map[string]any{"items": items})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
