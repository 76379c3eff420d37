package remote

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryRecord is one record held by a MemoryStore.
type MemoryRecord struct {
	ID           string
	Body         Body
	LastModified time.Time
}

// MemoryCalls counts the mutating calls a MemoryStore has served.
type MemoryCalls struct {
	Search int
	Create int
	Update int
	Delete int
}

// MemoryStore is an in-process Store used by tests and dry runs.
//
// Search matches by plain substring, like a full-text index would, and
// filters by body start time within the window.
type MemoryStore struct {
	mu          sync.Mutex
	destination string
	now         func() time.Time
	records     map[string]*MemoryRecord
	nextID      int
	calls       MemoryCalls
	failures    map[string][]error
}

// NewMemoryStore creates an empty store. now stamps LastModified; nil means
// time.Now.
func NewMemoryStore(destination string, now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		destination: destination,
		now:         now,
		records:     make(map[string]*MemoryRecord),
		failures:    make(map[string][]error),
	}
}

// Destination implements Store.
func (m *MemoryStore) Destination() string {
	return m.destination
}

// Seed inserts a record with a caller-chosen id and modification time.
func (m *MemoryStore) Seed(id string, body Body, lastModified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = &MemoryRecord{ID: id, Body: body, LastModified: lastModified}
}

// FailNext makes the next call of op ("search", "create", "update",
// "delete") return err. Multiple calls queue.
func (m *MemoryStore) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = append(m.failures[op], err)
}

// Records returns a snapshot of all records ordered by id.
func (m *MemoryStore) Records() []MemoryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MemoryRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the record with id.
func (m *MemoryStore) Get(id string) (MemoryRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return MemoryRecord{}, false
	}
	return *r, true
}

// Calls returns the call counters.
func (m *MemoryStore) Calls() MemoryCalls {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Search implements Store.
func (m *MemoryStore) Search(_ context.Context, marker string, window TimeWindow) ([]RecordView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Search++
	if err := m.popFailure("search"); err != nil {
		return nil, err
	}

	var views []RecordView
	for _, r := range m.records {
		if !strings.Contains(r.Body.Description, marker) || !overlaps(r.Body, window) {
			continue
		}
		views = append(views, RecordView{ID: r.ID, LastModified: r.LastModified, Description: r.Body.Description})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	return views, nil
}

// Create implements Store.
func (m *MemoryStore) Create(_ context.Context, body Body) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Create++
	if err := m.popFailure("create"); err != nil {
		return "", err
	}

	m.nextID++
	id := fmt.Sprintf("mem-%d", m.nextID)
	for m.records[id] != nil {
		m.nextID++
		id = fmt.Sprintf("mem-%d", m.nextID)
	}
	m.records[id] = &MemoryRecord{ID: id, Body: body, LastModified: m.now()}
	return id, nil
}

// Update implements Store.
func (m *MemoryStore) Update(_ context.Context, id string, body Body) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Update++
	if err := m.popFailure("update"); err != nil {
		return "", err
	}

	r, ok := m.records[id]
	if !ok {
		return "", fmt.Errorf("update %s: %w", id, ErrRecordNotFound)
	}
	r.Body = body
	r.LastModified = m.now()
	return id, nil
}

// Delete implements Store. Deleting a missing id succeeds.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Delete++
	if err := m.popFailure("delete"); err != nil {
		return err
	}
	delete(m.records, id)
	return nil
}

func (m *MemoryStore) popFailure(op string) error {
	queue := m.failures[op]
	if len(queue) == 0 {
		return nil
	}
	m.failures[op] = queue[1:]
	return queue[0]
}

func overlaps(b Body, w TimeWindow) bool {
	return b.Start.Before(w.Max) && b.End.After(w.Min)
}
