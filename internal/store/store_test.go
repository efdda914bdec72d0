package store

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/cuemby/jsonkv/internal/config"
	"github.com/cuemby/jsonkv/internal/query"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.Config{
		DataDir:   t.TempDir(),
		NumShards: 4,
		IndexedFields: []config.FieldSpec{
			{Field: "age", IndexType: config.IndexNumeric},
			{Field: "city", IndexType: config.IndexString},
		},
	}
	st, err := Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestInsertGetRoundTrip(t *testing.T) {
	st := newTestStore(t)
	val := json.RawMessage(`{"age":30,"city":"San Antonio"}`)
	if err := st.InsertOrUpdate("user1", val); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, ok := st.Get("user1")
	if !ok {
		t.Fatal("expected user1")
	}
	if string(got) != string(val) {
		t.Fatalf("got %s, want %s", got, val)
	}
}

func TestQueryEquality(t *testing.T) {
	st := newTestStore(t)
	st.InsertOrUpdate("user1", json.RawMessage(`{"age":30,"city":"San Antonio"}`))

	e, err := query.Parse(`age = 30`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	results := st.Query(e)
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
}

func TestQueryCompositeAndRange(t *testing.T) {
	st := newTestStore(t)
	st.InsertOrUpdate("user1", json.RawMessage(`{"age":30,"city":"San Antonio"}`))

	e, _ := query.Parse(`age > 25 AND city = "San Antonio"`)
	if len(st.Query(e)) != 1 {
		t.Fatal("expected composite query to match")
	}

	e2, _ := query.Parse(`age < 30`)
	if len(st.Query(e2)) != 0 {
		t.Fatal("expected no matches for age < 30")
	}
}

func TestQueryRangeAcrossMultipleRecords(t *testing.T) {
	st := newTestStore(t)
	st.InsertOrUpdate("u1", json.RawMessage(`{"age":20}`))
	st.InsertOrUpdate("u2", json.RawMessage(`{"age":40}`))
	st.InsertOrUpdate("u3", json.RawMessage(`{"age":60}`))

	e, _ := query.Parse(`age >= 40`)
	results := st.Query(e)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
}

func TestQueryContains(t *testing.T) {
	st := newTestStore(t)
	st.InsertOrUpdate("k", json.RawMessage(`{"city":"ban"}`))

	e, _ := query.Parse(`city CONTAINS "an"`)
	if len(st.Query(e)) != 1 {
		t.Fatal("expected 1 match for CONTAINS")
	}
	e2, _ := query.Parse(`city CONTAINS "xyz"`)
	if len(st.Query(e2)) != 0 {
		t.Fatal("expected 0 matches for CONTAINS xyz")
	}
}

func TestDeleteRemovesRecordAndIndex(t *testing.T) {
	st := newTestStore(t)
	st.InsertOrUpdate("k", json.RawMessage(`{"age":5}`))
	if err := st.Delete("k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := st.Get("k"); ok {
		t.Fatal("expected k to be gone")
	}
	e, _ := query.Parse(`age = 5`)
	if len(st.Query(e)) != 0 {
		t.Fatal("expected index entry to be removed on delete")
	}
}

func TestDeleteAbsentKeyReturnsNotFound(t *testing.T) {
	st := newTestStore(t)
	if err := st.Delete("nope"); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestDeleteManySkipsAbsentKeysSilently(t *testing.T) {
	st := newTestStore(t)
	st.InsertOrUpdate("a", json.RawMessage(`1`))
	if err := st.DeleteMany([]string{"a", "does-not-exist"}); err != nil {
		t.Fatalf("delete_many: %v", err)
	}
	if _, ok := st.Get("a"); ok {
		t.Fatal("expected a to be deleted")
	}
}

func TestInsertOrUpdateManyAppliesAll(t *testing.T) {
	st := newTestStore(t)
	items := make([]KV, 0, 1000)
	for i := 0; i < 1000; i++ {
		items = append(items, KV{
			Key:   "prod" + strconv.Itoa(i),
			Value: json.RawMessage(`{"age":1}`),
		})
	}
	if err := st.InsertOrUpdateMany(items); err != nil {
		t.Fatalf("insert_or_update_many: %v", err)
	}
	if len(st.List()) != 1000 {
		t.Fatalf("got %d records, want 1000", len(st.List()))
	}
}

func TestDeleteAllClearsEverything(t *testing.T) {
	st := newTestStore(t)
	st.InsertOrUpdate("a", json.RawMessage(`{"age":1}`))
	st.InsertOrUpdate("b", json.RawMessage(`{"age":2}`))
	if err := st.DeleteAll(); err != nil {
		t.Fatalf("delete_all: %v", err)
	}
	if len(st.List()) != 0 {
		t.Fatal("expected empty store after delete_all")
	}
	e, _ := query.Parse(`age = 1`)
	if len(st.Query(e)) != 0 {
		t.Fatal("expected indexes empty after delete_all")
	}
}

func TestInsertOrUpdateIdempotent(t *testing.T) {
	st := newTestStore(t)
	val := json.RawMessage(`{"age":5,"city":"X"}`)
	st.InsertOrUpdate("k", val)
	st.InsertOrUpdate("k", val)

	e, _ := query.Parse(`age = 5`)
	if len(st.Query(e)) != 1 {
		t.Fatal("expected exactly one match after idempotent re-insert")
	}
}

func TestRecoveryAfterReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{
		DataDir:   dir,
		NumShards: 4,
		IndexedFields: []config.FieldSpec{
			{Field: "age", IndexType: config.IndexNumeric},
		},
	}
	st, err := Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	st.InsertOrUpdate("user1", json.RawMessage(`{"age":30}`))
	st.Close()

	st2, err := Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()

	got, ok := st2.Get("user1")
	if !ok || string(got) != `{"age":30}` {
		t.Fatalf("expected recovered value, got %s, ok=%v", got, ok)
	}
	e, _ := query.Parse(`age = 30`)
	if len(st2.Query(e)) != 1 {
		t.Fatal("expected index rebuilt after recovery")
	}
}
