package index

import (
	"encoding/json"
	"testing"

	"github.com/cuemby/jsonkv/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keysOf(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestNumericIndexEqualityAndRange(t *testing.T) {
	idx := NewIndex(Numeric)
	require.True(t, idx.Add(20.0, "u1"))
	require.True(t, idx.Add(40.0, "u2"))
	require.True(t, idx.Add(60.0, "u3"))

	assert.ElementsMatch(t, []string{"u2"}, keysOf(idx.Query("=", "40")))
	assert.ElementsMatch(t, []string{"u2", "u3"}, keysOf(idx.Query(">=", "40")))
	assert.ElementsMatch(t, []string{"u1"}, keysOf(idx.Query("<", "40")))
	assert.ElementsMatch(t, []string{"u1", "u2"}, keysOf(idx.Query("<=", "40")))
	assert.ElementsMatch(t, []string{"u1", "u3"}, keysOf(idx.Query("!=", "40")))
	assert.Empty(t, idx.Query("CONTAINS", "4"))
}

func TestNumericIndexRejectsNonNumeric(t *testing.T) {
	idx := NewIndex(Numeric)
	assert.False(t, idx.Add("not-a-number", "u1"))
	assert.True(t, idx.Empty())
}

func TestNumericIndexPrecision(t *testing.T) {
	idx := NewIndex(Numeric)
	require.True(t, idx.Add(1.2345, "k"))
	// round(1.2345*1000) = 1235 (three decimal digits preserved, 4th rounds)
	assert.ElementsMatch(t, []string{"k"}, keysOf(idx.Query("=", "1.235")))
}

func TestStringIndexEqualityAndContains(t *testing.T) {
	idx := NewIndex(String)
	require.True(t, idx.Add("ban", "k1"))
	require.True(t, idx.Add("banana", "k2"))
	require.True(t, idx.Add("xyz", "k3"))

	assert.ElementsMatch(t, []string{"k1"}, keysOf(idx.Query("=", "ban")))
	assert.ElementsMatch(t, []string{"k1", "k2"}, keysOf(idx.Query("CONTAINS", "an")))
	assert.Empty(t, keysOf(idx.Query("CONTAINS", "qqq")))
	assert.ElementsMatch(t, []string{"k2", "k3"}, keysOf(idx.Query("!=", "ban")))
}

func TestStringIndexUnsupportedRangeOps(t *testing.T) {
	idx := NewIndex(String)
	idx.Add("abc", "k1")
	assert.Empty(t, idx.Query(">", "abc"))
}

func TestIndexRemoveEagerlyDropsEmptyBuckets(t *testing.T) {
	idx := NewIndex(Numeric).(*numericIndex)
	idx.Add(5.0, "k1")
	idx.Remove(5.0, "k1")
	assert.True(t, idx.Empty())
	assert.Zero(t, idx.tree.Len())
}

func TestRegistryInsertRemoveRoundTrip(t *testing.T) {
	reg := NewRegistry([]config.FieldSpec{
		{Field: "age", IndexType: config.IndexNumeric},
		{Field: "city", IndexType: config.IndexString},
	})

	v1 := decodeJSON(t, `{"age":30,"city":"San Antonio"}`)
	reg.IndexInsert("user1", v1)

	ageIdx, ok := reg.Lookup("age")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"user1"}, keysOf(ageIdx.Query("=", "30")))

	v2 := decodeJSON(t, `{"age":31,"city":"San Antonio"}`)
	reg.IndexRemove("user1", v1)
	reg.IndexInsert("user1", v2)

	assert.Empty(t, ageIdx.Query("=", "30"))
	assert.ElementsMatch(t, []string{"user1"}, keysOf(ageIdx.Query("=", "31")))
	assert.True(t, reg.Contains("city"))
}

func decodeJSON(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}
