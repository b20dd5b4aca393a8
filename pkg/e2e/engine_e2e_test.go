package e2e

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadro-db/hadro/pkg/config"
	"github.com/hadro-db/hadro/pkg/keys"
	"github.com/hadro-db/hadro/pkg/memtable"
	"github.com/hadro-db/hadro/pkg/metrics"
	"github.com/hadro-db/hadro/pkg/sstable"
	"github.com/hadro-db/hadro/pkg/store"
)

// TestEngineLifecycle exercises the whole engine the way an embedding
// application would: ingest past several flushes, rewrite keys, restart, and
// verify every record resolves to its latest version.
func TestEngineLifecycle(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.PrimaryKey = "doc_id"
	cfg.Columns = []string{"doc_id", "title", "views"}
	cfg.MaxRecords = 25
	cfg.EnableWAL = true

	st, err := store.Open(cfg, store.Options{Metrics: metrics.New()})
	require.NoError(t, err, "initial open")

	// Ingest 100 documents; with a 25 record ceiling this flushes 4 times.
	for i := 0; i < 100; i++ {
		err := st.Put(memtable.FieldMap{
			"doc_id": i,
			"title":  fmt.Sprintf("doc-%03d", i),
			"views":  i,
		})
		require.NoError(t, err, "ingest doc %d", i)
	}
	assert.Equal(t, 4, st.SegmentCount(), "expected one segment per 25 records")
	assert.Equal(t, 0, st.BufferLen())

	// Rewrite a slice of keys so they live in a newer segment than their
	// originals, plus one left in the buffer.
	for i := 10; i < 20; i++ {
		require.NoError(t, st.Put(memtable.FieldMap{
			"doc_id": i,
			"title":  "rewritten",
			"views":  0,
		}))
	}
	require.NoError(t, st.Flush())
	require.NoError(t, st.Put(memtable.FieldMap{
		"doc_id": 5,
		"title":  "buffered rewrite",
		"views":  0,
	}))

	rewritten, ok := st.Get(keys.Int64(15))
	require.True(t, ok)
	original, ok := st.Get(keys.Int64(50))
	require.True(t, ok)
	assert.NotEqual(t, rewritten, original)

	require.NoError(t, st.Close())

	// Restart. Segments reload from disk and the buffered rewrite of doc 5
	// comes back through the write-ahead log.
	st2, err := store.Open(cfg, store.Options{})
	require.NoError(t, err, "reopen")
	defer st2.Close()

	assert.Equal(t, 5, st2.SegmentCount())
	assert.Equal(t, 1, st2.BufferLen(), "WAL should hold exactly the buffered rewrite")

	for i := 0; i < 100; i++ {
		_, ok := st2.Get(keys.Int64(int64(i)))
		assert.True(t, ok, "doc %d missing after restart", i)
	}
	_, ok = st2.Get(keys.Int64(1000))
	assert.False(t, ok)

	// Every segment on disk must open standalone and carry its metadata.
	for _, path := range st2.Segments() {
		r, err := sstable.OpenFile(path)
		require.NoError(t, err, "segment %s", path)
		meta := r.MetaFields()
		assert.Equal(t, "doc_id", meta["primary_key"])
		assert.NotEmpty(t, meta["segment_id"])
	}
}

// TestEngineBatchedLookup covers batched point lookups spanning buffer and
// segments.
func TestEngineBatchedLookup(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.PrimaryKey = "id"
	cfg.Columns = []string{"id", "name"}

	st, err := store.Open(cfg, store.Options{})
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Put(memtable.FieldMap{"id": "alpha", "name": "a"}))
	require.NoError(t, st.Flush())
	require.NoError(t, st.Put(memtable.FieldMap{"id": "beta", "name": "b"}))

	got := st.GetIn([]keys.Key{keys.String("alpha"), keys.String("beta"), keys.String("gamma")})
	assert.Len(t, got, 2)
	assert.Contains(t, got, keys.String("alpha"))
	assert.Contains(t, got, keys.String("beta"))
	assert.NotContains(t, got, keys.String("gamma"))
}
