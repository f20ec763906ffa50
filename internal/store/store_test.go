package store

import (
	"context"
	stdjson "encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eltrade/mnconfig/internal/config"
)

var testedBackends = []string{config.BackendJSON, config.BackendBolt, config.BackendSQLite}

// runForAllStores runs testFunc against a fresh instance of every backend
func runForAllStores(t *testing.T, testFunc func(*testing.T, Store)) {
	for _, backend := range testedBackends {
		backend := backend
		t.Run(backend, func(t *testing.T) {
			s, err := Open(backend, t.TempDir())
			require.NoError(t, err)
			defer s.Close()

			testFunc(t, s)
		})
	}
}

func testDoc(component, scopeType, scopeKey string, version int, value map[string]interface{}) Document {
	return Document{
		Tenant:       "default",
		Env:          "dev",
		ComponentKey: component,
		ScopeType:    scopeType,
		ScopeKey:     scopeKey,
		Version:      version,
		Value:        value,
		CreatedAt:    Timestamp(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
		CreatedBy:    "dev",
	}
}

func TestListEmptyStore(t *testing.T) {
	runForAllStores(t, func(t *testing.T, s Store) {
		docs, err := s.List(context.Background(), Filter{})
		require.NoError(t, err)
		assert.NotNil(t, docs)
		assert.Empty(t, docs)
	})
}

func TestAppendPreservesInsertionOrder(t *testing.T) {
	runForAllStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		want := []Document{
			testDoc("header", ScopeGlobal, "*", 1, map[string]interface{}{"title": "a"}),
			testDoc("footer", ScopeGlobal, "*", 1, map[string]interface{}{"links": []interface{}{"x"}}),
			testDoc("header", ScopeRoute, "/products/*", 1, map[string]interface{}{"nested": map[string]interface{}{"n": stdjson.Number("3")}}),
			testDoc("header", ScopeGlobal, "*", 2, map[string]interface{}{}),
		}
		for _, d := range want {
			require.NoError(t, s.Append(ctx, d))
		}

		docs, err := s.List(ctx, Filter{})
		require.NoError(t, err)
		assert.Equal(t, want, docs)
	})
}

func TestListFilter(t *testing.T) {
	runForAllStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		other := testDoc("header", ScopeGlobal, "*", 1, map[string]interface{}{})
		other.Tenant = "acme"

		require.NoError(t, s.Append(ctx, testDoc("header", ScopeGlobal, "*", 1, map[string]interface{}{})))
		require.NoError(t, s.Append(ctx, other))
		require.NoError(t, s.Append(ctx, testDoc("header", ScopePage, "home", 1, map[string]interface{}{})))
		require.NoError(t, s.Append(ctx, testDoc("footer", ScopeGlobal, "*", 1, map[string]interface{}{})))

		docs, err := s.List(ctx, Filter{Tenant: "default", Env: "dev", ComponentKey: "header"})
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, ScopeGlobal, docs[0].ScopeType)
		assert.Equal(t, ScopePage, docs[1].ScopeType)

		docs, err = s.List(ctx, Filter{ScopeType: ScopePage, ScopeKey: "home"})
		require.NoError(t, err)
		require.Len(t, docs, 1)

		docs, err = s.List(ctx, Filter{Tenant: "acme"})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "acme", docs[0].Tenant)
	})
}

func TestDeleteAndClear(t *testing.T) {
	runForAllStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Append(ctx, testDoc("header", ScopeGlobal, "*", 1, map[string]interface{}{})))
		require.NoError(t, s.Append(ctx, testDoc("header", ScopeGlobal, "*", 2, map[string]interface{}{})))
		require.NoError(t, s.Append(ctx, testDoc("footer", ScopeGlobal, "*", 1, map[string]interface{}{})))

		n, err := s.Delete(ctx, Filter{Tenant: "default", Env: "dev", ComponentKey: "header"})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = s.Delete(ctx, Filter{ComponentKey: "missing"})
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		docs, err := s.List(ctx, Filter{})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "footer", docs[0].ComponentKey)

		require.NoError(t, s.Clear(ctx))
		docs, err = s.List(ctx, Filter{})
		require.NoError(t, err)
		assert.Empty(t, docs)

		// the store stays usable after a clear
		require.NoError(t, s.Append(ctx, testDoc("header", ScopeGlobal, "*", 1, map[string]interface{}{})))
		docs, err = s.List(ctx, Filter{})
		require.NoError(t, err)
		assert.Len(t, docs, 1)
	})
}

func TestStoresPersistAcrossReopen(t *testing.T) {
	for _, backend := range testedBackends {
		backend := backend
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()

			s, err := Open(backend, dir)
			require.NoError(t, err)
			doc := testDoc("header", ScopeRoute, "/a/*", 1, map[string]interface{}{"k": "v"})
			require.NoError(t, s.Append(ctx, doc))
			require.NoError(t, s.Close())

			s, err = Open(backend, dir)
			require.NoError(t, err)
			defer s.Close()

			docs, err := s.List(ctx, Filter{})
			require.NoError(t, err)
			assert.Equal(t, []Document{doc}, docs)
		})
	}
}

func TestJSONStoreReadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), JSONFileName)
	content := `[
  {
    "tenant": "default",
    "env": "dev",
    "componentKey": "header",
    "scopeType": "global",
    "scopeKey": "*",
    "version": 1,
    "value": {"title": "Hello"},
    "createdAt": 1714564800.25,
    "createdBy": "dev"
  }
]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	s, err := NewJSONStore(path)
	require.NoError(t, err)

	docs, err := s.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, map[string]interface{}{"title": "Hello"}, docs[0].Value)
	assert.Equal(t, int64(1714564800), docs[0].Created().Unix())
	assert.Equal(t, 250*time.Millisecond, time.Duration(docs[0].Created().Nanosecond()).Round(time.Millisecond))
}

func TestJSONStoreReadsNonObjectValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), JSONFileName)
	content := `[
  {"tenant": "default", "env": "dev", "componentKey": "menu", "scopeType": "global",
   "scopeKey": "*", "version": 1, "value": ["a", "b"], "createdAt": 1714564800, "createdBy": "dev"},
  {"tenant": "default", "env": "dev", "componentKey": "flag", "scopeType": "global",
   "scopeKey": "*", "version": 1, "value": true, "createdAt": 1714564800, "createdBy": "dev"}
]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	s, err := NewJSONStore(path)
	require.NoError(t, err)

	docs, err := s.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, []interface{}{"a", "b"}, docs[0].Value)
	assert.Equal(t, true, docs[1].Value)

	// rewriting the file keeps the values as they were
	require.NoError(t, s.Append(context.Background(), testDoc("header", ScopeGlobal, "*", 1, map[string]interface{}{})))
	reopened, err := NewJSONStore(path)
	require.NoError(t, err)
	docs, err = reopened.List(context.Background(), Filter{ComponentKey: "menu"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, []interface{}{"a", "b"}, docs[0].Value)
}

func TestLargeIntegersSurviveStorage(t *testing.T) {
	runForAllStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Append(ctx, testDoc("banner", ScopeGlobal, "*", 1,
			map[string]interface{}{"id": stdjson.Number("9007199254740993")})))

		docs, err := s.List(ctx, Filter{})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		data, err := json.Marshal(docs[0].Value)
		require.NoError(t, err)
		assert.JSONEq(t, `{"id": 9007199254740993}`, string(data))
		assert.Contains(t, string(data), "9007199254740993")
	})
}

func TestJSONStoreKeepsLargeIntegersAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), JSONFileName)
	require.NoError(t, os.WriteFile(path, []byte(`[{"tenant": "default", "env": "dev", "componentKey": "banner",
  "scopeType": "global", "scopeKey": "*", "version": 1, "value": {"id": 9007199254740993},
  "createdAt": 1714564800, "createdBy": "dev"}]`), 0644))

	s, err := NewJSONStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(context.Background(), testDoc("header", ScopeGlobal, "*", 1, map[string]interface{}{})))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id": 9007199254740993`)
}

func TestJSONStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), JSONFileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := NewJSONStore(path)
	assert.ErrorContains(t, err, "error decoding store file")
}

func TestJSONStoreWritesArrayAfterClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), JSONFileName)
	s, err := NewJSONStore(path)
	require.NoError(t, err)

	require.NoError(t, s.Clear(context.Background()))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("redis", t.TempDir())
	assert.ErrorContains(t, err, "unknown store backend")
}

func TestValidScope(t *testing.T) {
	assert.True(t, ValidScope(ScopeGlobal))
	assert.True(t, ValidScope(ScopeRoute))
	assert.True(t, ValidScope(ScopePage))
	assert.False(t, ValidScope("tenant"))
	assert.False(t, ValidScope(""))
}
