package registry

import (
	"context"
	stdjson "encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRegistry = `{
  "components": {
    "header": {
      "default": {"title": "Shop", "theme": {"color": "blue", "dense": false}},
      "schema": {
        "type": "object",
        "properties": {
          "title": {"type": "string"},
          "count": {"type": "integer"},
          "theme": {"type": "object"}
        },
        "required": ["title"]
      }
    },
    "footer": {
      "default": {"links": ["about"]}
    },
    "banner": {}
  }
}`

func writeRegistry(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "registry.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "registry.json"))
	require.NoError(t, err)
	assert.Empty(t, r.Keys())
	assert.Equal(t, map[string]interface{}{}, r.Default("header"))
	assert.Nil(t, r.Validate("header", map[string]interface{}{"anything": 1}))
}

func TestLoadComponents(t *testing.T) {
	r, err := Load(writeRegistry(t, t.TempDir(), testRegistry))
	require.NoError(t, err)

	assert.Equal(t, []string{"banner", "footer", "header"}, r.Keys())
	assert.True(t, r.Has("banner"))
	assert.False(t, r.Has("sidebar"))
	assert.Equal(t, map[string]interface{}{}, r.Default("banner"))
	assert.Equal(t, map[string]interface{}{"links": []interface{}{"about"}}, r.Default("footer"))
}

func TestDefaultReturnsPrivateCopy(t *testing.T) {
	r := New()
	require.NoError(t, r.Set([]byte(testRegistry)))

	d := r.Default("header")
	d["title"] = "changed"
	d["theme"].(map[string]interface{})["color"] = "red"

	again := r.Default("header")
	assert.Equal(t, "Shop", again["title"])
	assert.Equal(t, "blue", again["theme"].(map[string]interface{})["color"])
}

func TestValidate(t *testing.T) {
	r := New()
	require.NoError(t, r.Set([]byte(testRegistry)))

	assert.Nil(t, r.Validate("header", map[string]interface{}{"title": "ok", "count": float64(2)}))
	assert.Nil(t, r.Validate("footer", map[string]interface{}{"links": "no schema, no check"}))

	msgs := r.Validate("header", map[string]interface{}{"title": float64(5)})
	require.Len(t, msgs, 1)
	assert.Regexp(t, `^/title: `, msgs[0])

	msgs = r.Validate("header", map[string]interface{}{"count": "x"})
	require.Len(t, msgs, 2)
	assert.Regexp(t, `^/: .*title`, msgs[0])
	assert.Regexp(t, `^/count: `, msgs[1])
}

func TestNumbersKeepPrecision(t *testing.T) {
	r := New()
	require.NoError(t, r.Set([]byte(`{"components": {"banner": {
	  "default": {"id": 9007199254740993},
	  "schema": {"type": "object", "properties": {"id": {"type": "integer"}}}
	}}}`)))

	assert.Equal(t, map[string]interface{}{"id": stdjson.Number("9007199254740993")}, r.Default("banner"))
	assert.Nil(t, r.Validate("banner", map[string]interface{}{"id": stdjson.Number("9007199254740993")}))
	assert.Len(t, r.Validate("banner", map[string]interface{}{"id": stdjson.Number("1.5")}), 1)
}

func TestLoadRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(writeRegistry(t, dir, `{"components": `))
	assert.ErrorContains(t, err, "invalid registry json")

	_, err = Load(writeRegistry(t, dir, `{"components": {"x": {"default": [1, 2]}}}`))
	assert.ErrorContains(t, err, "default must be an object")

	_, err = Load(writeRegistry(t, dir, `{"components": {"x": {"schema": {"type": 12}}}}`))
	assert.ErrorContains(t, err, "invalid schema")
}

func TestReloadKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	path := writeRegistry(t, dir, testRegistry)
	r, err := Load(path)
	require.NoError(t, err)

	writeRegistry(t, dir, `not json`)
	assert.Error(t, r.Reload())
	assert.Len(t, r.Keys(), 3)
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeRegistry(t, dir, `{"components": {"header": {}}}`)
	r, err := Load(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := logrus.New()
	log.SetOutput(io.Discard)

	reloaded := make(chan error, 16)
	require.NoError(t, r.Watch(ctx, log, func(err error) { reloaded <- err }))

	// write to a temporary name and rename into place so the reload never
	// sees a half written file
	tmp := filepath.Join(dir, "registry.json.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte(testRegistry), 0644))
	require.NoError(t, os.Rename(tmp, path))

	deadline := time.After(5 * time.Second)
	for !r.Has("footer") {
		select {
		case <-reloaded:
		case <-deadline:
			t.Fatal("registry was not reloaded")
		}
	}
	assert.Equal(t, []string{"banner", "footer", "header"}, r.Keys())
}

func TestWatchRequiresFile(t *testing.T) {
	err := New().Watch(context.Background(), logrus.New(), nil)
	assert.Error(t, err)
}
