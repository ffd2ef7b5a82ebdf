package archiver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCatalog = `{
  "learning_paths": [
    {
      "id": "backend-path",
      "title": "Backend",
      "url": "https://example.com/paths/backend",
      "courses": [
        {"id": "go-basics", "title": "Go Basics", "url": "https://example.com/courses/go-basics"}
      ]
    }
  ],
  "courses": [
    {"id": "standalone", "title": "Standalone", "url": "https://example.com/courses/standalone"}
  ]
}`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestCatalogCollector(t *testing.T) {
	collector, err := NewCatalogCollector(writeCatalog(t, sampleCatalog))
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("learning path by id", func(t *testing.T) {
		lp, err := collector.FetchLearningPath(ctx, "backend-path")
		require.NoError(t, err)
		assert.Equal(t, "Backend", lp.Title)
		require.Len(t, lp.Courses, 1)
	})

	t.Run("learning path by url", func(t *testing.T) {
		lp, err := collector.FetchLearningPath(ctx, "https://example.com/paths/backend")
		require.NoError(t, err)
		assert.Equal(t, "backend-path", lp.ID)
	})

	t.Run("standalone course", func(t *testing.T) {
		course, err := collector.FetchCourse(ctx, "standalone")
		require.NoError(t, err)
		assert.Equal(t, "Standalone", course.Title)
	})

	t.Run("course nested in a path", func(t *testing.T) {
		course, err := collector.FetchCourse(ctx, "go-basics")
		require.NoError(t, err)
		assert.Equal(t, "Go Basics", course.Title)
	})

	t.Run("unknown ref", func(t *testing.T) {
		_, err := collector.FetchLearningPath(ctx, "nope")
		assert.Error(t, err)
		_, err = collector.FetchCourse(ctx, "nope")
		assert.Error(t, err)
	})
}

func TestNewCatalogCollectorErrors(t *testing.T) {
	_, err := NewCatalogCollector(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = NewCatalogCollector(writeCatalog(t, "{not json"))
	assert.Error(t, err)
}
