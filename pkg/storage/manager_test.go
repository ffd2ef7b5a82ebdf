package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerCreatesBaseDir(t *testing.T) {
	base := filepath.Join(t.TempDir(), "Courses")
	m, err := NewManager(base)
	require.NoError(t, err)
	assert.Equal(t, base, m.BaseDir())
	assert.DirExists(t, base)
}

func TestCourseDir(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	t.Run("under learning path", func(t *testing.T) {
		dir, err := m.CourseDir("Backend Path", "Go Basics")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(m.BaseDir(), "Backend Path", "Go Basics"), dir)
		assert.DirExists(t, dir)
	})

	t.Run("standalone course", func(t *testing.T) {
		dir, err := m.CourseDir("", "Go Basics")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(m.BaseDir(), "Go Basics"), dir)
	})
}

func TestSaveFile(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	path := filepath.Join(m.BaseDir(), "course", "chapter", "01 - intro.vtt")
	err = SaveFile(strings.NewReader("WEBVTT"), path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "WEBVTT", string(data))
	assert.False(t, m.Exists(path+".tmp"), "temp file must not linger")
	assert.Equal(t, int64(6), m.FileSize(path))
}

func TestCopyCourse(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	src, err := m.CourseDir("Path A", "Shared Course")
	require.NoError(t, err)
	chapter, err := m.ChapterDir(src, "01 - Basics")
	require.NoError(t, err)
	require.NoError(t, SaveFile(strings.NewReader("video bytes"), filepath.Join(chapter, "01 - intro.mp4")))
	require.NoError(t, SaveFile(strings.NewReader("WEBVTT"), filepath.Join(chapter, "01 - intro.vtt")))

	dst := filepath.Join(m.BaseDir(), "Path B", "Shared Course")
	require.NoError(t, m.CopyCourse(src, dst))

	data, err := os.ReadFile(filepath.Join(dst, "01 - Basics", "01 - intro.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "video bytes", string(data))
	assert.True(t, m.Exists(filepath.Join(dst, "01 - Basics", "01 - intro.vtt")))
}

func TestCopyCourseMissingSource(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	err = m.CopyCourse(filepath.Join(m.BaseDir(), "nope"), filepath.Join(m.BaseDir(), "dst"))
	assert.Error(t, err)
}
