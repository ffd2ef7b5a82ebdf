// Package storage lays out archived course content on disk and supports
// duplicating a finished course into another learning path's tree.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Manager handles the on-disk layout of archived courses.
//
// Layout under the base directory:
//
//	<base>/<learning path>/<course>/<chapter>/<unit files>
//
// Courses downloaded outside a learning path live directly under the
// base directory.
type Manager struct {
	baseDir string
}

// NewManager creates a storage manager rooted at baseDir
func NewManager(baseDir string) (*Manager, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Manager{baseDir: baseDir}, nil
}

// BaseDir returns the root of the archive tree
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// CourseDir returns the directory for a course, under its learning path
// when one is given, creating it on demand.
func (m *Manager) CourseDir(pathTitle, courseTitle string) (string, error) {
	parts := []string{m.baseDir}
	if pathTitle != "" {
		parts = append(parts, pathTitle)
	}
	parts = append(parts, courseTitle)

	dir := filepath.Join(parts...)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create course directory: %w", err)
	}
	return dir, nil
}

// ChapterDir returns the directory for a chapter inside a course,
// creating it on demand.
func (m *Manager) ChapterDir(courseDir, chapterTitle string) (string, error) {
	dir := filepath.Join(courseDir, chapterTitle)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create chapter directory: %w", err)
	}
	return dir, nil
}

// SaveFile writes r to path atomically via a temp file and rename, so an
// interrupted write never leaves a partial file at the destination.
func SaveFile(r io.Reader, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	tempPath := path + ".tmp"
	out, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	_, err = io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to write file data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

// Exists reports whether path exists
func (m *Manager) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// FileSize returns the size of path, or 0 if it cannot be read
func (m *Manager) FileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// CopyCourse duplicates an already-downloaded course tree into another
// location. Used when a course finished under one learning path is
// requested by a different path: copying beats re-downloading the whole
// course over the network.
func (m *Manager) CopyCourse(srcDir, dstDir string) error {
	info, err := os.Stat(srcDir)
	if err != nil {
		return fmt.Errorf("source course not readable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source course %s is not a directory", srcDir)
	}

	return filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dstDir, rel)

		if info.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	_, err = io.Copy(out, in)
	closeErr := out.Close()
	if err != nil {
		os.Remove(dst)
		return fmt.Errorf("failed to copy to %s: %w", dst, err)
	}
	if closeErr != nil {
		os.Remove(dst)
		return fmt.Errorf("failed to close %s: %w", dst, closeErr)
	}
	return nil
}
