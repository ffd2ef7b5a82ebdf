package archiver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	errs "coursevault/pkg/errors"
	"coursevault/pkg/models"
)

// CatalogCollector is a file-backed Collector: it serves content records
// from a catalog document a site adapter exported, letting a session run
// without touching the site's enumeration APIs.
type CatalogCollector struct {
	catalog models.Catalog
}

// NewCatalogCollector loads a catalog file
func NewCatalogCollector(path string) (*CatalogCollector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var catalog models.Catalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return &CatalogCollector{catalog: catalog}, nil
}

// Catalog returns the loaded catalog
func (c *CatalogCollector) Catalog() models.Catalog {
	return c.catalog
}

// FetchLearningPath resolves a learning path by id or URL
func (c *CatalogCollector) FetchLearningPath(ctx context.Context, ref string) (*models.LearningPath, error) {
	for i := range c.catalog.LearningPaths {
		lp := &c.catalog.LearningPaths[i]
		if lp.ID == ref || lp.URL == ref {
			return lp, nil
		}
	}
	return nil, errs.New(errs.ErrorTypeNotFound, fmt.Sprintf("learning path not in catalog: %s", ref))
}

// FetchCourse resolves a course by id or URL, looking inside learning
// paths as well as at standalone courses.
func (c *CatalogCollector) FetchCourse(ctx context.Context, ref string) (*models.Course, error) {
	for i := range c.catalog.Courses {
		course := &c.catalog.Courses[i]
		if course.ID == ref || course.URL == ref {
			return course, nil
		}
	}
	for i := range c.catalog.LearningPaths {
		for j := range c.catalog.LearningPaths[i].Courses {
			course := &c.catalog.LearningPaths[i].Courses[j]
			if course.ID == ref || course.URL == ref {
				return course, nil
			}
		}
	}
	return nil, errs.New(errs.ErrorTypeNotFound, fmt.Sprintf("course not in catalog: %s", ref))
}
