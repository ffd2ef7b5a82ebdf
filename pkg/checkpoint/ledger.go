package checkpoint

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the internal progress state of a learning path, course or unit.
// It is a closed set; the on-disk strings are fixed for cross-run
// compatibility and mapped explicitly in MarshalJSON/UnmarshalJSON.
type Status int

const (
	StatusPending Status = iota
	StatusInProgress
	StatusCompleted
	StatusFailed
	StatusSkipped
)

var statusNames = map[Status]string{
	StatusPending:    "pending",
	StatusInProgress: "in_progress",
	StatusCompleted:  "completed",
	StatusFailed:     "failed",
	StatusSkipped:    "skipped",
}

var statusValues = map[string]Status{
	"pending":     StatusPending,
	"in_progress": StatusInProgress,
	"completed":   StatusCompleted,
	"failed":      StatusFailed,
	"skipped":     StatusSkipped,
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "pending"
}

// IsTerminal reports whether the status is a final state for a pass
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSkipped
}

// MarshalJSON serializes the status as its stable on-disk string
func (s Status) MarshalJSON() ([]byte, error) {
	name, ok := statusNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown status value %d", int(s))
	}
	return json.Marshal(name)
}

// UnmarshalJSON parses a status from its on-disk string
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	value, ok := statusValues[name]
	if !ok {
		return fmt.Errorf("unknown status %q", name)
	}
	*s = value
	return nil
}

// LearningPath aggregates the progress of the courses it contains
type LearningPath struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	TotalCourses     int       `json:"total_courses"`
	CompletedCourses int       `json:"completed_courses"`
	FailedCourses    int       `json:"failed_courses"`
	Status           Status    `json:"status"`
	StartedAt        time.Time `json:"started_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Unit is a single downloadable item within a course
type Unit struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Course tracks one course and its units. A course may be shared by
// several learning paths; LearningPaths is the set of owning path ids.
type Course struct {
	ID            string           `json:"id"`
	Title         string           `json:"title"`
	Status        Status           `json:"status"`
	Error         string           `json:"error,omitempty"`
	LearningPaths []string         `json:"learning_paths"`
	Units         map[string]*Unit `json:"units"`
	StartedAt     time.Time        `json:"started_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// OwnedBy reports whether pathID is already in the owning-path set
func (c *Course) OwnedBy(pathID string) bool {
	for _, id := range c.LearningPaths {
		if id == pathID {
			return true
		}
	}
	return false
}

// ErrorRecord is an append-only entry in the ledger's error log
type ErrorRecord struct {
	Kind      string    `json:"kind"` // "course" or "unit"
	CourseID  string    `json:"course_id"`
	UnitID    string    `json:"unit_id,omitempty"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Statistics holds session-spanning aggregate counters. Counters move
// exactly once per entity creation and once per terminal transition.
type Statistics struct {
	TotalCourses     int `json:"total_courses"`
	CompletedCourses int `json:"completed_courses"`
	FailedCourses    int `json:"failed_courses"`
	TotalUnits       int `json:"total_units"`
	CompletedUnits   int `json:"completed_units"`
	FailedUnits      int `json:"failed_units"`
}

// Metadata identifies the ledger format
type Metadata struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

const ledgerVersion = 1

// Ledger is the full persisted progress document
type Ledger struct {
	LearningPaths map[string]*LearningPath `json:"learning_paths"`
	Courses       map[string]*Course       `json:"courses"`
	Errors        []ErrorRecord            `json:"errors"`
	Statistics    Statistics               `json:"statistics"`
	Metadata      Metadata                 `json:"metadata"`
}

// NewLedger returns an empty ledger at the current format version
func NewLedger() *Ledger {
	return &Ledger{
		LearningPaths: make(map[string]*LearningPath),
		Courses:       make(map[string]*Course),
		Errors:        []ErrorRecord{},
		Metadata: Metadata{
			Version:   ledgerVersion,
			UpdatedAt: time.Now(),
		},
	}
}
