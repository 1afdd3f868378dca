// Package domain holds the entity shapes the core reasons about: the
// fields relevant to validation, optimistic locking, and broadcast —
// not a full persistence model.
package domain

import (
	"regexp"
	"time"
)

type ProjectStatus string

const (
	ProjectActive   ProjectStatus = "active"
	ProjectArchived ProjectStatus = "archived"
)

var projectKeyPattern = regexp.MustCompile(`^[A-Z0-9]{1,10}$`)

// ValidProjectKey reports whether key matches the uppercase-alphanumeric,
// 1-10 character convention used for work item display keys.
func ValidProjectKey(key string) bool {
	return projectKeyPattern.MatchString(key)
}

type Project struct {
	ID                 string
	Key                string
	Title              string
	Description        *string
	Status             ProjectStatus
	NextWorkItemNumber int
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CreatedBy          string
	UpdatedBy          string
	DeletedAt          *time.Time
}

func (p Project) IsDeleted() bool  { return p.DeletedAt != nil }
func (p Project) IsArchived() bool { return p.Status == ProjectArchived }

func NewProject(title, key, createdBy string) Project {
	now := time.Now().UTC()
	return Project{
		Title:              title,
		Key:                key,
		Status:             ProjectActive,
		NextWorkItemNumber: 1,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
		CreatedBy:          createdBy,
		UpdatedBy:          createdBy,
	}
}
