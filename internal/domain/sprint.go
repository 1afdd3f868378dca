package domain

import "time"

type SprintStatus string

const (
	SprintPlanned   SprintStatus = "planned"
	SprintActive    SprintStatus = "active"
	SprintCompleted SprintStatus = "completed"
	SprintCancelled SprintStatus = "cancelled"
)

type Sprint struct {
	ID        string
	ProjectID string
	Name      string
	Goal      *string
	StartDate time.Time
	EndDate   time.Time
	Status    SprintStatus
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
	CreatedBy string
	UpdatedBy string
	DeletedAt *time.Time
}

func (s Sprint) IsDeleted() bool { return s.DeletedAt != nil }

func NewSprint(projectID, name, createdBy string, start, end time.Time) Sprint {
	now := time.Now().UTC()
	return Sprint{
		ProjectID: projectID,
		Name:      name,
		StartDate: start,
		EndDate:   end,
		Status:    SprintPlanned,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: createdBy,
		UpdatedBy: createdBy,
	}
}
