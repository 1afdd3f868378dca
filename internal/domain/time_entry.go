package domain

import "time"

type TimeEntry struct {
	ID         string
	WorkItemID string
	ProjectID  string
	UserID     string
	Minutes    int
	Note       *string
	LoggedAt   time.Time
	CreatedAt  time.Time
	DeletedAt  *time.Time
}

func (t TimeEntry) IsDeleted() bool { return t.DeletedAt != nil }

func NewTimeEntry(workItemID, projectID, userID string, minutes int, note *string, loggedAt time.Time) TimeEntry {
	return TimeEntry{
		WorkItemID: workItemID,
		ProjectID:  projectID,
		UserID:     userID,
		Minutes:    minutes,
		Note:       note,
		LoggedAt:   loggedAt,
		CreatedAt:  time.Now().UTC(),
	}
}
