package domain

import "time"

type Comment struct {
	ID         string
	WorkItemID string
	ProjectID  string
	AuthorID   string
	Body       string
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
}

func (c Comment) IsDeleted() bool { return c.DeletedAt != nil }

func NewComment(workItemID, projectID, authorID, body string) Comment {
	now := time.Now().UTC()
	return Comment{
		WorkItemID: workItemID,
		ProjectID:  projectID,
		AuthorID:   authorID,
		Body:       body,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
