package wire

import "time"

// Request payloads, one per mutation MessageType.

type CreateWorkItemRequest struct {
	ProjectID   string  `json:"project_id"`
	ItemType    string  `json:"item_type"`
	ParentID    *string `json:"parent_id,omitempty"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	SprintID    *string `json:"sprint_id,omitempty"`
	StoryPoints *int    `json:"story_points,omitempty"`
	Position    int     `json:"position"`
}

type UpdateWorkItemRequest struct {
	ID              string  `json:"id"`
	ExpectedVersion int64   `json:"expected_version"`
	Title           *string `json:"title,omitempty"`
	Description     *string `json:"description,omitempty"`
	Status          *string `json:"status,omitempty"`
	Priority        *string `json:"priority,omitempty"`
	AssigneeID      *string `json:"assignee_id,omitempty"`
	SprintID        *string `json:"sprint_id,omitempty"`
	StoryPoints     *int    `json:"story_points,omitempty"`
	Position        *int    `json:"position,omitempty"`
}

type GetWorkItemsRequest struct {
	ProjectID string `json:"project_id"`
}

type CreateSprintRequest struct {
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	Goal      *string   `json:"goal,omitempty"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

type UpdateSprintRequest struct {
	ID              string     `json:"id"`
	ExpectedVersion int64      `json:"expected_version"`
	Name            *string    `json:"name,omitempty"`
	Goal            *string    `json:"goal,omitempty"`
	StartDate       *time.Time `json:"start_date,omitempty"`
	EndDate         *time.Time `json:"end_date,omitempty"`
	Status          *string    `json:"status,omitempty"`
}

type CreateCommentRequest struct {
	WorkItemID string `json:"work_item_id"`
	ProjectID  string `json:"project_id"`
	Body       string `json:"body"`
}

type CreateTimeEntryRequest struct {
	WorkItemID string  `json:"work_item_id"`
	ProjectID  string  `json:"project_id"`
	Minutes    int     `json:"minutes"`
	Note       *string `json:"note,omitempty"`
	LoggedAt   time.Time `json:"logged_at"`
}

type CreateDependencyRequest struct {
	BlockingItemID string `json:"blocking_item_id"`
	BlockedItemID  string `json:"blocked_item_id"`
	DependencyType string `json:"dependency_type"`
}

// Event payloads, one per broadcast MessageType.

type WorkItemPayload struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	ItemType    string  `json:"item_type"`
	ParentID    *string `json:"parent_id,omitempty"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	SprintID    *string `json:"sprint_id,omitempty"`
	StoryPoints *int    `json:"story_points,omitempty"`
	ItemNumber  int     `json:"item_number"`
	Position    int     `json:"position"`
	Version     int64   `json:"version"`
}

type SprintPayload struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"project_id"`
	Name      string     `json:"name"`
	Goal      *string    `json:"goal,omitempty"`
	StartDate time.Time  `json:"start_date"`
	EndDate   time.Time  `json:"end_date"`
	Status    string     `json:"status"`
	Version   int64      `json:"version"`
}

type GetWorkItemsResponse struct {
	Items []WorkItemPayload `json:"items"`
}

type CommentPayload struct {
	ID         string `json:"id"`
	WorkItemID string `json:"work_item_id"`
	ProjectID  string `json:"project_id"`
	AuthorID   string `json:"author_id"`
	Body       string `json:"body"`
}
