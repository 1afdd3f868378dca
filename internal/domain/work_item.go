package domain

import "time"

type WorkItemType string

const (
	WorkItemProject WorkItemType = "project"
	WorkItemEpic    WorkItemType = "epic"
	WorkItemStory   WorkItemType = "story"
	WorkItemTask    WorkItemType = "task"
)

// ValidParentage is the hierarchy invariant from spec §3: epic<-project,
// story<-epic, task<-story; roots (type=project) have no parent.
func ValidParentage(childType, parentType WorkItemType) bool {
	switch childType {
	case WorkItemEpic:
		return parentType == WorkItemProject
	case WorkItemStory:
		return parentType == WorkItemEpic
	case WorkItemTask:
		return parentType == WorkItemStory
	default:
		return false
	}
}

type WorkItem struct {
	ID          string
	ProjectID   string
	ItemType    WorkItemType
	ParentID    *string
	Title       string
	Description *string
	Status      string
	Priority    string
	AssigneeID  *string
	SprintID    *string
	StoryPoints *int
	ItemNumber  int
	Position    int
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CreatedBy   string
	UpdatedBy   string
	DeletedAt   *time.Time
}

func (w WorkItem) IsDeleted() bool { return w.DeletedAt != nil }

func NewWorkItem(projectID string, itemType WorkItemType, parentID *string, title string,
	description *string, status, priority string, assigneeID, sprintID *string,
	storyPoints *int, itemNumber, position int, createdBy string) WorkItem {
	now := time.Now().UTC()
	return WorkItem{
		ProjectID:   projectID,
		ItemType:    itemType,
		ParentID:    parentID,
		Title:       title,
		Description: description,
		Status:      status,
		Priority:    priority,
		AssigneeID:  assigneeID,
		SprintID:    sprintID,
		StoryPoints: storyPoints,
		ItemNumber:  itemNumber,
		Position:    position,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
		CreatedBy:   createdBy,
		UpdatedBy:   createdBy,
	}
}

// DisplayKey renders "<projectKey>-<itemNumber>", e.g. "ENG-42".
func (w WorkItem) DisplayKey(projectKey string) string {
	return projectKey + "-" + itoa(w.ItemNumber)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// ValidWorkItemStatuses and ValidWorkItemPriorities are fixed enumerations checked by the
// optimistic-lock mutators before any write (4.12 step 3).
var ValidWorkItemStatuses = map[string]bool{
	"backlog": true, "todo": true, "in_progress": true, "in_review": true, "done": true, "cancelled": true,
}

var ValidWorkItemPriorities = map[string]bool{
	"low": true, "medium": true, "high": true, "urgent": true,
}
