package domain

import "time"

type DependencyType string

const (
	DependencyBlocks    DependencyType = "blocks"
	DependencyRelatesTo DependencyType = "relates_to"
)

func ParseDependencyType(s string) (DependencyType, bool) {
	switch DependencyType(s) {
	case DependencyBlocks, DependencyRelatesTo:
		return DependencyType(s), true
	default:
		return "", false
	}
}

// MaxOutgoingBlocksEdges bounds the per-item outgoing `blocks` fan-out
// (invariant 3.e).
const MaxOutgoingBlocksEdges = 50

type Dependency struct {
	ID              string
	BlockingItemID  string
	BlockedItemID   string
	DependencyType  DependencyType
	CreatedAt       time.Time
	CreatedBy       string
	DeletedAt       *time.Time
}

func NewDependency(blockingItemID, blockedItemID string, depType DependencyType, createdBy string) Dependency {
	return Dependency{
		BlockingItemID: blockingItemID,
		BlockedItemID:  blockedItemID,
		DependencyType: depType,
		CreatedAt:      time.Now().UTC(),
		CreatedBy:      createdBy,
	}
}
