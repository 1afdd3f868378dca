// Package sync defines the shapes of a future offline export/import
// story. It is a struct-only port of pm-core::sync (ExportData,
// ImportResult) — no handler in the wire protocol names an export or
// import operation, so nothing here is wired to the dispatcher; it
// exists so the data shape isn't lost if that story gets built later.
package sync

import "github.com/pmsync/pmsync/internal/domain"

// ExportData is a complete snapshot of one tenant's data, schema
// versioned for forward compatibility.
type ExportData struct {
	SchemaVersion uint32               `json:"schema_version"`
	ExportedAt    string               `json:"exported_at"`
	ExportedBy    string               `json:"exported_by"`
	Projects      []domain.Project     `json:"projects"`
	WorkItems     []domain.WorkItem    `json:"work_items"`
	Sprints       []domain.Sprint      `json:"sprints"`
	Comments      []domain.Comment     `json:"comments"`
	SwimLanes     []domain.SwimLane    `json:"swim_lanes"`
	Dependencies  []domain.Dependency  `json:"dependencies"`
	TimeEntries   []domain.TimeEntry   `json:"time_entries"`
}

// EntityImportCounts tallies how an import handled one entity type.
type EntityImportCounts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// ImportResult tallies the outcome of importing an ExportData payload,
// one EntityImportCounts per entity type.
type ImportResult struct {
	Projects     EntityImportCounts `json:"projects"`
	Sprints      EntityImportCounts `json:"sprints"`
	SwimLanes    EntityImportCounts `json:"swim_lanes"`
	WorkItems    EntityImportCounts `json:"work_items"`
	Comments     EntityImportCounts `json:"comments"`
	Dependencies EntityImportCounts `json:"dependencies"`
	TimeEntries  EntityImportCounts `json:"time_entries"`
}
