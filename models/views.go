package models

import "time"

// ProjectView is the derived read model for a project, upserted by the
// projection engine keyed on aggregate id
type ProjectView struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	AggregateID     string    `gorm:"uniqueIndex" json:"aggregate_id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	OwnerID         string    `gorm:"index" json:"owner_id"`
	Status          string    `gorm:"index" json:"status"`
	TemplateID      string    `json:"template_id"`
	TemplateVersion string    `json:"template_version"`
	RepoProvider    string    `json:"repo_provider"`
	RepoURL         string    `json:"repo_url"`
	DefaultBranch   string    `json:"default_branch"`
	AnalysisID      string    `json:"analysis_id"`
	AnalysisSummary string    `json:"analysis_summary"`
	LastSequence    int64     `json:"last_sequence"`
	LastEventAt     time.Time `json:"last_event_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TemplateView is the derived read model for the template catalog
type TemplateView struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AggregateID  string    `gorm:"uniqueIndex" json:"aggregate_id"`
	Name         string    `json:"name"`
	SourceURL    string    `json:"source_url"`
	Framework    string    `gorm:"index" json:"framework"`
	Version      string    `json:"version"`
	Status       string    `gorm:"index" json:"status"`
	LastSequence int64     `json:"last_sequence"`
	LastEventAt  time.Time `json:"last_event_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
