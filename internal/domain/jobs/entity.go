package jobs

import (
	"github.com/veriscope/veriscope/internal/domain/catalog"
)

// JobID tipe for VerificationJob
type JobID string

// AssessmentStatus enum
type AssessmentStatus string

const (
	StatusPending     AssessmentStatus = "Pending"
	StatusAssessing   AssessmentStatus = "Assessing"
	StatusApproved    AssessmentStatus = "Approved"
	StatusRejected    AssessmentStatus = "Rejected"
	StatusNeedsReview AssessmentStatus = "Needs Review"
	StatusError       AssessmentStatus = "Error"
)

// Terminal reports whether no further automatic transitions are allowed.
func (s AssessmentStatus) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusNeedsReview, StatusError:
		return true
	}
	return false
}

// FileStatus enum for per-file relevance within a job.
type FileStatus string

const (
	FilePending     FileStatus = "Pending"
	FileAssessing   FileStatus = "Assessing"
	FileRelevant    FileStatus = "Relevant"
	FileIgnored     FileStatus = "Ignored"
	FileNeedsReview FileStatus = "Needs Review"
	FileError       FileStatus = "Error"
)

// RuleOutcome is the recorded result of evaluating one description rule
// for one item instance.
type RuleOutcome struct {
	RuleID         string   `json:"rule_id"`
	Description    string   `json:"description"`
	Mandatory      bool     `json:"mandatory"`
	MinConfidence  float64  `json:"min_confidence"`
	Satisfied      bool     `json:"satisfied"`
	NeedsReview    bool     `json:"needs_review"`
	ImageFound     bool     `json:"image_found"`
	Confidence     float64  `json:"confidence"`
	Reasoning      string   `json:"reasoning,omitempty"`
	MatchedFileIDs []string `json:"matched_file_ids,omitempty"`
	Cost           float64  `json:"cost"`
	SecondPass     bool     `json:"second_pass,omitempty"`
}

// ItemInstance is the job-scoped immutable snapshot of an Item plus its
// mutable outcome. Rule snapshots never change after job creation.
type ItemInstance struct {
	ID          string `json:"id"`
	ItemID      string `json:"item_id"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
	Name        string `json:"name"`
	Description string `json:"description"`

	LabelRulesApplied       []catalog.LabelFilteringRule       `json:"label_filtering_rules_applied"`
	DescriptionRulesApplied []catalog.DescriptionFilteringRule `json:"description_filtering_rules_applied"`
	AgentIDs                []string                           `json:"agent_ids,omitempty"`
	ClusterNumber           *int                               `json:"cluster_number,omitempty"`

	Status              AssessmentStatus `json:"status"`
	Confidence          *float64         `json:"confidence,omitempty"`
	AssessmentReasoning string           `json:"assessment_reasoning,omitempty"`
	ApprovedFileIDs     []string         `json:"approved_file_ids,omitempty"`
	RuleOutcomes        []RuleOutcome    `json:"rule_outcomes,omitempty"`
}

// CollectionFileInstance is a collection file carried into a job.
type CollectionFileInstance struct {
	catalog.CollectionFile
	Status          FileStatus `json:"status"`
	StatusReasoning string     `json:"status_reasoning,omitempty"`
}

// FileCheck is the detailed per-rule, per-file record backing an item
// instance's aggregate outcome. Keyed (job id, item instance id).
type FileCheck struct {
	ItemInstanceID  string     `json:"item_instance_id"`
	FileInstanceID  string     `json:"file_instance_id"`
	RuleID          string     `json:"rule_id,omitempty"`
	Status          FileStatus `json:"status"`
	StatusReasoning string     `json:"status_reasoning,omitempty"`
	Confidence      float64    `json:"confidence,omitempty"`
	Cost            float64    `json:"cost,omitempty"`
	InputTokens     int        `json:"input_tokens,omitempty"`
	OutputTokens    int        `json:"output_tokens,omitempty"`
	CreatedAt       int64      `json:"created_at"`
}

// Aggregate root: VerificationJob
type VerificationJob struct {
	ID             JobID                    `json:"id"`
	CreatedAt      int64                    `json:"created_at"`
	UpdatedAt      int64                    `json:"updated_at"`
	CollectionID   string                   `json:"collection_id"`
	Status         AssessmentStatus         `json:"status"`
	SearchInternet bool                     `json:"search_internet"`
	Items          []ItemInstance           `json:"items"`
	Files          []CollectionFileInstance `json:"files"`
	Confidence     *float64                 `json:"confidence,omitempty"`
	TotalCost      float64                  `json:"total_cost"`
	ErrorMessage   string                   `json:"error_message,omitempty"`
}

// LogEntry is an append-only, time-ordered audit record for a job. Entries
// are never mutated or deleted during the job lifetime.
type LogEntry struct {
	ID        string `json:"id"`
	JobID     JobID  `json:"verification_job_id"`
	Timestamp int64  `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// PaginatedJobs represents a paginated job listing with metadata
type PaginatedJobs struct {
	Data       []*VerificationJob `json:"data"`
	Page       int                `json:"page"`
	PageSize   int                `json:"pageSize"`
	Total      int64              `json:"totalItems"`
	TotalPages int                `json:"totalPages"`
}
