package model

import (
	"encoding/json"
)

// JobStatus represents the server-side state of a background job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further polling should occur.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobType identifies which long-running operation a job represents.
type JobType string

const (
	JobTypeExtract JobType = "url_extraction"
	JobTypeEnrich  JobType = "contact_enrichment"
	JobTypeAudit   JobType = "seo_audit"
	JobTypeRank    JobType = "seo_ranking"
)

// Job is a server-tracked asynchronous task observed through polling.
type Job struct {
	ID             string    `json:"job_id"`
	Type           JobType   `json:"job_type,omitempty"`
	Status         JobStatus `json:"status"`
	ProcessedItems int       `json:"processed_items"`
	TotalItems     int       `json:"total_items"`
	ResultFile     *string   `json:"result_file,omitempty"`
	Error          *string   `json:"error,omitempty"`
	CreatedAt      string    `json:"created_at,omitempty"`
	CompletedAt    string    `json:"completed_at,omitempty"`
}

// UnmarshalJSON accepts both the lead job shape ("error") and the audit
// job shape ("error_message"), and an "id" alias for "job_id".
func (j *Job) UnmarshalJSON(data []byte) error {
	type plain Job
	var aux struct {
		plain
		AltID        string  `json:"id"`
		ErrorMessage *string `json:"error_message"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*j = Job(aux.plain)
	if j.ID == "" {
		j.ID = aux.AltID
	}
	if j.Error == nil && aux.ErrorMessage != nil {
		j.Error = aux.ErrorMessage
	}
	return nil
}

// ErrorMessage returns the job's error text or "" when absent.
func (j *Job) ErrorMessage() string {
	if j == nil || j.Error == nil {
		return ""
	}
	return *j.Error
}

// ResultFileName returns the result file name or "" when absent.
func (j *Job) ResultFileName() string {
	if j == nil || j.ResultFile == nil {
		return ""
	}
	return *j.ResultFile
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
