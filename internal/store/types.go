package store

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/martagil/canjebot/internal/status"
)

// Job is one deduplicated posting. Raw attributes are immutable once the
// eligibility verdict is decided; only the status moves.
type Job struct {
	ID            uuid.UUID     `json:"id"`
	Source        string        `json:"source"`
	ExternalID    string        `json:"external_id"`
	URL           string        `json:"url"`
	Title         string        `json:"title"`
	Company       string        `json:"company"`
	Location      string        `json:"location"`
	SalaryRaw     string        `json:"salary_raw"`
	ContractType  string        `json:"contract_type"`
	Description   string        `json:"description"`
	Profile       string        `json:"profile"`
	VerdictReason string        `json:"verdict_reason,omitempty"`
	Status        status.Status `json:"status"`
	DiscoveredAt  time.Time     `json:"discovered_at"`
}

// Application is the 1:1 companion of a qualified Job once generation starts.
type Application struct {
	ID                uuid.UUID     `json:"id"`
	JobID             uuid.UUID     `json:"job_id"`
	Profile           string        `json:"profile"`
	Company           string        `json:"company"`
	Status            status.Status `json:"status"`
	Document          []byte        `json:"document,omitempty"`
	QualityScore      *float64      `json:"quality_score,omitempty"`
	AuthorizedByHuman bool          `json:"authorized_by_human"`
	AuthorizedAt      *time.Time    `json:"authorized_at,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// SourceState is the persisted run state of one collection source. Only the
// scheduler mutates it, and only after a run completes.
type SourceState struct {
	Name                string        `json:"name"`
	Kind                string        `json:"kind"`
	Enabled             bool          `json:"enabled"`
	Profile             string        `json:"profile"`
	ConsecutiveEmpty    int           `json:"consecutive_empty"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastRunAt           *time.Time    `json:"last_run_at,omitempty"`
	LastOutcome         string        `json:"last_outcome"`
	NextDelay           time.Duration `json:"next_delay"`
	DisabledReason      string        `json:"disabled_reason,omitempty"`
}

// TransitionRecord is one row of the immutable audit log.
type TransitionRecord struct {
	ID            int64         `json:"id"`
	ApplicationID uuid.UUID     `json:"application_id"`
	OldStatus     status.Status `json:"old_status,omitempty"`
	NewStatus     status.Status `json:"new_status"`
	TriggeredBy   string        `json:"triggered_by"`
	Note          string        `json:"note,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// NewJobInput carries a posting into UpsertJob.
type NewJobInput struct {
	Source        string
	ExternalID    string
	URL           string
	Title         string
	Company       string
	Location      string
	SalaryRaw     string
	ContractType  string
	Description   string
	Profile       string
	VerdictReason string
	Status        status.Status
}

// SyntheticExternalID derives a stable dedup key for boards that expose no
// platform identifier.
func SyntheticExternalID(source, title, company, location string) string {
	raw := strings.Join([]string{
		source,
		strings.ToLower(title),
		strings.ToLower(company),
		strings.ToLower(location),
	}, "|")
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
