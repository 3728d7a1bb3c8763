package models

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuditSeverity classifies audit entries for compliance review.
type AuditSeverity string

const (
	SeverityInfo     AuditSeverity = "info"
	SeverityWarning  AuditSeverity = "warning"
	SeverityCritical AuditSeverity = "critical"
)

// IsValid reports whether the severity is one of the known levels.
func (s AuditSeverity) IsValid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	default:
		return false
	}
}

// Audit action names, dot-namespaced by resource.
const (
	ActionCaseCreate         = "case.create"
	ActionCaseCancel         = "case.cancel"
	ActionCaseReopen         = "case.reopen"
	ActionCaseArchive        = "case.archive"
	ActionSampleCreate       = "sample.create"
	ActionResultCreate       = "ai_result.create"
	ActionAnnotationCreate   = "annotation.create"
	ActionAnnotationUpdate   = "annotation.update"
	ActionAnnotationSignOff  = "annotation.sign_off"
	ActionSignOffRepeat      = "annotation.sign_off.repeat"
	ActionRetentionPurge     = "audit.retention_purge"
)

// AuditEntry is one immutable row in the compliance ledger. Entries are never
// updated or deleted through the application; the retention sweep is the only
// purge path and it records its own marker entry.
type AuditEntry struct {
	ID           uuid.UUID      `json:"id"`
	ActorID      *uuid.UUID     `json:"actor_id,omitempty"` // nil for system actions
	ActorEmail   string         `json:"actor_email,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   *uuid.UUID     `json:"resource_id,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	Severity     AuditSeverity  `json:"severity"`
	Timestamp    time.Time      `json:"timestamp"`
}

// AuditFilters narrows a ledger query. Zero values mean "no filter".
type AuditFilters struct {
	ActorID      *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   *uuid.UUID
	Severity     AuditSeverity
	From         *time.Time
	To           *time.Time
	Limit        int
	Cursor       string
}

// AuditPage is one page of ledger results. NextCursor is empty on the last
// page.
type AuditPage struct {
	Entries    []*AuditEntry `json:"entries"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// EncodeAuditCursor packs the keyset position (timestamp, id) of the last
// entry on a page. Paging on (timestamp DESC, id DESC) with an id tie-break
// keeps pages stable while concurrent appends land.
func EncodeAuditCursor(ts time.Time, id uuid.UUID) string {
	raw := ts.UTC().Format(time.RFC3339Nano) + "|" + id.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeAuditCursor unpacks a cursor produced by EncodeAuditCursor.
func DecodeAuditCursor(cursor string) (time.Time, uuid.UUID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("malformed cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, uuid.Nil, fmt.Errorf("malformed cursor")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("malformed cursor timestamp: %w", err)
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("malformed cursor id: %w", err)
	}
	return ts, id, nil
}
