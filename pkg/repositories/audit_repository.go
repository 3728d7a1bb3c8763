package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cervixai/screening-engine/pkg/database"
	"github.com/cervixai/screening-engine/pkg/models"
)

// AuditRepository provides access to the append-only audit ledger. Entries are
// never updated or deleted individually; the only removal path is the
// retention purge.
type AuditRepository interface {
	// Append writes a single entry to the ledger.
	Append(ctx context.Context, entry *models.AuditEntry) error

	// Query returns a page of entries matching the filters, ordered newest
	// first with keyset pagination.
	Query(ctx context.Context, filters models.AuditFilters) (*models.AuditPage, error)

	// PurgeOlderThan deletes entries with a timestamp before the cutoff and
	// returns the number removed.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type auditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) AuditRepository {
	return &auditRepository{db: db}
}

var _ AuditRepository = (*auditRepository)(nil)

func (r *auditRepository) Append(ctx context.Context, entry *models.AuditEntry) error {
	q := database.QuerierFrom(ctx, r.db)

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.Severity == "" {
		entry.Severity = models.SeverityInfo
	}

	var details []byte
	if entry.Details != nil {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal audit details: %w", err)
		}
	}

	_, err := q.Exec(ctx, `
		INSERT INTO audit_log (id, actor_id, actor_email, action, resource_type, resource_id, details, severity, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.ActorID, entry.ActorEmail, entry.Action,
		entry.ResourceType, entry.ResourceID, details, entry.Severity, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (r *auditRepository) Query(ctx context.Context, filters models.AuditFilters) (*models.AuditPage, error) {
	q := database.QuerierFrom(ctx, r.db)

	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.ActorID != nil {
		conds = append(conds, "actor_id = "+arg(*filters.ActorID))
	}
	if filters.Action != "" {
		conds = append(conds, "action = "+arg(filters.Action))
	}
	if filters.ResourceType != "" {
		conds = append(conds, "resource_type = "+arg(filters.ResourceType))
	}
	if filters.ResourceID != nil {
		conds = append(conds, "resource_id = "+arg(*filters.ResourceID))
	}
	if filters.Severity != "" {
		conds = append(conds, "severity = "+arg(filters.Severity))
	}
	if filters.From != nil {
		conds = append(conds, "ts >= "+arg(*filters.From))
	}
	if filters.To != nil {
		conds = append(conds, "ts <= "+arg(*filters.To))
	}
	if filters.Cursor != "" {
		ts, id, err := models.DecodeAuditCursor(filters.Cursor)
		if err != nil {
			return nil, fmt.Errorf("invalid audit cursor: %w", err)
		}
		conds = append(conds, fmt.Sprintf("(ts, id) < (%s, %s)", arg(ts), arg(id)))
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, actor_id, actor_email, action, resource_type, resource_id, details, severity, ts
		FROM audit_log`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	// Fetch one extra row to detect whether another page exists.
	query += fmt.Sprintf(" ORDER BY ts DESC, id DESC LIMIT %d", limit+1)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	page := &models.AuditPage{Entries: entries}
	if len(entries) > limit {
		page.Entries = entries[:limit]
		last := page.Entries[limit-1]
		page.NextCursor = models.EncodeAuditCursor(last.Timestamp, last.ID)
	}
	return page, nil
}

func (r *auditRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	q := database.QuerierFrom(ctx, r.db)

	tag, err := q.Exec(ctx, `DELETE FROM audit_log WHERE ts < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanAuditEntry(row pgx.Row) (*models.AuditEntry, error) {
	var e models.AuditEntry
	var details []byte
	err := row.Scan(
		&e.ID, &e.ActorID, &e.ActorEmail, &e.Action,
		&e.ResourceType, &e.ResourceID, &details, &e.Severity, &e.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit details: %w", err)
		}
	}
	return &e, nil
}
