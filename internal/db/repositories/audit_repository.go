package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lanehq/lanehq/internal/db/models"
)

const auditColumns = `id, user_id, organization_id, action, resource_type, resource_id, status_code, auth_method, metadata, ip_address, created_at`

// AuditRepository stores audit entries.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilters narrows ListAuditLogs. Nil fields do not filter.
type AuditFilters struct {
	OrganizationID *string
	UserID         *string
	ResourceType   *string
	// ActionPrefix matches the start of the action, e.g. "POST ".
	ActionPrefix *string
	Since        *time.Time
}

// auditRow is the database shape of models.AuditLog; metadata is raw JSONB.
type auditRow struct {
	ID             string    `db:"id"`
	UserID         *string   `db:"user_id"`
	OrganizationID *string   `db:"organization_id"`
	Action         string    `db:"action"`
	ResourceType   *string   `db:"resource_type"`
	ResourceID     *string   `db:"resource_id"`
	StatusCode     int       `db:"status_code"`
	AuthMethod     *string   `db:"auth_method"`
	Metadata       []byte    `db:"metadata"`
	IPAddress      *string   `db:"ip_address"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r auditRow) model() (*models.AuditLog, error) {
	log := &models.AuditLog{
		ID:             r.ID,
		UserID:         r.UserID,
		OrganizationID: r.OrganizationID,
		Action:         r.Action,
		ResourceType:   r.ResourceType,
		ResourceID:     r.ResourceID,
		StatusCode:     r.StatusCode,
		AuthMethod:     r.AuthMethod,
		IPAddress:      r.IPAddress,
		CreatedAt:      r.CreatedAt,
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &log.Metadata); err != nil {
			return nil, fmt.Errorf("audit log %s has bad metadata: %w", r.ID, err)
		}
	}
	return log, nil
}

// CreateAuditLog assigns an ID and stores log. A zero CreatedAt is set to now.
func (r *AuditRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	log.ID = uuid.New().String()
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	row := auditRow{
		ID:             log.ID,
		UserID:         log.UserID,
		OrganizationID: log.OrganizationID,
		Action:         log.Action,
		ResourceType:   log.ResourceType,
		ResourceID:     log.ResourceID,
		StatusCode:     log.StatusCode,
		AuthMethod:     log.AuthMethod,
		IPAddress:      log.IPAddress,
		CreatedAt:      log.CreatedAt,
	}
	if log.Metadata != nil {
		buf, err := json.Marshal(log.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode audit metadata: %w", err)
		}
		row.Metadata = buf
	}

	query := `INSERT INTO audit_logs (` + auditColumns + `)
		VALUES (:id, :user_id, :organization_id, :action, :resource_type, :resource_id,
		        :status_code, :auth_method, :metadata, :ip_address, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

// ListAuditLogs returns matching entries newest first with the total count.
func (r *AuditRepository) ListAuditLogs(ctx context.Context, filters AuditFilters, limit, offset int) ([]*models.AuditLog, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	where := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filters.OrganizationID != nil {
		where("organization_id = $%d", *filters.OrganizationID)
	}
	if filters.UserID != nil {
		where("user_id = $%d", *filters.UserID)
	}
	if filters.ResourceType != nil {
		where("resource_type = $%d", *filters.ResourceType)
	}
	if filters.ActionPrefix != nil {
		where("action LIKE $%d", likePrefix(*filters.ActionPrefix))
	}
	if filters.Since != nil {
		where("created_at >= $%d", *filters.Since)
	}
	clause := ""
	if len(conds) > 0 {
		clause = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM audit_logs`+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	var rows []auditRow
	query := `SELECT ` + auditColumns + ` FROM audit_logs` + clause +
		fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	if err := r.db.SelectContext(ctx, &rows, query, append(args, limit, offset)...); err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}

	logs := make([]*models.AuditLog, 0, len(rows))
	for _, row := range rows {
		log, err := row.model()
		if err != nil {
			return nil, 0, err
		}
		logs = append(logs, log)
	}
	return logs, total, nil
}

// likePrefix escapes LIKE wildcards in p and appends %.
func likePrefix(p string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(p) + "%"
}
