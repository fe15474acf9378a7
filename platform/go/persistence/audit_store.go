package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const AuditLogsTable = Schema + ".audit_logs"

// Audit outcomes accepted by audit_logs.status.
const (
	AuditStatusSuccess = "success"
	AuditStatusFailure = "failure"
	AuditStatusDenied  = "denied"
)

// AuditEvent is the input to insight.log_audit_event. Empty strings are stored as NULL.
type AuditEvent struct {
	UserID         *uuid.UUID
	OrganizationID *uuid.UUID
	UserEmail      string
	Action         string
	ResourceType   string
	ResourceID     string
	Details        map[string]any
	IPAddress      string
	UserAgent      string
	RequestPath    string
	Status         string
	ErrorMessage   string
}

// AuditLog is a stored audit row.
type AuditLog struct {
	ID             uuid.UUID       `json:"id"`
	UserID         *uuid.UUID      `json:"userId"`
	OrganizationID *uuid.UUID      `json:"organizationId"`
	UserEmail      *string         `json:"userEmail,omitempty"`
	Action         string          `json:"action"`
	ResourceType   *string         `json:"resourceType,omitempty"`
	ResourceID     *string         `json:"resourceId,omitempty"`
	Details        json.RawMessage `json:"details"`
	IPAddress      *string         `json:"ipAddress,omitempty"`
	UserAgent      *string         `json:"userAgent,omitempty"`
	RequestPath    *string         `json:"requestPath,omitempty"`
	Status         string          `json:"status"`
	ErrorMessage   *string         `json:"errorMessage,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// ErrAuditInvalid indicates the event violated an audit_logs constraint.
var ErrAuditInvalid = errors.New("audit event invalid")

// AuditStore writes through the SECURITY DEFINER function and reads under RLS.
type AuditStore struct {
	pool    *pgxpool.Pool
	session *SessionDB
}

// NewAuditStore returns a store over the owner pool.
func NewAuditStore(ctx context.Context, pool *pgxpool.Pool) (*AuditStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &AuditStore{pool: pool, session: NewSessionDB(pool)}, nil
}

// LogEvent appends one row and returns its id. Identical calls append identical
// rows with distinct ids.
func (s *AuditStore) LogEvent(ctx context.Context, event AuditEvent) (uuid.UUID, error) {
	if strings.TrimSpace(event.Action) == "" {
		return uuid.Nil, fmt.Errorf("%w: action is required", ErrAuditInvalid)
	}

	var details []byte
	if event.Details != nil {
		encoded, err := json.Marshal(event.Details)
		if err != nil {
			return uuid.Nil, fmt.Errorf("encode audit details: %w", err)
		}
		details = encoded
	}

	status := event.Status
	if status == "" {
		status = AuditStatusSuccess
	}

	var id uuid.UUID
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s.log_audit_event(
            p_user_id => $1,
            p_organization_id => $2,
            p_user_email => $3,
            p_action => $4,
            p_resource_type => $5,
            p_resource_id => $6,
            p_details => $7,
            p_ip_address => $8,
            p_user_agent => $9,
            p_request_path => $10,
            p_status => $11,
            p_error_message => $12
        )
    `, Schema),
		event.UserID,
		event.OrganizationID,
		nullable(event.UserEmail),
		event.Action,
		nullable(event.ResourceType),
		nullable(event.ResourceID),
		details,
		nullable(event.IPAddress),
		nullable(event.UserAgent),
		nullable(event.RequestPath),
		status,
		nullable(event.ErrorMessage),
	).Scan(&id)
	if err != nil {
		if isCheckViolation(err) || isForeignKeyViolation(err) {
			return uuid.Nil, fmt.Errorf("%w: %s", ErrAuditInvalid, violatedConstraintOr(err, "audit_logs"))
		}
		return uuid.Nil, fmt.Errorf("log audit event: %w", err)
	}
	return id, nil
}

// ListAuditLogsParams filters ListAuditLogs.
type ListAuditLogsParams struct {
	OrganizationID uuid.UUID
	Action         *string
	Page           int
	PageSize       int
}

// ListAuditLogsResult includes the rows and the total count for pagination metadata.
type ListAuditLogsResult struct {
	Logs       []AuditLog
	TotalItems int
}

// ListAuditLogs reads an organization's audit trail as viewerID. The select
// policy decides which rows are visible.
func (s *AuditStore) ListAuditLogs(ctx context.Context, viewerID uuid.UUID, params ListAuditLogsParams) (ListAuditLogsResult, error) {
	params.Page, params.PageSize = normalizePage(params.Page, params.PageSize)

	args := []any{params.OrganizationID}
	whereSQL := "organization_id = $1"
	if params.Action != nil && strings.TrimSpace(*params.Action) != "" {
		args = append(args, strings.TrimSpace(*params.Action))
		whereSQL += fmt.Sprintf(" AND action = $%d", len(args))
	}

	result := ListAuditLogsResult{Logs: []AuditLog{}}
	err := s.session.WithUser(ctx, viewerID, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, fmt.Sprintf(
			"SELECT COUNT(*) FROM %s WHERE %s", AuditLogsTable, whereSQL,
		), args...).Scan(&result.TotalItems); err != nil {
			return fmt.Errorf("count audit logs: %w", err)
		}
		if result.TotalItems == 0 {
			return nil
		}

		dataArgs := append([]any{}, args...)
		dataArgs = append(dataArgs, params.PageSize, (params.Page-1)*params.PageSize)

		rows, err := tx.Query(ctx, fmt.Sprintf(`
            SELECT id, user_id, organization_id, user_email, action, resource_type, resource_id,
                   details, host(ip_address), user_agent, request_path, status, error_message, created_at
            FROM %s
            WHERE %s
            ORDER BY created_at DESC, id
            LIMIT $%d OFFSET $%d
        `, AuditLogsTable, whereSQL, len(dataArgs)-1, len(dataArgs)), dataArgs...)
		if err != nil {
			return fmt.Errorf("list audit logs: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			entry, scanErr := scanAuditLog(rows)
			if scanErr != nil {
				return fmt.Errorf("scan audit log: %w", scanErr)
			}
			result.Logs = append(result.Logs, entry)
		}
		return rows.Err()
	})
	if err != nil {
		return ListAuditLogsResult{}, err
	}
	return result, nil
}

func scanAuditLog(row pgx.Row) (AuditLog, error) {
	var (
		entry   AuditLog
		details []byte
	)
	if err := row.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.OrganizationID,
		&entry.UserEmail,
		&entry.Action,
		&entry.ResourceType,
		&entry.ResourceID,
		&details,
		&entry.IPAddress,
		&entry.UserAgent,
		&entry.RequestPath,
		&entry.Status,
		&entry.ErrorMessage,
		&entry.CreatedAt,
	); err != nil {
		return AuditLog{}, err
	}
	entry.Details = json.RawMessage(details)
	return entry, nil
}

func nullable(s string) *string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
