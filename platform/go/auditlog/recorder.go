package auditlog

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	platformlogging "github.com/zenGate-Global/aso-insight/platform/go/logging"
	"github.com/zenGate-Global/aso-insight/platform/go/metrics"
	"github.com/zenGate-Global/aso-insight/platform/go/persistence"
	"github.com/zenGate-Global/aso-insight/platform/go/requesttrace"
)

// Actions written by the API and CLI.
const (
	ActionOrganizationCreate     = "organization.create"
	ActionOrganizationUpdate     = "organization.update"
	ActionOrganizationActivation = "organization.activation"
	ActionOrganizationDelete     = "organization.delete"
	ActionRoleAssign             = "role.assign"
	ActionRoleRevoke             = "role.revoke"
	ActionAgencyGrantCreate      = "agency_grant.create"
	ActionAgencyGrantActivation  = "agency_grant.activation"
	ActionAppGrant               = "app_access.grant"
	ActionAppRevoke              = "app_access.revoke"
	ActionAccessDenied           = "access.denied"
)

// Writer persists audit events.
type Writer interface {
	LogEvent(ctx context.Context, event persistence.AuditEvent) (uuid.UUID, error)
}

// Event describes one auditable action. Actor and request metadata are taken
// from the requesttrace info on the context.
type Event struct {
	Action         string
	ResourceType   string
	ResourceID     string
	OrganizationID *uuid.UUID
	Details        map[string]any
	Status         string
	Err            error
}

// Recorder writes audit events without ever failing the caller: a write error
// is logged at warn level and counted.
type Recorder struct {
	writer  Writer
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewRecorder builds a Recorder. m may be nil.
func NewRecorder(writer Writer, logger *zap.Logger, m *metrics.Metrics) *Recorder {
	if writer == nil {
		panic("audit writer is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Recorder{writer: writer, logger: logger, metrics: m}
}

// Record persists ev. A nil Recorder records nothing.
func (r *Recorder) Record(ctx context.Context, ev Event) {
	if r == nil {
		return
	}

	event := buildEvent(requesttrace.FromContextOrAnonymous(ctx), ev)
	if _, err := r.writer.LogEvent(ctx, event); err != nil {
		r.metrics.ObserveAuditFailure(event.Action)
		platformlogging.FromContextOr(ctx, r.logger).Warn("audit write failed",
			zap.String("action", event.Action),
			zap.String("resource_type", event.ResourceType),
			zap.String("resource_id", event.ResourceID),
			zap.Error(err),
		)
	}
}

func buildEvent(info requesttrace.AuditInfo, ev Event) persistence.AuditEvent {
	event := persistence.AuditEvent{
		OrganizationID: ev.OrganizationID,
		Action:         ev.Action,
		ResourceType:   ev.ResourceType,
		ResourceID:     ev.ResourceID,
		Details:        ev.Details,
		IPAddress:      info.IPAddress,
		UserAgent:      info.UserAgent,
		RequestPath:    info.Path,
		Status:         ev.Status,
	}

	if info.ActorKind == requesttrace.ActorKindUser && info.UserID != nil {
		if id, err := uuid.Parse(*info.UserID); err == nil {
			event.UserID = &id
		}
		event.UserEmail = info.Email
	}

	if info.RequestID != "" {
		details := make(map[string]any, len(ev.Details)+1)
		for k, v := range ev.Details {
			details[k] = v
		}
		details["requestId"] = info.RequestID
		event.Details = details
	}

	if ev.Err != nil {
		event.ErrorMessage = ev.Err.Error()
		if event.Status == "" {
			event.Status = persistence.AuditStatusFailure
		}
	}
	if strings.TrimSpace(event.Status) == "" {
		event.Status = persistence.AuditStatusSuccess
	}

	return event
}
