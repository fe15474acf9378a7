package auditlog

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zenGate-Global/aso-insight/platform/go/metrics"
	"github.com/zenGate-Global/aso-insight/platform/go/persistence"
	"github.com/zenGate-Global/aso-insight/platform/go/requesttrace"
)

type mockWriter struct {
	logEventFn func(ctx context.Context, event persistence.AuditEvent) (uuid.UUID, error)
}

func (m *mockWriter) LogEvent(ctx context.Context, event persistence.AuditEvent) (uuid.UUID, error) {
	if m.logEventFn == nil {
		panic("logEventFn not configured")
	}
	return m.logEventFn(ctx, event)
}

func TestRecordStampsActorAndRequest(t *testing.T) {
	userID := uuid.New()
	orgID := uuid.New()
	id := userID.String()

	var captured persistence.AuditEvent
	writer := &mockWriter{logEventFn: func(ctx context.Context, event persistence.AuditEvent) (uuid.UUID, error) {
		captured = event
		return uuid.New(), nil
	}}

	ctx := requesttrace.IntoContext(context.Background(), requesttrace.AuditInfo{
		ActorKind: requesttrace.ActorKindUser,
		UserID:    &id,
		Email:     "admin@acme.test",
		RequestID: "req-1",
		IPAddress: "198.51.100.7",
		UserAgent: "curl/8",
		Path:      "/api/v1/users/x/role",
	})

	NewRecorder(writer, zaptest.NewLogger(t), nil).Record(ctx, Event{
		Action:         ActionRoleAssign,
		ResourceType:   "user_role",
		ResourceID:     "x",
		OrganizationID: &orgID,
		Details:        map[string]any{"role": "ANALYST"},
	})

	require.NotNil(t, captured.UserID)
	require.Equal(t, userID, *captured.UserID)
	require.Equal(t, "admin@acme.test", captured.UserEmail)
	require.Equal(t, "198.51.100.7", captured.IPAddress)
	require.Equal(t, "curl/8", captured.UserAgent)
	require.Equal(t, "/api/v1/users/x/role", captured.RequestPath)
	require.Equal(t, persistence.AuditStatusSuccess, captured.Status)
	require.Equal(t, "ANALYST", captured.Details["role"])
	require.Equal(t, "req-1", captured.Details["requestId"])
}

func TestRecordSystemActorHasNoUser(t *testing.T) {
	var captured persistence.AuditEvent
	writer := &mockWriter{logEventFn: func(ctx context.Context, event persistence.AuditEvent) (uuid.UUID, error) {
		captured = event
		return uuid.New(), nil
	}}

	ctx := requesttrace.IntoContext(context.Background(), requesttrace.System(""))
	NewRecorder(writer, zaptest.NewLogger(t), nil).Record(ctx, Event{
		Action: ActionAgencyGrantCreate,
		Err:    errors.New("client organization not found"),
	})

	require.Nil(t, captured.UserID)
	require.Empty(t, captured.UserEmail)
	require.Equal(t, persistence.AuditStatusFailure, captured.Status)
	require.Equal(t, "client organization not found", captured.ErrorMessage)
}

func TestRecordFailureIsLoggedAndCounted(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	m := metrics.New(prometheus.NewRegistry())

	writer := &mockWriter{logEventFn: func(ctx context.Context, event persistence.AuditEvent) (uuid.UUID, error) {
		return uuid.Nil, errors.New("connection reset")
	}}

	NewRecorder(writer, zap.New(core), m).Record(context.Background(), Event{Action: ActionRoleRevoke, Status: persistence.AuditStatusDenied})

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.WarnLevel, entries[0].Level)
	require.Equal(t, float64(1), testutil.ToFloat64(m.AuditWriteFailures.WithLabelValues(ActionRoleRevoke)))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	require.NotPanics(t, func() { r.Record(context.Background(), Event{Action: ActionRoleAssign}) })
}
