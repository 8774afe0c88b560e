// Package security records audit incidents for injection attempts and
// AI-response validation failures. Recording is best-effort: a failed write
// is logged and swallowed so the pipeline never fails a message over an
// audit record.
package security

import (
	"context"
	"strings"

	"leadchat_backend/internal/leads/repository"
	"leadchat_backend/internal/pipeline/sanitizer"
	"leadchat_backend/platform/logger"

	"github.com/google/uuid"
)

// Incident types.
const (
	TypeInjectionAttempt = "injection_attempt"
	TypePromptLeak       = "prompt_leak"
	TypeIdentityLeak     = "identity_leak"
	TypeOffTopic         = "off_topic"
	TypeOverPromise      = "over_promise"
	TypeValidationFailed = "validation_failed"
)

// Severities.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// Detection layers.
const (
	LayerSanitization = "sanitization"
	LayerValidation   = "validation"
)

// Store is the slice of the repository the incident logger needs.
type Store interface {
	CreateSecurityIncident(ctx context.Context, params repository.CreateSecurityIncidentParams) error
}

type Logger struct {
	store Store
	log   *logger.Logger
}

func NewLogger(store Store, log *logger.Logger) *Logger {
	return &Logger{store: store, log: log}
}

// SanitizationContext identifies the conversation a sanitization incident
// belongs to.
type SanitizationContext struct {
	TenantID       uuid.UUID
	ConversationID uuid.UUID
	LeadID         uuid.UUID
	LeadMessage    string
}

// LogSanitizationIncident records one injection_attempt incident when the
// sanitizer raised at least one security flag. Operational flags
// (explicit_handoff, truncated) alone never produce an incident.
func (l *Logger) LogSanitizationIncident(ctx context.Context, sc SanitizationContext, flags []string) {
	security := sanitizer.SecurityFlags(flags)
	if len(security) == 0 {
		return
	}

	l.log.SecurityEvent(TypeInjectionAttempt, SeverityHigh, LayerSanitization, security)

	err := l.store.CreateSecurityIncident(ctx, repository.CreateSecurityIncidentParams{
		TenantID:       sc.TenantID,
		ConversationID: sc.ConversationID,
		LeadID:         sc.LeadID,
		IncidentType:   TypeInjectionAttempt,
		Severity:       SeverityHigh,
		LeadMessage:    sc.LeadMessage,
		DetectionLayer: LayerSanitization,
		ActionTaken:    "flags: " + strings.Join(security, ","),
	})
	if err != nil {
		l.log.Error("failed to record sanitization incident", "error", err,
			"tenantId", sc.TenantID, "conversationId", sc.ConversationID)
	}
}

// ValidationFailure describes a rejected AI response.
type ValidationFailure struct {
	TenantID       uuid.UUID
	ConversationID uuid.UUID
	LeadID         uuid.UUID
	LeadMessage    string
	AIResponse     string
	Reason         string
	Severity       string // optional, overrides the default for the type
	ActionTaken    string
}

// LogValidationIncident records an incident for an AI response that failed
// post-generation validation. The reason maps to a fixed incident type and
// each type carries a default severity, which an explicit Severity on the
// failure overrides.
func (l *Logger) LogValidationIncident(ctx context.Context, vf ValidationFailure) {
	incidentType := typeForReason(vf.Reason)

	severity := vf.Severity
	if severity == "" {
		severity = defaultSeverity(incidentType)
	}

	l.log.SecurityEvent(incidentType, severity, LayerValidation, nil)

	aiResponse := vf.AIResponse
	err := l.store.CreateSecurityIncident(ctx, repository.CreateSecurityIncidentParams{
		TenantID:       vf.TenantID,
		ConversationID: vf.ConversationID,
		LeadID:         vf.LeadID,
		IncidentType:   incidentType,
		Severity:       severity,
		LeadMessage:    vf.LeadMessage,
		AIResponse:     &aiResponse,
		DetectionLayer: LayerValidation,
		ActionTaken:    vf.ActionTaken,
	})
	if err != nil {
		l.log.Error("failed to record validation incident", "error", err,
			"tenantId", vf.TenantID, "conversationId", vf.ConversationID)
	}
}

func typeForReason(reason string) string {
	switch reason {
	case TypePromptLeak, TypeIdentityLeak, TypeOffTopic, TypeOverPromise:
		return reason
	default:
		return TypeValidationFailed
	}
}

func defaultSeverity(incidentType string) string {
	switch incidentType {
	case TypeInjectionAttempt, TypePromptLeak, TypeIdentityLeak:
		return SeverityHigh
	case TypeOverPromise, TypeValidationFailed:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
