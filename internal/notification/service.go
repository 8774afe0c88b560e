// Package notification emails human agents when a conversation is handed
// off. It runs on its own queue so the message pipeline never waits on
// SMTP.
package notification

import (
	"context"
	"fmt"
	"html"
	"net"
	"strings"
	"time"

	"leadchat_backend/internal/leads/repository"
	"leadchat_backend/internal/queue"
	"leadchat_backend/platform/config"
	"leadchat_backend/platform/logger"
	"leadchat_backend/platform/validator"

	"github.com/google/uuid"
	gomail "github.com/wneessen/go-mail"
)

// TenantStore resolves the notification address for a tenant.
type TenantStore interface {
	GetTenantSettings(ctx context.Context, tenantID uuid.UUID) (repository.TenantSettings, error)
}

type Service struct {
	store     TenantStore
	validate  *validator.Validator
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
	enabled   bool
	log       *logger.Logger
}

func NewService(cfg config.NotifyConfig, store TenantStore, log *logger.Logger) *Service {
	return &Service{
		store:     store,
		validate:  validator.New(),
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetNotifyFromName(),
		fromEmail: cfg.GetNotifyFromAddress(),
		enabled:   cfg.IsNotifyEnabled(),
		log:       log,
	}
}

// dispatchRequest is the validated shape of one notification job.
type dispatchRequest struct {
	TenantID       string `validate:"required,uuid"`
	ConversationID string `validate:"required,uuid"`
	LeadName       string `validate:"required"`
	Reason         string `validate:"required"`
}

// DispatchNotification emails the tenant's agent inbox about a handed-off
// conversation. Tenants without a notify address are skipped silently.
func (s *Service) DispatchNotification(ctx context.Context, payload queue.NotificationPayload) error {
	if !s.enabled {
		return nil
	}

	req := dispatchRequest{
		TenantID:       payload.TenantID,
		ConversationID: payload.ConversationID,
		LeadName:       strings.TrimSpace(payload.LeadName),
		Reason:         payload.Reason,
	}
	if req.LeadName == "" {
		req.LeadName = "Lead sem nome"
	}
	if err := s.validate.Struct(req); err != nil {
		s.log.Error("invalid notification payload", "error", err)
		return nil // retrying cannot fix a malformed payload
	}

	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return nil
	}

	settings, err := s.store.GetTenantSettings(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("load tenant settings: %w", err)
	}
	if settings.NotifyEmail == nil || *settings.NotifyEmail == "" {
		s.log.Info("tenant has no notify address, skipping", "tenantId", tenantID)
		return nil
	}

	subject := fmt.Sprintf("Novo lead aguardando atendimento: %s", req.LeadName)
	body := renderHandoffEmail(settings.Name, req.LeadName, payload.LeadChannel, payload.LeadScore, req.Reason)

	if err := s.send(ctx, *settings.NotifyEmail, subject, body); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}

	s.log.Info("handoff notification sent",
		"tenantId", tenantID, "conversationId", payload.ConversationID)
	return nil
}

func (s *Service) send(ctx context.Context, toEmail, subject, htmlContent string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	return client.DialAndSendWithContext(ctx, msg)
}

func renderHandoffEmail(tenantName, leadName, channel string, score int, reason string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, "<h2>%s: lead aguardando atendimento</h2>", html.EscapeString(tenantName))
	b.WriteString("<ul>")
	fmt.Fprintf(&b, "<li><strong>Lead:</strong> %s</li>", html.EscapeString(leadName))
	fmt.Fprintf(&b, "<li><strong>Canal:</strong> %s</li>", html.EscapeString(channel))
	fmt.Fprintf(&b, "<li><strong>Pontuação:</strong> %d</li>", score)
	fmt.Fprintf(&b, "<li><strong>Motivo:</strong> %s</li>", html.EscapeString(reason))
	b.WriteString("</ul>")
	b.WriteString("<p>Acesse o painel para assumir a conversa.</p>")
	b.WriteString("</body></html>")
	return b.String()
}
