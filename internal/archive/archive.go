// Package archive snapshots handed-off conversations to object storage for
// audit and model-quality review.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"leadchat_backend/internal/leads/repository"
	"leadchat_backend/platform/config"
	"leadchat_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MessageStore loads the conversation transcript.
type MessageStore interface {
	ListConversationMessages(ctx context.Context, conversationID, tenantID uuid.UUID) ([]repository.Message, error)
}

// ConversationRecord is the stored snapshot format.
type ConversationRecord struct {
	TenantID       string            `json:"tenantId"`
	ConversationID string            `json:"conversationId"`
	ArchivedAt     time.Time         `json:"archivedAt"`
	Outcome        string            `json:"outcome"`
	SecurityFlags  []string          `json:"securityFlags,omitempty"`
	Messages       []archivedMessage `json:"messages"`
}

type archivedMessage struct {
	Direction string    `json:"direction"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	client *minio.Client
	bucket string
	store  MessageStore
	log    *logger.Logger
}

// NewService returns nil when archival is not configured; callers treat a
// nil service as disabled.
func NewService(cfg config.ArchiveConfig, store MessageStore, log *logger.Logger) (*Service, error) {
	if !cfg.IsArchiveEnabled() {
		return nil, nil
	}

	client, err := minio.New(cfg.GetArchiveEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetArchiveAccessKey(), cfg.GetArchiveSecretKey(), ""),
		Secure: cfg.GetArchiveUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("create archive client: %w", err)
	}

	return &Service{
		client: client,
		bucket: cfg.GetArchiveBucket(),
		store:  store,
		log:    log,
	}, nil
}

// EnsureBucket creates the archive bucket if missing. Called once at
// startup.
func (s *Service) EnsureBucket(ctx context.Context) error {
	if s == nil {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check archive bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create archive bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// ArchiveConversation uploads the transcript as one JSON object keyed by
// tenant, date and conversation.
func (s *Service) ArchiveConversation(ctx context.Context, tenantID, conversationID uuid.UUID, flags []string, outcome string) error {
	if s == nil {
		return nil
	}

	messages, err := s.store.ListConversationMessages(ctx, conversationID, tenantID)
	if err != nil {
		return fmt.Errorf("load transcript: %w", err)
	}

	record := ConversationRecord{
		TenantID:       tenantID.String(),
		ConversationID: conversationID.String(),
		ArchivedAt:     time.Now().UTC(),
		Outcome:        outcome,
		SecurityFlags:  flags,
		Messages:       make([]archivedMessage, 0, len(messages)),
	}
	for _, msg := range messages {
		record.Messages = append(record.Messages, archivedMessage{
			Direction: msg.Direction,
			Body:      msg.Body,
			CreatedAt: msg.CreatedAt,
		})
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal archive record: %w", err)
	}

	key := objectKey(tenantID, conversationID, record.ArchivedAt)
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("upload archive record: %w", err)
	}

	s.log.Info("conversation archived", "bucket", s.bucket, "key", key)
	return nil
}

func objectKey(tenantID, conversationID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("%s/%s/%s.json", tenantID, at.Format("2006-01-02"), conversationID)
}
