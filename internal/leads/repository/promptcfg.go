package repository

import (
	"context"
	"encoding/json"
	"errors"

	"leadchat_backend/internal/promptcfg"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetTenantPromptConfig loads the tenant's base prompt configuration.
func (r *Repository) GetTenantPromptConfig(ctx context.Context, tenantID uuid.UUID) (promptcfg.TenantPromptConfig, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `
		SELECT config FROM tenant_prompt_configs WHERE tenant_id = $1
	`, tenantID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return promptcfg.TenantPromptConfig{}, ErrNotFound
	}
	if err != nil {
		return promptcfg.TenantPromptConfig{}, err
	}

	var cfg promptcfg.TenantPromptConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return promptcfg.TenantPromptConfig{}, err
	}
	return cfg, nil
}

// GetActiveCampaignConfig returns the overlay of the campaign currently
// running for the tenant, or nil when none is active.
func (r *Repository) GetActiveCampaignConfig(ctx context.Context, tenantID uuid.UUID) (*promptcfg.CampaignPromptConfig, error) {
	var name string
	var raw []byte
	err := r.pool.QueryRow(ctx, `
		SELECT name, prompt_config
		FROM campaigns
		WHERE tenant_id = $1
		  AND status = 'active'
		  AND starts_at <= now()
		  AND (ends_at IS NULL OR ends_at > now())
		ORDER BY starts_at DESC
		LIMIT 1
	`, tenantID).Scan(&name, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cfg promptcfg.CampaignPromptConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	cfg.CampaignName = name
	return &cfg, nil
}
