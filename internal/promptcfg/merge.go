package promptcfg

import "fmt"

// Merge applies an active campaign's overrides to the tenant's base config.
//
// Per-field strategy:
//   - productsInfo, pricingInfo, faq, fallbackMessage: replace when the
//     campaign value is set.
//   - customInstructions: append after the tenant text under a separator
//     naming the campaign. Tenant-level security and behavior instructions
//     must survive campaign overlays.
//   - handoffRules: shallow merge, campaign fields override key-by-key.
//
// A nil campaign is the identity merge.
func Merge(tenant TenantPromptConfig, campaign *CampaignPromptConfig) TenantPromptConfig {
	if campaign == nil {
		return tenant
	}

	merged := tenant

	if campaign.ProductsInfo != nil {
		merged.ProductsInfo = campaign.ProductsInfo
	}
	if campaign.PricingInfo != nil {
		merged.PricingInfo = campaign.PricingInfo
	}
	if campaign.FAQ != nil {
		merged.FAQ = campaign.FAQ
	}
	if campaign.FallbackMessage != nil {
		merged.FallbackMessage = campaign.FallbackMessage
	}

	if campaign.CustomInstructions != nil && *campaign.CustomInstructions != "" {
		appended := fmt.Sprintf("--- Campanha: %s ---\n%s", campaign.CampaignName, *campaign.CustomInstructions)
		if tenant.CustomInstructions != nil && *tenant.CustomInstructions != "" {
			appended = *tenant.CustomInstructions + "\n\n" + appended
		}
		merged.CustomInstructions = &appended
	}

	merged.HandoffRules = mergeRules(tenant.HandoffRules, campaign.HandoffRules)

	return merged
}

func mergeRules(base HandoffRules, overlay *CampaignRulesOverlay) HandoffRules {
	if overlay == nil {
		return base
	}

	merged := base
	if overlay.ScoreThreshold != nil {
		merged.ScoreThreshold = *overlay.ScoreThreshold
	}
	if overlay.MaxAiTurns != nil {
		merged.MaxAiTurns = *overlay.MaxAiTurns
	}
	if overlay.BusinessHoursOnly != nil {
		merged.BusinessHoursOnly = *overlay.BusinessHoursOnly
	}
	if overlay.HandoffIntents != nil {
		merged.HandoffIntents = overlay.HandoffIntents
	}
	if overlay.AutoHandoffOnPrice != nil {
		merged.AutoHandoffOnPrice = *overlay.AutoHandoffOnPrice
	}
	if overlay.FollowUpEnabled != nil {
		merged.FollowUpEnabled = *overlay.FollowUpEnabled
	}
	if overlay.FollowUpDelayHours != nil {
		merged.FollowUpDelayHours = *overlay.FollowUpDelayHours
	}
	return merged
}
