// Package promptcfg holds the tenant prompt configuration model and the
// campaign overlay merge applied before every AI call.
package promptcfg

// HandoffRules controls when a conversation leaves AI handling.
type HandoffRules struct {
	ScoreThreshold     int      `json:"scoreThreshold"`
	MaxAiTurns         int      `json:"maxAiTurns"`
	BusinessHoursOnly  bool     `json:"businessHoursOnly"`
	HandoffIntents     []string `json:"handoffIntents"`
	AutoHandoffOnPrice bool     `json:"autoHandoffOnPrice"`
	FollowUpEnabled    bool     `json:"followUpEnabled"`
	FollowUpDelayHours int      `json:"followUpDelayHours"`
}

// TenantPromptConfig is the tenant's base prompt configuration, loaded per
// job and read-only within the pipeline.
type TenantPromptConfig struct {
	BusinessName        string       `json:"businessName"`
	BusinessDescription *string      `json:"businessDescription,omitempty"`
	ProductsInfo        *string      `json:"productsInfo,omitempty"`
	PricingInfo         *string      `json:"pricingInfo,omitempty"`
	FAQ                 *string      `json:"faq,omitempty"`
	BusinessHours       *string      `json:"businessHours,omitempty"`
	PaymentMethods      *string      `json:"paymentMethods,omitempty"`
	CustomInstructions  *string      `json:"customInstructions,omitempty"`
	FallbackMessage     *string      `json:"fallbackMessage,omitempty"`
	HandoffRules        HandoffRules `json:"handoffRules"`
}

// CampaignRulesOverlay is a partial HandoffRules: only set fields override.
type CampaignRulesOverlay struct {
	ScoreThreshold     *int      `json:"scoreThreshold,omitempty"`
	MaxAiTurns         *int      `json:"maxAiTurns,omitempty"`
	BusinessHoursOnly  *bool     `json:"businessHoursOnly,omitempty"`
	HandoffIntents     []string  `json:"handoffIntents,omitempty"`
	AutoHandoffOnPrice *bool     `json:"autoHandoffOnPrice,omitempty"`
	FollowUpEnabled    *bool     `json:"followUpEnabled,omitempty"`
	FollowUpDelayHours *int      `json:"followUpDelayHours,omitempty"`
}

// CampaignPromptConfig is the overlay applied while a campaign is active for
// a lead. Absent fields leave the tenant value untouched.
type CampaignPromptConfig struct {
	CampaignName       string                `json:"campaignName"`
	ProductsInfo       *string               `json:"productsInfo,omitempty"`
	PricingInfo        *string               `json:"pricingInfo,omitempty"`
	FAQ                *string               `json:"faq,omitempty"`
	FallbackMessage    *string               `json:"fallbackMessage,omitempty"`
	CustomInstructions *string               `json:"customInstructions,omitempty"`
	HandoffRules       *CampaignRulesOverlay `json:"handoffRules,omitempty"`
}
