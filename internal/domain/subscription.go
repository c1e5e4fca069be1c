package domain

import "strings"

// PlanTier is an organization's subscription level.
type PlanTier string

const (
	PlanFree   PlanTier = "free"
	PlanPro    PlanTier = "pro"
	PlanAgency PlanTier = "agency"
)

// SubscriptionStatusCanceled is written when the processor deletes a subscription.
const SubscriptionStatusCanceled = "canceled"

// PlanCatalog maps processor price and product identifiers to plan tiers.
// It is built once from configuration.
type PlanCatalog struct {
	tiers map[string]PlanTier
}

// NewPlanCatalog builds a catalog from tier -> identifiers. Empty identifiers are ignored.
func NewPlanCatalog(ids map[PlanTier][]string) *PlanCatalog {
	c := &PlanCatalog{tiers: make(map[string]PlanTier)}
	for tier, list := range ids {
		for _, id := range list {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			c.tiers[id] = tier
		}
	}
	return c
}

// Resolve returns the tier for the first recognized identifier, or PlanFree.
func (c *PlanCatalog) Resolve(identifiers ...string) PlanTier {
	if c == nil {
		return PlanFree
	}
	for _, id := range identifiers {
		if tier, ok := c.tiers[id]; ok {
			return tier
		}
	}
	return PlanFree
}
