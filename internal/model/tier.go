package model

import "strings"

// Tier is a subscription tier. It only determines the photo ceiling.
type Tier string

// Tier constants
const (
	TierLegacy    Tier = "legacy"
	TierFamily    Tier = "family"
	TierEssential Tier = "essential"
	TierFree      Tier = "free"
)

// DefaultCeiling applies to free and unknown tiers.
const DefaultCeiling = 5

var tierCeilings = map[Tier]int{
	TierLegacy:    20,
	TierFamily:    10,
	TierEssential: 10,
	TierFree:      DefaultCeiling,
}

// Tiers lists the known tiers from largest to smallest ceiling.
var Tiers = []Tier{TierLegacy, TierFamily, TierEssential, TierFree}

// ParseTier normalizes a tier name. Unknown names are kept as-is and get the
// default ceiling.
func ParseTier(s string) Tier {
	return Tier(strings.ToLower(strings.TrimSpace(s)))
}

// CeilingFor returns the maximum number of photos a moment may hold.
func CeilingFor(t Tier) int {
	if n, ok := tierCeilings[t]; ok {
		return n
	}
	return DefaultCeiling
}
