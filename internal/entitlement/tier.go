package entitlement

import "strings"

// Tier is the internal entitlement level granted from billing state.
type Tier string

const (
	TierTeacherPremium Tier = "teacher_premium"
	TierStudentPremium Tier = "student_premium"
)

// Valid reports whether t is one of the defined tiers.
func (t Tier) Valid() bool {
	return t == TierTeacherPremium || t == TierStudentPremium
}

// TierTable maps Stripe product IDs to entitlement tiers. Product IDs are
// environment-supplied, never compiled in.
type TierTable struct {
	teacherProductID string
	studentProductID string
	defaultTier      Tier
}

// NewTierTable builds a tier table. Any product ID not matching the teacher
// or student product resolves to defaultTier. The historical default is
// teacher_premium; the fallback is intentionally permissive rather than
// failing closed, and is kept configurable pending product review.
func NewTierTable(teacherProductID, studentProductID string, defaultTier Tier) TierTable {
	if !defaultTier.Valid() {
		defaultTier = TierTeacherPremium
	}
	return TierTable{
		teacherProductID: strings.TrimSpace(teacherProductID),
		studentProductID: strings.TrimSpace(studentProductID),
		defaultTier:      defaultTier,
	}
}

// DeriveTier resolves a product ID to a tier. Pure and total: every input,
// including the empty string, maps to exactly one tier.
func (tt TierTable) DeriveTier(productID string) Tier {
	switch strings.TrimSpace(productID) {
	case tt.teacherProductID:
		return TierTeacherPremium
	case tt.studentProductID:
		return TierStudentPremium
	default:
		return tt.defaultTier
	}
}

// DefaultTier returns the configured fallback tier.
func (tt TierTable) DefaultTier() Tier {
	return tt.defaultTier
}
