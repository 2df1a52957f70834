package types

// PlanType is the tier of a service plan. Tiers are ordered; upgrades move to a
// strictly higher ordinal unless a downgrade is explicitly allowed.
type PlanType string

const (
	PlanTypeFree       PlanType = "FREE"
	PlanTypeBasic      PlanType = "BASIC"
	PlanTypePro        PlanType = "PRO"
	PlanTypePremium    PlanType = "PREMIUM"
	PlanTypeEnterprise PlanType = "ENTERPRISE"
)

var planTypeOrdinal = map[PlanType]int{
	PlanTypeFree:       0,
	PlanTypeBasic:      1,
	PlanTypePro:        2,
	PlanTypePremium:    3,
	PlanTypeEnterprise: 4,
}

func (p PlanType) Validate() bool {
	_, ok := planTypeOrdinal[p]
	return ok
}

// Ordinal returns the tier rank, -1 for unknown tiers.
func (p PlanType) Ordinal() int {
	if ord, ok := planTypeOrdinal[p]; ok {
		return ord
	}
	return -1
}

// Compare returns a negative value when p is a lower tier than other, zero when
// equal and positive when higher.
func (p PlanType) Compare(other PlanType) int {
	return p.Ordinal() - other.Ordinal()
}
