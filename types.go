package creditsync

// Tier is a subscription plan tier. The set is open: tiers the server reports that are
// not listed here are kept verbatim.
type Tier string

const (
	TierFree      Tier = "free"
	TierBasic     Tier = "basic"
	TierBasicPlus Tier = "basic_plus"
	TierPro       Tier = "pro"
	TierCustom    Tier = "custom"
)

// Known returns true if t is one of the tiers this package names.
func (t Tier) Known() bool {
	switch t {
	case TierFree, TierBasic, TierBasicPlus, TierPro, TierCustom:
		return true
	default:
		return false
	}
}

// Balance is the cached credit allowance of the signed-in user.
type Balance struct {
	Remaining int64 `json:"remaining" yaml:"remaining"`
	Tier      Tier  `json:"tier" yaml:"tier"`
}

// clamp returns b with Remaining floored at zero.
func (b Balance) clamp() Balance {
	if b.Remaining < 0 {
		b.Remaining = 0
	}
	return b
}

// Deduct returns b lowered by amount, never below zero. The tier is unchanged.
func (b Balance) Deduct(amount int64) Balance {
	b.Remaining -= amount
	return b.clamp()
}

// Covers reports whether b can pay for cost.
func (b Balance) Covers(cost int64) bool {
	return b.Remaining >= cost
}
