package domain

// LoyaltyLevel is the ordered classification of a portfolio owner. It is set
// at opening and carried through state; fee and benefit calculations that use
// it live outside this service.
type LoyaltyLevel string

const (
	LoyaltyBronze LoyaltyLevel = "BRONZE"
	LoyaltySilver LoyaltyLevel = "SILVER"
	LoyaltyGold   LoyaltyLevel = "GOLD"
)

// DefaultLoyaltyLevel is assigned to every newly opened portfolio.
const DefaultLoyaltyLevel = LoyaltyBronze

// Rank returns the ordinal position of the level, lowest first. Unknown
// levels rank below Bronze.
func (l LoyaltyLevel) Rank() int {
	switch l {
	case LoyaltyBronze:
		return 1
	case LoyaltySilver:
		return 2
	case LoyaltyGold:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether l ranks at or above other.
func (l LoyaltyLevel) AtLeast(other LoyaltyLevel) bool {
	return l.Rank() >= other.Rank()
}
