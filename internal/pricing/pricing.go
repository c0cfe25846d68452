package pricing

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrNegativeBasePrice = errors.New("base price must not be negative")
	ErrInvalidQuantity   = errors.New("quantity must be a positive integer")
	ErrInvalidBreakdown  = errors.New("price breakdown violates an arithmetic invariant")
)

// Rule names recorded on breakdowns for audit replay.
const (
	RuleFreeShippingThreshold = "free_shipping_threshold"
	RuleFlatShippingFee       = "flat_shipping_fee"
)

// DiscountTier grants a percentage discount once an order reaches MinQuantity
// units. Tiers are deterministic: the highest matching tier wins.
type DiscountTier struct {
	Name        string
	MinQuantity int64
	Percent     int64
}

// Rules are the inputs that make Compute deterministic and replayable.
type Rules struct {
	FlatShippingFee       int64
	FreeShippingThreshold int64
	DiscountTiers         []DiscountTier
}

// DefaultRules returns the production rule set: 690 flat shipping waived at a
// post-discount subtotal of 8000, with two quantity tiers.
func DefaultRules() Rules {
	return Rules{
		FlatShippingFee:       690,
		FreeShippingThreshold: 8000,
		DiscountTiers: []DiscountTier{
			{Name: "quantity_tier_10", MinQuantity: 10, Percent: 5},
			{Name: "quantity_tier_50", MinQuantity: 50, Percent: 10},
		},
	}
}

// Breakdown is the full, auditable result of a price computation. All values
// are in the minor currency unit.
type Breakdown struct {
	BaseUnitPrice         int64    `json:"base_unit_price"`
	Quantity              int64    `json:"quantity"`
	Subtotal              int64    `json:"subtotal"`
	DiscountTotal         int64    `json:"discount_total"`
	SubtotalAfterDiscount int64    `json:"subtotal_after_discount"`
	ShippingFee           int64    `json:"shipping_fee"`
	Amount                int64    `json:"amount"`
	RulesApplied          []string `json:"rules_applied"`
}

// Compute derives the order total from its inputs. It is a pure function:
// identical inputs always produce an identical breakdown, so retries and
// audit replays are safe. No I/O, no side effects.
func Compute(basePrice, quantity int64, rules Rules) (Breakdown, error) {
	if basePrice < 0 {
		return Breakdown{}, fmt.Errorf("%w: %d", ErrNegativeBasePrice, basePrice)
	}
	if quantity <= 0 {
		return Breakdown{}, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}

	b := Breakdown{
		BaseUnitPrice: basePrice,
		Quantity:      quantity,
		Subtotal:      basePrice * quantity,
	}

	if tier, ok := matchTier(quantity, rules.DiscountTiers); ok {
		b.DiscountTotal = b.Subtotal * tier.Percent / 100
		b.RulesApplied = append(b.RulesApplied, tier.Name)
	}
	b.SubtotalAfterDiscount = b.Subtotal - b.DiscountTotal

	if b.SubtotalAfterDiscount >= rules.FreeShippingThreshold {
		b.ShippingFee = 0
		b.RulesApplied = append(b.RulesApplied, RuleFreeShippingThreshold)
	} else {
		b.ShippingFee = rules.FlatShippingFee
		b.RulesApplied = append(b.RulesApplied, RuleFlatShippingFee)
	}

	b.Amount = b.SubtotalAfterDiscount + b.ShippingFee

	if err := b.Validate(rules); err != nil {
		return Breakdown{}, err
	}
	return b, nil
}

// matchTier returns the highest tier whose MinQuantity is satisfied.
func matchTier(quantity int64, tiers []DiscountTier) (DiscountTier, bool) {
	sorted := make([]DiscountTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinQuantity > sorted[j].MinQuantity })
	for _, t := range sorted {
		if quantity >= t.MinQuantity {
			return t, true
		}
	}
	return DiscountTier{}, false
}

// Validate re-checks every arithmetic invariant. It runs inside Compute and
// again before any order is persisted, replacing storage-level CHECKs.
func (b Breakdown) Validate(rules Rules) error {
	if b.BaseUnitPrice < 0 || b.Subtotal < 0 || b.DiscountTotal < 0 ||
		b.SubtotalAfterDiscount < 0 || b.ShippingFee < 0 || b.Amount < 0 {
		return fmt.Errorf("%w: negative monetary field", ErrInvalidBreakdown)
	}
	if b.Subtotal != b.BaseUnitPrice*b.Quantity {
		return fmt.Errorf("%w: subtotal %d != %d * %d", ErrInvalidBreakdown, b.Subtotal, b.BaseUnitPrice, b.Quantity)
	}
	if b.DiscountTotal > b.Subtotal {
		return fmt.Errorf("%w: discount %d exceeds subtotal %d", ErrInvalidBreakdown, b.DiscountTotal, b.Subtotal)
	}
	if b.SubtotalAfterDiscount != b.Subtotal-b.DiscountTotal {
		return fmt.Errorf("%w: subtotal_after_discount %d != %d - %d", ErrInvalidBreakdown, b.SubtotalAfterDiscount, b.Subtotal, b.DiscountTotal)
	}
	if b.Amount != b.SubtotalAfterDiscount+b.ShippingFee {
		return fmt.Errorf("%w: amount %d != %d + %d", ErrInvalidBreakdown, b.Amount, b.SubtotalAfterDiscount, b.ShippingFee)
	}
	freeShipping := b.SubtotalAfterDiscount >= rules.FreeShippingThreshold
	if freeShipping && b.ShippingFee != 0 {
		return fmt.Errorf("%w: shipping fee %d above free-shipping threshold", ErrInvalidBreakdown, b.ShippingFee)
	}
	if !freeShipping && b.ShippingFee != rules.FlatShippingFee {
		return fmt.Errorf("%w: shipping fee %d below threshold, expected %d", ErrInvalidBreakdown, b.ShippingFee, rules.FlatShippingFee)
	}
	return nil
}

// ToDocument renders the breakdown as the amount_breakdown document stored on
// orders.
func (b Breakdown) ToDocument() map[string]interface{} {
	rules := make([]interface{}, len(b.RulesApplied))
	for i, r := range b.RulesApplied {
		rules[i] = r
	}
	return map[string]interface{}{
		"base_unit_price":         b.BaseUnitPrice,
		"quantity":                b.Quantity,
		"subtotal":                b.Subtotal,
		"discount_total":          b.DiscountTotal,
		"subtotal_after_discount": b.SubtotalAfterDiscount,
		"shipping_fee":            b.ShippingFee,
		"amount":                  b.Amount,
		"rules_applied":           rules,
	}
}
