package pricing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeBasicArithmetic(t *testing.T) {
	b, err := Compute(3000, 3, DefaultRules())
	require.NoError(t, err)

	require.Equal(t, int64(9000), b.Subtotal)
	require.Equal(t, int64(0), b.DiscountTotal)
	require.Equal(t, int64(9000), b.SubtotalAfterDiscount)
	require.Equal(t, int64(0), b.ShippingFee)
	require.Equal(t, int64(9000), b.Amount)
	require.Contains(t, b.RulesApplied, RuleFreeShippingThreshold)
}

func TestComputeIsDeterministic(t *testing.T) {
	first, err := Compute(1250, 7, DefaultRules())
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := Compute(1250, 7, DefaultRules())
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestFreeShippingBoundary(t *testing.T) {
	rules := Rules{FlatShippingFee: 690, FreeShippingThreshold: 8000}

	// 7999 → flat fee charged
	b, err := Compute(7999, 1, rules)
	require.NoError(t, err)
	require.Equal(t, int64(7999), b.SubtotalAfterDiscount)
	require.Equal(t, int64(690), b.ShippingFee)
	require.Equal(t, int64(8689), b.Amount)
	require.Contains(t, b.RulesApplied, RuleFlatShippingFee)

	// exactly 8000 → fee waived
	b, err = Compute(8000, 1, rules)
	require.NoError(t, err)
	require.Equal(t, int64(8000), b.SubtotalAfterDiscount)
	require.Equal(t, int64(0), b.ShippingFee)
	require.Equal(t, int64(8000), b.Amount)
	require.Contains(t, b.RulesApplied, RuleFreeShippingThreshold)
}

func TestQuantityTierDiscount(t *testing.T) {
	b, err := Compute(100, 10, DefaultRules())
	require.NoError(t, err)
	require.Equal(t, int64(1000), b.Subtotal)
	require.Equal(t, int64(50), b.DiscountTotal) // 5% tier
	require.Equal(t, int64(950), b.SubtotalAfterDiscount)
	require.Contains(t, b.RulesApplied, "quantity_tier_10")

	b, err = Compute(100, 50, DefaultRules())
	require.NoError(t, err)
	require.Equal(t, int64(500), b.DiscountTotal) // 10% tier wins over 5%
	require.Contains(t, b.RulesApplied, "quantity_tier_50")
}

func TestComputeRejectsInvalidInputs(t *testing.T) {
	_, err := Compute(-1, 1, DefaultRules())
	require.ErrorIs(t, err, ErrNegativeBasePrice)

	_, err = Compute(100, 0, DefaultRules())
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = Compute(100, -5, DefaultRules())
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestValidateCatchesTampering(t *testing.T) {
	rules := DefaultRules()
	b, err := Compute(3000, 3, rules)
	require.NoError(t, err)

	cases := []func(*Breakdown){
		func(b *Breakdown) { b.Subtotal = 1 },
		func(b *Breakdown) { b.DiscountTotal = b.Subtotal + 1 },
		func(b *Breakdown) { b.Amount = b.Amount + 1 },
		func(b *Breakdown) { b.ShippingFee = 690 }, // above threshold, fee must be 0
		func(b *Breakdown) { b.DiscountTotal = -1 },
	}
	for i, mutate := range cases {
		tampered := b
		mutate(&tampered)
		err := tampered.Validate(rules)
		if !errors.Is(err, ErrInvalidBreakdown) {
			t.Errorf("case %d: expected invariant violation, got %v", i, err)
		}
	}
}

func TestInvariantsHoldAcrossInputs(t *testing.T) {
	rules := DefaultRules()
	for _, base := range []int64{0, 1, 500, 2999, 8000} {
		for _, qty := range []int64{1, 2, 9, 10, 49, 50, 100} {
			b, err := Compute(base, qty, rules)
			require.NoError(t, err)
			require.Equal(t, base*qty, b.Subtotal)
			require.Equal(t, b.SubtotalAfterDiscount+b.ShippingFee, b.Amount)
			if b.SubtotalAfterDiscount >= rules.FreeShippingThreshold {
				require.Zero(t, b.ShippingFee)
			} else {
				require.Equal(t, rules.FlatShippingFee, b.ShippingFee)
			}
		}
	}
}
