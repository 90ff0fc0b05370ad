package pricing

import (
	"math/rand"
	"testing"
	"time"

	"github.com/safar/hardware-store/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func percent(id int64, v int64) models.Discount {
	return models.Discount{ID: id, Name: "pct", Type: models.DiscountLimitedTime, ValueType: models.ValuePercentage,
		Value: dec(v), StartAt: now.Add(-time.Hour), Active: true}
}

func fixed(id int64, v int64) models.Discount {
	return models.Discount{ID: id, Name: "flat", Type: models.DiscountLimitedTime, ValueType: models.ValueFixed,
		Value: dec(v), StartAt: now.Add(-time.Hour), Active: true}
}

func lines(amounts ...int64) []Line {
	var out []Line
	for i, a := range amounts {
		out = append(out, Line{ProductID: int64(i + 1), UnitPrice: dec(a), Quantity: 1})
	}
	return out
}

func TestEvaluatePickupPercentage(t *testing.T) {
	q := Evaluate(Input{
		Lines:          lines(1000),
		ShippingMethod: models.ShippingPickup,
		Level:          models.LevelFree,
		Discounts:      []models.Discount{percent(1, 10)},
		Now:            now,
		DeliveryFee:    dec(100),
	})

	assert.True(t, q.Subtotal.Equal(dec(1000)))
	assert.True(t, q.ShippingFee.IsZero())
	assert.True(t, q.DiscountAmount.Equal(dec(100)), "discount %s", q.DiscountAmount)
	assert.True(t, q.FinalTotal.Equal(dec(900)), "total %s", q.FinalTotal)
	require.Len(t, q.Applied, 1)
	assert.Equal(t, int64(1), q.Applied[0].DiscountID)
}

func TestEvaluateDeliveryNoDiscounts(t *testing.T) {
	q := Evaluate(Input{
		Lines:          lines(200, 300),
		ShippingMethod: models.ShippingDelivery,
		Level:          models.LevelFree,
		Now:            now,
		DeliveryFee:    dec(100),
	})

	assert.True(t, q.Subtotal.Equal(dec(500)))
	assert.True(t, q.ShippingFee.Equal(dec(100)))
	assert.True(t, q.DiscountAmount.IsZero())
	assert.True(t, q.FinalTotal.Equal(dec(600)))
	assert.Empty(t, q.Applied)
}

func TestEvaluateQuantities(t *testing.T) {
	q := Evaluate(Input{
		Lines: []Line{
			{ProductID: 1, UnitPrice: decimal.RequireFromString("19.90"), Quantity: 3},
			{ProductID: 2, UnitPrice: dec(5), Quantity: 2},
		},
		ShippingMethod: models.ShippingPickup,
		Now:            now,
	})
	assert.Equal(t, "69.7", q.Subtotal.String())
}

func TestPercentageIsFloored(t *testing.T) {
	d := percent(1, 15)
	assert.True(t, Amount(d, dec(999)).Equal(dec(149)))
	assert.True(t, Amount(d, decimal.RequireFromString("10.50")).Equal(dec(1)))
}

func TestFixedDiscountsStackAndClampAtZero(t *testing.T) {
	q := Evaluate(Input{
		Lines:          lines(150),
		ShippingMethod: models.ShippingDelivery,
		Discounts:      []models.Discount{fixed(1, 100), fixed(2, 200)},
		Now:            now,
		DeliveryFee:    dec(100),
	})

	assert.Len(t, q.Applied, 2)
	assert.True(t, q.DiscountAmount.Equal(dec(300)))
	assert.True(t, q.FinalTotal.IsZero())
}

func TestEligibilityGates(t *testing.T) {
	memberOnly := percent(1, 10)
	memberOnly.MemberOnly = true

	pickupOnly := fixed(2, 50)
	pickupOnly.PickupOnly = true

	minAmount := fixed(3, 50)
	minimum := dec(1000)
	minAmount.MinAmount = &minimum

	future := fixed(4, 50)
	future.StartAt = now.Add(time.Hour)

	expired := fixed(5, 50)
	end := now.Add(-time.Minute)
	expired.EndAt = &end

	inactive := fixed(6, 50)
	inactive.Active = false

	openEnded := fixed(7, 50)
	endsNow := now
	openEnded.EndAt = &endsNow

	tests := []struct {
		name     string
		discount models.Discount
		level    models.MembershipLevel
		method   models.ShippingMethod
		subtotal int64
		want     bool
		reason   string
	}{
		{"member only rejects FREE", memberOnly, models.LevelFree, models.ShippingPickup, 500, false, ReasonMembersOnly},
		{"member only rejects empty level", memberOnly, "", models.ShippingPickup, 500, false, ReasonMembersOnly},
		{"member only accepts SILVER", memberOnly, models.LevelSilver, models.ShippingPickup, 500, true, ""},
		{"member only accepts PLATINUM", memberOnly, models.LevelPlatinum, models.ShippingDelivery, 500, true, ""},
		{"pickup only rejects delivery", pickupOnly, models.LevelGold, models.ShippingDelivery, 500, false, ReasonPickupOnly},
		{"pickup only accepts pickup", pickupOnly, models.LevelFree, models.ShippingPickup, 500, true, ""},
		{"below minimum", minAmount, models.LevelFree, models.ShippingPickup, 999, false, ReasonBelowMinimum},
		{"at minimum", minAmount, models.LevelFree, models.ShippingPickup, 1000, true, ""},
		{"not started", future, models.LevelFree, models.ShippingPickup, 500, false, ReasonNotStarted},
		{"expired", expired, models.LevelFree, models.ShippingPickup, 500, false, ReasonExpired},
		{"inactive", inactive, models.LevelFree, models.ShippingPickup, 500, false, ReasonInactive},
		{"end equal to now still valid", openEnded, models.LevelFree, models.ShippingPickup, 500, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := Eligible(tt.discount, tt.level, tt.method, dec(tt.subtotal), now)
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestRejectedDiscountsAreReported(t *testing.T) {
	memberOnly := percent(9, 20)
	memberOnly.MemberOnly = true

	q := Evaluate(Input{
		Lines:          lines(1000),
		ShippingMethod: models.ShippingDelivery,
		Level:          models.LevelFree,
		Discounts:      []models.Discount{memberOnly, fixed(2, 30)},
		Now:            now,
		DeliveryFee:    dec(100),
	})

	require.Len(t, q.Rejected, 1)
	assert.Equal(t, int64(9), q.Rejected[0].DiscountID)
	assert.Equal(t, ReasonMembersOnly, q.Rejected[0].Reason)
	assert.True(t, q.FinalTotal.Equal(dec(1070)))
}

func TestExclusiveDiscounts(t *testing.T) {
	t.Run("exclusive wins when larger than combinable sum", func(t *testing.T) {
		big := percent(1, 30)
		big.Exclusive = true

		q := Evaluate(Input{
			Lines:          lines(1000),
			ShippingMethod: models.ShippingPickup,
			Discounts:      []models.Discount{fixed(2, 50), big, fixed(3, 50)},
			Now:            now,
		})

		require.Len(t, q.Applied, 1)
		assert.Equal(t, int64(1), q.Applied[0].DiscountID)
		assert.True(t, q.DiscountAmount.Equal(dec(300)))
		assert.Len(t, q.Rejected, 2)
		for _, r := range q.Rejected {
			assert.Equal(t, ReasonNotCombinable, r.Reason)
		}
	})

	t.Run("combinable sum wins over smaller exclusive", func(t *testing.T) {
		small := fixed(1, 60)
		small.Exclusive = true

		q := Evaluate(Input{
			Lines:          lines(1000),
			ShippingMethod: models.ShippingPickup,
			Discounts:      []models.Discount{small, fixed(2, 50), fixed(3, 50)},
			Now:            now,
		})

		assert.Len(t, q.Applied, 2)
		assert.True(t, q.DiscountAmount.Equal(dec(100)))
		require.Len(t, q.Rejected, 1)
		assert.Equal(t, int64(1), q.Rejected[0].DiscountID)
	})

	t.Run("only the best of several exclusives applies", func(t *testing.T) {
		a := fixed(1, 70)
		a.Exclusive = true
		b := fixed(2, 90)
		b.Exclusive = true

		q := Evaluate(Input{
			Lines:          lines(1000),
			ShippingMethod: models.ShippingPickup,
			Discounts:      []models.Discount{a, b},
			Now:            now,
		})

		require.Len(t, q.Applied, 1)
		assert.Equal(t, int64(2), q.Applied[0].DiscountID)
	})
}

// Random discount sets must keep the additive formula, never go negative and
// never let the member or pickup gates leak.
func TestEvaluateProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	levels := []models.MembershipLevel{models.LevelFree, models.LevelSilver, models.LevelGold, models.LevelPlatinum}
	methods := []models.ShippingMethod{models.ShippingDelivery, models.ShippingPickup}

	for i := 0; i < 500; i++ {
		var ls []Line
		for n := rng.Intn(4) + 1; n > 0; n-- {
			ls = append(ls, Line{ProductID: int64(n), UnitPrice: dec(rng.Int63n(2000)), Quantity: rng.Intn(3) + 1})
		}

		var ds []models.Discount
		for n := rng.Intn(5); n > 0; n-- {
			var d models.Discount
			if rng.Intn(2) == 0 {
				d = percent(int64(n), rng.Int63n(60))
			} else {
				d = fixed(int64(n), rng.Int63n(800))
			}
			d.MemberOnly = rng.Intn(3) == 0
			d.PickupOnly = rng.Intn(3) == 0
			ds = append(ds, d)
		}

		in := Input{
			Lines:          ls,
			ShippingMethod: methods[rng.Intn(len(methods))],
			Level:          levels[rng.Intn(len(levels))],
			Discounts:      ds,
			Now:            now,
			DeliveryFee:    dec(100),
		}
		q := Evaluate(in)

		sum := decimal.Zero
		for _, a := range q.Applied {
			sum = sum.Add(a.Amount)
		}
		want := q.Subtotal.Add(q.ShippingFee).Sub(sum)
		if want.IsNegative() {
			want = decimal.Zero
		}
		require.True(t, q.FinalTotal.Equal(want), "iteration %d: got %s want %s", i, q.FinalTotal, want)
		require.False(t, q.FinalTotal.IsNegative())

		byID := map[int64]models.Discount{}
		for _, d := range ds {
			byID[d.ID] = d
		}
		for _, a := range q.Applied {
			d := byID[a.DiscountID]
			if d.MemberOnly {
				require.NotEqual(t, models.LevelFree, in.Level, "iteration %d", i)
			}
			if d.PickupOnly {
				require.Equal(t, models.ShippingPickup, in.ShippingMethod, "iteration %d", i)
			}
		}
	}
}

func TestWithinTolerance(t *testing.T) {
	assert.True(t, WithinTolerance(dec(900), dec(900), dec(1)))
	assert.True(t, WithinTolerance(dec(900), decimal.RequireFromString("899.01"), dec(1)))
	assert.True(t, WithinTolerance(dec(900), dec(901), dec(1)))
	assert.False(t, WithinTolerance(dec(900), dec(902), dec(1)))
	assert.False(t, WithinTolerance(dec(900), dec(850), dec(1)))
}
