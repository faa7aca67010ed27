package pricing

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amount(v int64) *int64 { return &v }

func TestComputeTotals_Scenarios(t *testing.T) {
	tests := []struct {
		name      string
		price     int64
		qty       int
		discount  *int64
		wantSub   int64
		wantGrand int64
	}{
		{"no promotion", 100000, 2, nil, 200000, 200000},
		{"flat promotion", 100000, 2, amount(50000), 200000, 150000},
		{"discount above subtotal floors at zero", 50000, 1, amount(100000), 50000, 0},
		{"discount equal to subtotal", 75000, 1, amount(75000), 75000, 0},
		{"zero discount", 10, 3, amount(0), 30, 30},
		{"free product", 0, 5, amount(1000), 0, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ComputeTotals(tc.price, tc.qty, tc.discount)
			require.NoError(t, err)
			assert.Equal(t, tc.wantSub, got.SubTotal)
			assert.Equal(t, tc.wantGrand, got.GrandTotal)
		})
	}
}

func TestComputeTotals_RejectsNonPositiveQuantity(t *testing.T) {
	for _, qty := range []int{0, -1, math.MinInt32} {
		_, err := ComputeTotals(100000, qty, nil)
		assert.ErrorIs(t, err, ErrInvalidQuantity, "qty=%d", qty)
	}
}

func TestComputeTotals_RejectsNegativeAmounts(t *testing.T) {
	_, err := ComputeTotals(-1, 1, nil)
	assert.ErrorIs(t, err, ErrNegativeAmount)

	_, err = ComputeTotals(100, 1, amount(-5))
	assert.ErrorIs(t, err, ErrNegativeAmount)
}

func TestComputeTotals_Overflow(t *testing.T) {
	_, err := ComputeTotals(math.MaxInt64/2+1, 2, nil)
	assert.ErrorIs(t, err, ErrAmountOverflow)

	got, err := ComputeTotals(math.MaxInt64, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), got.GrandTotal)
}

func TestComputeTotals_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10000; i++ {
		price := rng.Int63n(10_000_000)
		qty := rng.Intn(1000) + 1
		d := rng.Int63n(20_000_000_000)

		plain, err := ComputeTotals(price, qty, nil)
		require.NoError(t, err)
		assert.Equal(t, price*int64(qty), plain.SubTotal)
		assert.Equal(t, plain.SubTotal, plain.GrandTotal)

		disc, err := ComputeTotals(price, qty, &d)
		require.NoError(t, err)
		assert.Equal(t, plain.SubTotal, disc.SubTotal)
		assert.Equal(t, max(plain.SubTotal-d, 0), disc.GrandTotal)
		assert.GreaterOrEqual(t, disc.GrandTotal, int64(0))

		again, _ := ComputeTotals(price, qty, &d)
		assert.Equal(t, disc, again)
	}
}
