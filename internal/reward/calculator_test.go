package reward

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbcex/rewardkeeper/internal/fixedpoint"
	"github.com/nbcex/rewardkeeper/internal/model"
)

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, "bad big integer literal %q", s)
	return v
}

// scaledRate builds an exact 10^18-scaled conversion rate from an integer
// ratio, bypassing the float boundary for deterministic expectations.
func scaledRate(rate int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(rate), fixedpoint.Pow10(18))
}

func TestCalculateRewardRateBTCPool(t *testing.T) {
	// 1,000,000 NBC staked, 100% APR, 1 BTC = 1,335,200 NBC (93464 / 0.07),
	// BTC carries 8 decimals. Annual reward works out to ~0.749 BTC.
	res, err := CalculateRewardRate(100, mustBig(t, "1000000000000000000000000"), scaledRate(1335200), 8)
	require.NoError(t, err)

	assert.Equal(t, "1000000000000000000000000", res.AnnualRewardNBCWei.String())
	assert.Equal(t, "74895146", res.AnnualRewardToken.String())
	assert.Equal(t, "3", res.RewardPerSecond.String())
}

func TestCalculateRewardRateZeroStake(t *testing.T) {
	res, err := CalculateRewardRate(100, big.NewInt(0), scaledRate(1335200), 8)
	require.NoError(t, err)

	assert.Zero(t, res.RewardPerSecond.Sign())
	assert.Zero(t, res.AnnualRewardToken.Sign())
	assert.Zero(t, res.AnnualRewardNBCWei.Sign())
}

func TestCalculateRewardRateInputValidation(t *testing.T) {
	staked := mustBig(t, "1000000000000000000000000")

	_, err := CalculateRewardRate(100, staked, big.NewInt(0), 8)
	assert.ErrorIs(t, err, ErrInvalidConversionRate)

	_, err = CalculateRewardRate(100, staked, nil, 8)
	assert.ErrorIs(t, err, ErrInvalidConversionRate)

	_, err = CalculateRewardRate(100, staked, scaledRate(1335200), 19)
	assert.ErrorIs(t, err, ErrInvalidDecimals)

	_, err = CalculateRewardRate(100, staked, scaledRate(1335200), -1)
	assert.ErrorIs(t, err, ErrInvalidDecimals)

	_, err = CalculateRewardRate(-5, staked, scaledRate(1335200), 8)
	assert.Error(t, err)
}

func TestCalculateRewardRateNeverNegative(t *testing.T) {
	stakes := []string{"0", "1", "1000000000000000000", "1000000000000000000000000000000"}
	aprs := []float64{0, 1, 12.5, 100, 500}

	for _, s := range stakes {
		for _, apr := range aprs {
			res, err := CalculateRewardRate(apr, mustBig(t, s), scaledRate(1335200), 8)
			require.NoError(t, err, "stake=%s apr=%v", s, apr)
			assert.True(t, res.RewardPerSecond.Sign() >= 0, "stake=%s apr=%v", s, apr)
			if s == "0" {
				assert.Zero(t, res.RewardPerSecond.Sign())
			}
		}
	}
}

func TestCeilingRoundingInvariant(t *testing.T) {
	// rewardPerSecond * secondsPerYear must never fall short of the annual
	// reward, and the excess must stay below one year's worth of base units.
	cases := []struct {
		name     string
		apr      float64
		stake    string
		rate     int64
		decimals int
	}{
		{name: "btc pool", apr: 100, stake: "1000000000000000000000000", rate: 1335200, decimals: 8},
		{name: "eth pool", apr: 100, stake: "1000000000000000000000000", rate: 35714, decimals: 18},
		{name: "doge pool small stake", apr: 12.5, stake: "5000000000000000000000", rate: 4, decimals: 18},
		{name: "huge stake", apr: 500, stake: "1000000000000000000000000000000", rate: 1335200, decimals: 8},
		{name: "dust stake", apr: 1, stake: "1000000000000000000", rate: 1335200, decimals: 8},
	}

	year := big.NewInt(model.SecondsPerYear)

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			res, err := CalculateRewardRate(tt.apr, mustBig(t, tt.stake), scaledRate(tt.rate), tt.decimals)
			require.NoError(t, err)

			delivered := new(big.Int).Mul(res.RewardPerSecond, year)
			assert.True(t, delivered.Cmp(res.AnnualRewardToken) >= 0,
				"delivered %s falls short of annual %s", delivered, res.AnnualRewardToken)

			excess := new(big.Int).Sub(delivered, res.AnnualRewardToken)
			assert.True(t, excess.Cmp(year) < 0,
				"excess %s not below secondsPerYear", excess)
		})
	}
}

func TestRoundTripReproducesTargetAPR(t *testing.T) {
	// Computing a rate from a target APR and feeding it back through the
	// reverse calculator must land within 1% of the target. Cases are sized
	// so the ceiling remainder is small relative to the annual reward.
	cases := []struct {
		name     string
		apr      float64
		stake    string
		rate     float64
		decimals int
	}{
		{name: "eth pool", apr: 100, stake: "1000000000000000000000000", rate: 2500 / 0.07, decimals: 18},
		{name: "doge pool", apr: 12.5, stake: "5000000000000000000000", rate: 0.31 / 0.07, decimals: 18},
		{name: "btc whale stake", apr: 500, stake: "1000000000000000000000000000000", rate: 93464 / 0.07, decimals: 8},
		{name: "usdt pool", apr: 30, stake: "250000000000000000000000", rate: 1 / 0.07, decimals: 6},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			scaled, err := fixedpoint.Scale(tt.rate)
			require.NoError(t, err)

			res, err := CalculateRewardRate(tt.apr, mustBig(t, tt.stake), scaled, tt.decimals)
			require.NoError(t, err)
			require.True(t, res.RewardPerSecond.Sign() > 0)

			diag, err := CalculateAPRFromRewardRate(res.RewardPerSecond, mustBig(t, tt.stake), tt.rate, tt.decimals)
			require.NoError(t, err)

			assert.InEpsilon(t, tt.apr, diag.ImpliedAPR, 0.01,
				"implied APR %.4f drifted more than 1%% from target %.4f", diag.ImpliedAPR, tt.apr)
			// Ceiling policy overshoots; allow float conversion jitter only.
			assert.GreaterOrEqual(t, diag.ImpliedAPR+1e-9, tt.apr)
		})
	}
}

func TestCalculateAPRFromRewardRate(t *testing.T) {
	// rewardRate 3 wei/s on the BTC pool delivers 94,608,000 base units a
	// year, worth 1,263,206.016 NBC against a 1,000,000 NBC stake.
	diag, err := CalculateAPRFromRewardRate(big.NewInt(3), mustBig(t, "1000000000000000000000000"), 1335200, 8)
	require.NoError(t, err)

	assert.Equal(t, "94608000", diag.AnnualRewardToken.String())
	assert.Equal(t, "1263206016000000000000000", diag.AnnualRewardNBC.String())
	assert.InDelta(t, 126.3206016, diag.ImpliedAPR, 1e-6)
}

func TestCalculateAPRFromRewardRateZeroInputs(t *testing.T) {
	stake := mustBig(t, "1000000000000000000000000")

	diag, err := CalculateAPRFromRewardRate(big.NewInt(0), stake, 1335200, 8)
	require.NoError(t, err)
	assert.Zero(t, diag.ImpliedAPR)

	diag, err = CalculateAPRFromRewardRate(big.NewInt(3), big.NewInt(0), 1335200, 8)
	require.NoError(t, err)
	assert.Zero(t, diag.ImpliedAPR)
	assert.Zero(t, diag.AnnualRewardToken.Sign())
}

func TestImpliedStakeForAPR(t *testing.T) {
	stake, err := ImpliedStakeForAPR(big.NewInt(3), 1335200, 8, 100)
	require.NoError(t, err)
	assert.Equal(t, "1263206016000000000000000", stake.String())

	stake, err = ImpliedStakeForAPR(big.NewInt(0), 1335200, 8, 100)
	require.NoError(t, err)
	assert.Zero(t, stake.Sign())

	_, err = ImpliedStakeForAPR(big.NewInt(3), 1335200, 8, 0)
	assert.Error(t, err)
}

func TestDeviationPercent(t *testing.T) {
	tests := []struct {
		name    string
		actual  int64
		correct int64
		want    float64
	}{
		{name: "exact match", actual: 100, correct: 100, want: 0},
		{name: "four percent low", actual: 100, correct: 104, want: 4},
		{name: "six percent high", actual: 100, correct: 94, want: 6},
		{name: "both zero", actual: 0, correct: 0, want: 0},
		{name: "zero actual", actual: 0, correct: 50, want: 100},
		{name: "zero correct", actual: 50, correct: 0, want: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeviationPercent(big.NewInt(tt.actual), big.NewInt(tt.correct))
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
