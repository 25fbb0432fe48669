// Package reward holds the pure reward-rate and APR math for the staking
// pools. All arithmetic is on big.Int; floats only appear at the price
// boundary (handled by fixedpoint) and in diagnostic APR percentages.
package reward

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/nbcex/rewardkeeper/internal/fixedpoint"
	"github.com/nbcex/rewardkeeper/internal/model"
)

// APR is handled as a basis-points-like integer multiplier so that a target
// like 12.34% multiplies a big.Int without any floating arithmetic.
const aprScale = 10000

var (
	// ErrInvalidConversionRate is returned when the scaled conversion rate is
	// missing or non-positive, which would imply an infinite reward amount.
	ErrInvalidConversionRate = errors.New("reward: conversion rate must be positive")

	// ErrInvalidDecimals is returned for reward token decimals outside 0-18.
	ErrInvalidDecimals = errors.New("reward: token decimals must be between 0 and 18")
)

var secondsPerYear = big.NewInt(model.SecondsPerYear)

// CalculateRewardRate computes the per-second reward emission needed to pay
// targetAPR on totalStakedWei, given the 10^18-scaled reward/staked token
// price ratio.
//
// The per-second rate is ceiling-rounded. Underpaying is worse than a small
// overpay: a floor-rounded rate compounded over a year would under-deliver
// the promised APR. The overpay is bounded by one year's worth of remainder,
// strictly less than secondsPerYear reward token base units.
//
// A zero stake yields a zero rate, not an error: the APR of an empty pool is
// undefined and must never surface as a division by zero.
func CalculateRewardRate(targetAPR float64, totalStakedWei, conversionRateScaled *big.Int, rewardTokenDecimals int) (model.RewardRateResult, error) {
	if rewardTokenDecimals < 0 || rewardTokenDecimals > 18 {
		return model.RewardRateResult{}, fmt.Errorf("%w: got %d", ErrInvalidDecimals, rewardTokenDecimals)
	}
	if targetAPR < 0 || math.IsInf(targetAPR, 0) || math.IsNaN(targetAPR) {
		return model.RewardRateResult{}, fmt.Errorf("reward: target APR %v is not a non-negative finite number", targetAPR)
	}
	if conversionRateScaled == nil || conversionRateScaled.Sign() <= 0 {
		return model.RewardRateResult{}, ErrInvalidConversionRate
	}
	if totalStakedWei == nil || totalStakedWei.Sign() < 0 {
		return model.RewardRateResult{}, errors.New("reward: total staked amount must be non-negative")
	}

	if totalStakedWei.Sign() == 0 {
		return zeroResult(), nil
	}

	aprMultiplier := big.NewInt(int64(math.Floor(targetAPR / 100 * aprScale)))

	annualRewardNBCWei := new(big.Int).Mul(totalStakedWei, aprMultiplier)
	annualRewardNBCWei.Div(annualRewardNBCWei, big.NewInt(aprScale))

	annualRewardToken := new(big.Int).Mul(annualRewardNBCWei, fixedpoint.Pow10(rewardTokenDecimals))
	annualRewardToken.Div(annualRewardToken, conversionRateScaled)

	rewardPerSecond := fixedpoint.CeilDiv(annualRewardToken, secondsPerYear)

	return model.RewardRateResult{
		RewardPerSecond:    rewardPerSecond,
		AnnualRewardToken:  annualRewardToken,
		AnnualRewardNBCWei: annualRewardNBCWei,
	}, nil
}

// CalculateAPRFromRewardRate derives the APR implied by an on-chain reward
// rate. Purely diagnostic: the result is reported and compared but never fed
// back into a correction transaction without a fresh CalculateRewardRate.
//
// Zero stake or zero rate return a zero diagnosis without error, by symmetry
// with CalculateRewardRate.
func CalculateAPRFromRewardRate(rewardRate, totalStakedWei *big.Int, conversionRate float64, rewardTokenDecimals int) (model.AprDiagnosis, error) {
	if rewardTokenDecimals < 0 || rewardTokenDecimals > 18 {
		return model.AprDiagnosis{}, fmt.Errorf("%w: got %d", ErrInvalidDecimals, rewardTokenDecimals)
	}
	if rewardRate == nil || totalStakedWei == nil || rewardRate.Sign() == 0 || totalStakedWei.Sign() == 0 {
		return zeroDiagnosis(), nil
	}
	if rewardRate.Sign() < 0 || totalStakedWei.Sign() < 0 {
		return model.AprDiagnosis{}, errors.New("reward: rate and stake must be non-negative")
	}

	conversionRateScaled, err := fixedpoint.Scale(conversionRate)
	if err != nil {
		return model.AprDiagnosis{}, fmt.Errorf("%w: %v", ErrInvalidConversionRate, conversionRate)
	}

	annualRewardToken := new(big.Int).Mul(rewardRate, secondsPerYear)

	annualRewardNBC := new(big.Int).Mul(annualRewardToken, conversionRateScaled)
	annualRewardNBC.Div(annualRewardNBC, fixedpoint.Pow10(rewardTokenDecimals))

	apr := new(big.Float).Quo(
		new(big.Float).SetInt(annualRewardNBC),
		new(big.Float).SetInt(totalStakedWei),
	)
	apr.Mul(apr, big.NewFloat(100))
	aprValue, _ := apr.Float64()

	return model.AprDiagnosis{
		ImpliedAPR:        aprValue,
		AnnualRewardToken: annualRewardToken,
		AnnualRewardNBC:   annualRewardNBC,
	}, nil
}

// ImpliedStakeForAPR answers the reverse question asked during diagnosis: at
// what stake level would the current reward rate deliver exactly targetAPR?
func ImpliedStakeForAPR(rewardRate *big.Int, conversionRate float64, rewardTokenDecimals int, targetAPR float64) (*big.Int, error) {
	if targetAPR <= 0 || math.IsInf(targetAPR, 0) || math.IsNaN(targetAPR) {
		return nil, errors.New("reward: target APR must be positive")
	}
	if rewardRate == nil || rewardRate.Sign() <= 0 {
		return big.NewInt(0), nil
	}

	conversionRateScaled, err := fixedpoint.Scale(conversionRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConversionRate, conversionRate)
	}

	annualRewardNBC := new(big.Int).Mul(rewardRate, secondsPerYear)
	annualRewardNBC.Mul(annualRewardNBC, conversionRateScaled)
	annualRewardNBC.Div(annualRewardNBC, fixedpoint.Pow10(rewardTokenDecimals))

	aprMultiplier := big.NewInt(int64(math.Floor(targetAPR / 100 * aprScale)))
	stake := new(big.Int).Mul(annualRewardNBC, big.NewInt(aprScale))
	stake.Div(stake, aprMultiplier)
	return stake, nil
}

// DeviationPercent returns the relative difference between the actual and the
// freshly computed correct reward rate, in percent. A zero actual rate with a
// nonzero correct rate counts as a full 100% deviation.
func DeviationPercent(actual, correct *big.Int) float64 {
	if correct == nil || correct.Sign() == 0 {
		if actual == nil || actual.Sign() == 0 {
			return 0
		}
		return 100
	}
	if actual == nil || actual.Sign() == 0 {
		return 100
	}

	diff := new(big.Int).Sub(correct, actual)
	diff.Abs(diff)
	pct := new(big.Float).Quo(new(big.Float).SetInt(diff), new(big.Float).SetInt(actual))
	pct.Mul(pct, big.NewFloat(100))
	out, _ := pct.Float64()
	return out
}

func zeroResult() model.RewardRateResult {
	return model.RewardRateResult{
		RewardPerSecond:    big.NewInt(0),
		AnnualRewardToken:  big.NewInt(0),
		AnnualRewardNBCWei: big.NewInt(0),
	}
}

func zeroDiagnosis() model.AprDiagnosis {
	return model.AprDiagnosis{
		ImpliedAPR:        0,
		AnnualRewardToken: big.NewInt(0),
		AnnualRewardNBC:   big.NewInt(0),
	}
}
