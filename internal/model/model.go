// Package model defines the core data structures for the rewardkeeper tools.
package model

import (
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SecondsPerYear is the rewards accrual window the staking contract assumes
// for a correctly configured pool.
const SecondsPerYear = 31536000

// PriceQuote is a single USD price observation for a token symbol.
type PriceQuote struct {
	// Symbol is the token this quote is for, e.g. "BTC"
	Symbol string `json:"symbol"`

	// USDPrice is the observed price in USD
	USDPrice float64 `json:"usd_price"`

	// Source identifies which venue produced the quote
	Source string `json:"source"`

	// FetchedAt is when the quote was retrieved
	FetchedAt time.Time `json:"fetched_at"`
}

// IsValid reports whether the quote is safe to feed into conversion math.
// Zero, negative and non-finite prices are all rejected.
func (q PriceQuote) IsValid() bool {
	return q.Symbol != "" &&
		q.USDPrice > 0 &&
		!math.IsInf(q.USDPrice, 0) &&
		!math.IsNaN(q.USDPrice)
}

// PoolParameters describes the operator-chosen configuration for one pool.
type PoolParameters struct {
	// PoolIndex is the pool's index in the staking contract
	PoolIndex int

	// RewardTokenDecimals is the reward token's decimal precision (0-18)
	RewardTokenDecimals int

	// StakedTokenDecimals is fixed at 18 for the native NBC token
	StakedTokenDecimals int

	// TargetAPR is the nominal yearly reward as a percentage, e.g. 100 = 100%
	TargetAPR float64

	// RewardsDurationSeconds is the contract distribution window, normally one year
	RewardsDurationSeconds int64
}

// PoolState is a snapshot of on-chain pool state. It is external truth: the
// tools never mutate it directly, they only propose corrective transactions.
type PoolState struct {
	PoolIndex         int
	RewardToken       common.Address
	TotalStakedAmount *big.Int // 18-decimal fixed point
	RewardRate        *big.Int // reward token smallest unit per second
	PeriodFinish      *big.Int // unix timestamp
	LastUpdateTime    *big.Int
	RewardsDuration   *big.Int
	Active            bool
}

// DurationYears returns the configured rewards duration expressed in years,
// used to spot pools misconfigured with decade-scale windows.
func (s PoolState) DurationYears() float64 {
	if s.RewardsDuration == nil {
		return 0
	}
	secs, _ := new(big.Float).SetInt(s.RewardsDuration).Float64()
	return secs / (365 * 24 * 60 * 60)
}

// RewardRateResult is the output of the reward-rate calculator.
type RewardRateResult struct {
	// RewardPerSecond is the per-second emission in reward token smallest units,
	// ceiling-rounded so the pool never under-delivers the target APR
	RewardPerSecond *big.Int

	// AnnualRewardToken is the total annual reward in reward token smallest units
	AnnualRewardToken *big.Int

	// AnnualRewardNBCWei is the annual reward valued in NBC wei
	AnnualRewardNBCWei *big.Int
}

// AprDiagnosis is the output of the reverse APR calculator. It is purely
// diagnostic: it is never fed back into a transaction without an explicit
// recomputation from a target APR.
type AprDiagnosis struct {
	// ImpliedAPR is the APR the current on-chain rate actually delivers, in percent
	ImpliedAPR float64

	// AnnualRewardToken is rewardRate * secondsPerYear in reward token smallest units
	AnnualRewardToken *big.Int

	// AnnualRewardNBC is the annual reward valued in NBC wei
	AnnualRewardNBC *big.Int
}
