// Package reconcile compares on-chain pool state against freshly computed
// reward parameters and proposes or applies corrective transactions.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/nbcex/rewardkeeper/internal/config"
	"github.com/nbcex/rewardkeeper/internal/fixedpoint"
	"github.com/nbcex/rewardkeeper/internal/guard"
	"github.com/nbcex/rewardkeeper/internal/model"
	"github.com/nbcex/rewardkeeper/internal/reward"
)

var (
	// ErrNotOwner means the signing wallet is not the contract owner. Fatal
	// for write operations; read-only diagnosis is unaffected.
	ErrNotOwner = errors.New("reconcile: wallet is not the contract owner")

	// ErrInsufficientBalance means owner and contract together do not hold
	// enough reward tokens to fund the period, and the token is not mintable.
	ErrInsufficientBalance = errors.New("reconcile: insufficient reward token balance")
)

// Status tracks a pool through the reconciliation state machine.
type Status int

// Pool reconciliation states
const (
	StatusUnchecked Status = iota
	StatusChecked
	StatusCorrect
	StatusNeedsCorrection
)

// String renders the status for reports.
func (s Status) String() string {
	switch s {
	case StatusChecked:
		return "checked"
	case StatusCorrect:
		return "correct"
	case StatusNeedsCorrection:
		return "needs-correction"
	default:
		return "unchecked"
	}
}

// StakingContract is the slice of the staking contract the driver consumes.
// *chain.Staking satisfies it; tests substitute fakes.
type StakingContract interface {
	Address() common.Address
	PoolDetail(ctx context.Context, poolIndex int) (model.PoolState, error)
	Owner(ctx context.Context) (common.Address, error)
	NotifyRewardAmount(ctx context.Context, poolIndex int, reward *big.Int) (*types.Transaction, error)
	SetRewardsDuration(ctx context.Context, poolIndex int, duration *big.Int) (*types.Transaction, error)
	EmergencyWithdrawReward(ctx context.Context, poolIndex int, amount *big.Int) (*types.Transaction, error)
}

// Token is the slice of the ERC-20 interface the driver consumes.
type Token interface {
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, spender common.Address, amount *big.Int) (*types.Transaction, error)
	Mint(ctx context.Context, to common.Address, amount *big.Int) (*types.Transaction, error)
}

// TokenProvider resolves the Token client for a reward token address.
type TokenProvider interface {
	TokenFor(address common.Address) (Token, error)
}

// TxWaiter blocks until a transaction is mined, returning the receipt and the
// gas cost in native wei.
type TxWaiter interface {
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, *big.Int, error)
}

// Options configures a reconciliation run.
type Options struct {
	// TargetAPR in percent
	TargetAPR float64

	// ExpectedStaked overrides the on-chain stake as the calculation basis
	// when set; nil means use the live totalStakedAmount
	ExpectedStaked *big.Int

	// RewardsDuration is the expected distribution window in seconds
	RewardsDuration int64

	// Threshold is the minimum relative reward-rate deviation (0.05 = 5%)
	// below which no correction is proposed
	Threshold float64

	// Execute submits corrective transactions; default is dry run
	Execute bool

	// Wallet is the signing wallet address, required in execute mode
	Wallet common.Address

	// Guard, when set, blocks corrections on absurd implied APR readings
	Guard *guard.Guard

	// Limiter paces consecutive pools in a batch to avoid RPC throttling
	Limiter *rate.Limiter
}

// Action describes one corrective step, proposed in dry-run mode or already
// performed in execute mode.
type Action struct {
	Kind    string
	Detail  string
	TxHash  string
	GasCost *big.Int
}

// Report is the outcome of reconciling a single pool.
type Report struct {
	Symbol           string
	PoolIndex        int
	Status           Status
	State            model.PoolState
	ConversionRate   float64
	Correct          model.RewardRateResult
	Diagnosis        model.AprDiagnosis
	DeviationPercent float64
	DurationOK       bool
	Actions          []Action
	Err              error
}

// Driver walks pools through Unchecked -> Checked -> {Correct | NeedsCorrection}.
type Driver struct {
	staking StakingContract
	tokens  TokenProvider
	waiter  TxWaiter
	opts    Options
}

// NewDriver assembles a reconciliation driver.
func NewDriver(staking StakingContract, tokens TokenProvider, waiter TxWaiter, opts Options) *Driver {
	if opts.Threshold <= 0 {
		opts.Threshold = 0.05
	}
	if opts.RewardsDuration <= 0 {
		opts.RewardsDuration = model.SecondsPerYear
	}
	return &Driver{staking: staking, tokens: tokens, waiter: waiter, opts: opts}
}

// ReconcilePool diagnoses one pool and, in execute mode, applies whatever
// corrections exceed the change threshold. The returned report always carries
// the final status; Err is set when the pool had to be abandoned mid-way.
func (d *Driver) ReconcilePool(ctx context.Context, pool config.PoolConfig, tokenUSD, nbcUSD float64) Report {
	report := Report{Symbol: pool.Symbol, PoolIndex: pool.PoolIndex, Status: StatusUnchecked}

	if nbcUSD <= 0 || tokenUSD <= 0 {
		report.Err = fmt.Errorf("reconcile: invalid prices for %s (token=%v nbc=%v)", pool.Symbol, tokenUSD, nbcUSD)
		return report
	}
	report.ConversionRate = tokenUSD / nbcUSD

	state, err := d.staking.PoolDetail(ctx, pool.PoolIndex)
	if err != nil {
		report.Err = err
		return report
	}
	report.State = state
	report.Status = StatusChecked

	report.DurationOK = state.RewardsDuration != nil &&
		state.RewardsDuration.Cmp(big.NewInt(d.opts.RewardsDuration)) == 0

	stakeBasis := state.TotalStakedAmount
	if d.opts.ExpectedStaked != nil {
		stakeBasis = d.opts.ExpectedStaked
	}

	scaled, err := fixedpoint.Scale(report.ConversionRate)
	if err != nil {
		report.Err = fmt.Errorf("reconcile: %s conversion rate: %w", pool.Symbol, err)
		return report
	}

	report.Correct, err = reward.CalculateRewardRate(d.opts.TargetAPR, stakeBasis, scaled, pool.Decimals)
	if err != nil {
		report.Err = err
		return report
	}

	report.Diagnosis, err = reward.CalculateAPRFromRewardRate(state.RewardRate, state.TotalStakedAmount, report.ConversionRate, pool.Decimals)
	if err != nil {
		report.Err = err
		return report
	}

	report.DeviationPercent = reward.DeviationPercent(state.RewardRate, report.Correct.RewardPerSecond)

	if d.opts.Guard != nil {
		if err := d.opts.Guard.Check(pool.Symbol, report.Diagnosis.ImpliedAPR); err != nil {
			report.Err = err
			return report
		}
	}

	// A broken duration invalidates any rate derived from it, so it outranks
	// the rate deviation check.
	needsDuration := !report.DurationOK
	needsRate := report.DeviationPercent >= d.opts.Threshold*100

	if !needsDuration && !needsRate {
		report.Status = StatusCorrect
		logrus.WithFields(logrus.Fields{
			"pool":      pool.Symbol,
			"deviation": fmt.Sprintf("%.2f%%", report.DeviationPercent),
		}).Info("No action needed")
		return report
	}

	report.Status = StatusNeedsCorrection

	if needsDuration {
		report.Actions = append(report.Actions, Action{
			Kind:   "set-duration",
			Detail: fmt.Sprintf("setRewardsDuration(%d, %d), currently %.2f years", pool.PoolIndex, d.opts.RewardsDuration, state.DurationYears()),
		})
	}
	if needsRate {
		report.Actions = append(report.Actions, Action{
			Kind: "notify-reward",
			Detail: fmt.Sprintf("notifyRewardAmount(%d, %s) for rate %s wei/s (deviation %.2f%%)",
				pool.PoolIndex, report.Correct.AnnualRewardToken, report.Correct.RewardPerSecond, report.DeviationPercent),
		})
	}

	if !d.opts.Execute {
		logrus.WithField("pool", pool.Symbol).Info("Dry run: corrective parameters computed, no transaction sent")
		return report
	}

	if err := d.execute(ctx, pool, &report, needsDuration, needsRate); err != nil {
		report.Err = err
	}
	return report
}

// execute applies the corrections recorded in the report, duration first.
func (d *Driver) execute(ctx context.Context, pool config.PoolConfig, report *Report, needsDuration, needsRate bool) error {
	owner, err := d.staking.Owner(ctx)
	if err != nil {
		return err
	}
	if owner != d.opts.Wallet {
		return fmt.Errorf("%w: use the owner account %s", ErrNotOwner, owner.Hex())
	}

	actionIdx := 0

	if needsDuration {
		tx, err := d.staking.SetRewardsDuration(ctx, pool.PoolIndex, big.NewInt(d.opts.RewardsDuration))
		if err != nil {
			return err
		}
		if err := d.finishAction(ctx, report, &actionIdx, tx); err != nil {
			return err
		}
		logrus.WithField("pool", pool.Symbol).Infof("Rewards duration set to %d seconds", d.opts.RewardsDuration)
	}

	if !needsRate {
		return nil
	}

	needed := report.Correct.AnnualRewardToken
	if err := d.ensureFunding(ctx, pool, report, needed); err != nil {
		return err
	}

	tx, err := d.staking.NotifyRewardAmount(ctx, pool.PoolIndex, needed)
	if err != nil {
		return err
	}
	if err := d.finishAction(ctx, report, &actionIdx, tx); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"pool":   pool.Symbol,
		"reward": needed.String(),
		"rate":   report.Correct.RewardPerSecond.String(),
	}).Info("Reward period funded")
	return nil
}

// ensureFunding guarantees the owner wallet holds and has approved enough
// reward tokens. Contract-held balance is reclaimed before any mint: tokens
// already deposited must be reused, not duplicated.
func (d *Driver) ensureFunding(ctx context.Context, pool config.PoolConfig, report *Report, needed *big.Int) error {
	token, err := d.tokens.TokenFor(report.State.RewardToken)
	if err != nil {
		return err
	}

	contractBal, err := token.BalanceOf(ctx, d.staking.Address())
	if err != nil {
		return err
	}
	ownerBal, err := token.BalanceOf(ctx, d.opts.Wallet)
	if err != nil {
		return err
	}

	total := new(big.Int).Add(contractBal, ownerBal)
	if total.Cmp(needed) < 0 && !pool.Mintable {
		return fmt.Errorf("%w: have %s (owner) + %s (contract), need %s %s",
			ErrInsufficientBalance, ownerBal, contractBal, needed, pool.Symbol)
	}

	if ownerBal.Cmp(needed) < 0 && contractBal.Sign() > 0 {
		shortfall := new(big.Int).Sub(needed, ownerBal)
		withdraw := shortfall
		if shortfall.Cmp(contractBal) > 0 {
			withdraw = contractBal
		}

		tx, err := d.staking.EmergencyWithdrawReward(ctx, pool.PoolIndex, withdraw)
		if err != nil {
			return err
		}
		gas, err := d.waitTx(ctx, tx)
		if err != nil {
			return err
		}
		report.Actions = append(report.Actions, Action{
			Kind:    "withdraw",
			Detail:  fmt.Sprintf("reclaimed %s %s from the contract", withdraw, pool.Symbol),
			TxHash:  tx.Hash().Hex(),
			GasCost: gas,
		})

		ownerBal, err = token.BalanceOf(ctx, d.opts.Wallet)
		if err != nil {
			return err
		}
	}

	if ownerBal.Cmp(needed) < 0 {
		if !pool.Mintable {
			return fmt.Errorf("%w: owner holds %s, needs %s %s", ErrInsufficientBalance, ownerBal, needed, pool.Symbol)
		}

		mintAmount := new(big.Int).Sub(needed, ownerBal)
		tx, err := token.Mint(ctx, d.opts.Wallet, mintAmount)
		if err != nil {
			return err
		}
		gas, err := d.waitTx(ctx, tx)
		if err != nil {
			return err
		}
		report.Actions = append(report.Actions, Action{
			Kind:    "mint",
			Detail:  fmt.Sprintf("minted %s %s to the owner wallet", mintAmount, pool.Symbol),
			TxHash:  tx.Hash().Hex(),
			GasCost: gas,
		})
	}

	allowance, err := token.Allowance(ctx, d.opts.Wallet, d.staking.Address())
	if err != nil {
		return err
	}
	if allowance.Cmp(needed) < 0 {
		tx, err := token.Approve(ctx, d.staking.Address(), needed)
		if err != nil {
			return err
		}
		gas, err := d.waitTx(ctx, tx)
		if err != nil {
			return err
		}
		report.Actions = append(report.Actions, Action{
			Kind:    "approve",
			Detail:  fmt.Sprintf("approved %s %s for the staking contract", needed, pool.Symbol),
			TxHash:  tx.Hash().Hex(),
			GasCost: gas,
		})
	}

	return nil
}

// finishAction waits for a planned action's transaction and records its hash
// and gas cost on the matching proposed action.
func (d *Driver) finishAction(ctx context.Context, report *Report, idx *int, tx *types.Transaction) error {
	gas, err := d.waitTx(ctx, tx)
	if err != nil {
		return err
	}
	for ; *idx < len(report.Actions); *idx++ {
		a := &report.Actions[*idx]
		if a.TxHash == "" && (a.Kind == "set-duration" || a.Kind == "notify-reward") {
			a.TxHash = tx.Hash().Hex()
			a.GasCost = gas
			*idx++
			return nil
		}
	}
	return nil
}

func (d *Driver) waitTx(ctx context.Context, tx *types.Transaction) (*big.Int, error) {
	if d.waiter == nil {
		return nil, nil
	}
	_, gas, err := d.waiter.WaitMined(ctx, tx)
	return gas, err
}

// ReconcileAll processes pools strictly one at a time. Mutating transactions
// are never issued concurrently from the same wallet, so a batch run cannot
// race its own nonces. One pool's failure never aborts its siblings.
func (d *Driver) ReconcileAll(ctx context.Context, pools []config.PoolConfig, quotes map[string]*model.PriceQuote, nbcUSD float64) []Report {
	reports := make([]Report, 0, len(pools))

	for i, pool := range pools {
		if i > 0 && d.opts.Limiter != nil {
			if err := d.opts.Limiter.Wait(ctx); err != nil {
				break
			}
		}

		quote := quotes[pool.Symbol]
		if quote == nil {
			reports = append(reports, Report{
				Symbol:    pool.Symbol,
				PoolIndex: pool.PoolIndex,
				Err:       fmt.Errorf("reconcile: no price available for %s", pool.Symbol),
			})
			continue
		}

		report := d.ReconcilePool(ctx, pool, quote.USDPrice, nbcUSD)
		if report.Err != nil {
			logrus.WithField("pool", pool.Symbol).Errorf("Pool reconciliation failed: %v", report.Err)
		}
		reports = append(reports, report)
	}

	return reports
}
