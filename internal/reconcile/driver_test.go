package reconcile

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbcex/rewardkeeper/internal/config"
	"github.com/nbcex/rewardkeeper/internal/fixedpoint"
	"github.com/nbcex/rewardkeeper/internal/model"
	"github.com/nbcex/rewardkeeper/internal/reward"
)

var (
	stakingAddr = common.HexToAddress("0x930BEcf16Ab2b20CcEe9f327f61cCB5B9352c789")
	walletAddr  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokenAddr   = common.HexToAddress("0xb225cAeBd998D4b8a0f569Ab37cF6B936Ae95e55")
	strangerA   = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func fakeTx() *types.Transaction {
	return types.NewTx(&types.LegacyTx{
		Nonce:    0,
		GasPrice: big.NewInt(1),
		Gas:      21000,
		To:       &stakingAddr,
		Value:    big.NewInt(0),
	})
}

type fakeStaking struct {
	owner     common.Address
	state     model.PoolState
	detailErr error

	notified  []*big.Int
	durations []*big.Int
	withdrawn []*big.Int

	// balances mutated by withdraw so the funding flow sees the effect
	token *fakeToken
	pool  int
}

func (f *fakeStaking) Address() common.Address { return stakingAddr }

func (f *fakeStaking) PoolDetail(_ context.Context, idx int) (model.PoolState, error) {
	if f.detailErr != nil {
		return model.PoolState{}, f.detailErr
	}
	st := f.state
	st.PoolIndex = idx
	return st, nil
}

func (f *fakeStaking) Owner(context.Context) (common.Address, error) { return f.owner, nil }

func (f *fakeStaking) NotifyRewardAmount(_ context.Context, _ int, amount *big.Int) (*types.Transaction, error) {
	f.notified = append(f.notified, new(big.Int).Set(amount))
	return fakeTx(), nil
}

func (f *fakeStaking) SetRewardsDuration(_ context.Context, _ int, duration *big.Int) (*types.Transaction, error) {
	f.durations = append(f.durations, new(big.Int).Set(duration))
	return fakeTx(), nil
}

func (f *fakeStaking) EmergencyWithdrawReward(_ context.Context, _ int, amount *big.Int) (*types.Transaction, error) {
	f.withdrawn = append(f.withdrawn, new(big.Int).Set(amount))
	if f.token != nil {
		f.token.balances[stakingAddr] = new(big.Int).Sub(f.token.balances[stakingAddr], amount)
		f.token.balances[walletAddr] = new(big.Int).Add(balanceOrZero(f.token, walletAddr), amount)
	}
	return fakeTx(), nil
}

type fakeToken struct {
	balances   map[common.Address]*big.Int
	allowances map[common.Address]*big.Int

	minted   []*big.Int
	approved []*big.Int
}

func balanceOrZero(t *fakeToken, addr common.Address) *big.Int {
	if b, ok := t.balances[addr]; ok {
		return b
	}
	return big.NewInt(0)
}

func (f *fakeToken) BalanceOf(_ context.Context, account common.Address) (*big.Int, error) {
	return new(big.Int).Set(balanceOrZero(f, account)), nil
}

func (f *fakeToken) Allowance(_ context.Context, owner, _ common.Address) (*big.Int, error) {
	if a, ok := f.allowances[owner]; ok {
		return new(big.Int).Set(a), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeToken) Approve(_ context.Context, _ common.Address, amount *big.Int) (*types.Transaction, error) {
	f.approved = append(f.approved, new(big.Int).Set(amount))
	f.allowances[walletAddr] = new(big.Int).Set(amount)
	return fakeTx(), nil
}

func (f *fakeToken) Mint(_ context.Context, to common.Address, amount *big.Int) (*types.Transaction, error) {
	f.minted = append(f.minted, new(big.Int).Set(amount))
	f.balances[to] = new(big.Int).Add(balanceOrZero(f, to), amount)
	return fakeTx(), nil
}

type fakeTokens struct{ token *fakeToken }

func (f *fakeTokens) TokenFor(common.Address) (Token, error) { return f.token, nil }

type fakeWaiter struct{ mined int }

func (f *fakeWaiter) WaitMined(context.Context, *types.Transaction) (*types.Receipt, *big.Int, error) {
	f.mined++
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, big.NewInt(21000), nil
}

const (
	dogeUSD = 0.1
	nbcUSD  = 0.07
)

var dogePool = config.PoolConfig{
	Symbol:    "DOGE",
	PoolIndex: 7,
	Decimals:  8,
	Mintable:  true,
}

// correctRate recomputes the reward rate the driver will derive for the
// standard test prices and stake, so fakes can be seeded relative to it.
func correctRate(t *testing.T, stake *big.Int) model.RewardRateResult {
	t.Helper()
	scaled, err := fixedpoint.Scale(dogeUSD / nbcUSD)
	require.NoError(t, err)
	res, err := reward.CalculateRewardRate(100, stake, scaled, dogePool.Decimals)
	require.NoError(t, err)
	return res
}

func baseState(rewardRate *big.Int) model.PoolState {
	return model.PoolState{
		RewardToken:       tokenAddr,
		TotalStakedAmount: mustBig("1000000000000000000000000"),
		RewardRate:        rewardRate,
		PeriodFinish:      big.NewInt(0),
		RewardsDuration:   big.NewInt(model.SecondsPerYear),
		Active:            true,
	}
}

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad big.Int literal: " + s)
	}
	return v
}

func scaleRate(correct *big.Int, numerator, denominator int64) *big.Int {
	v := new(big.Int).Mul(correct, big.NewInt(numerator))
	return v.Div(v, big.NewInt(denominator))
}

func newTestDriver(staking *fakeStaking, token *fakeToken, execute bool) *Driver {
	return NewDriver(staking, &fakeTokens{token: token}, &fakeWaiter{}, Options{
		TargetAPR:       100,
		RewardsDuration: model.SecondsPerYear,
		Threshold:       0.05,
		Execute:         execute,
		Wallet:          walletAddr,
	})
}

func TestSmallDeviationNeedsNoAction(t *testing.T) {
	correct := correctRate(t, mustBig("1000000000000000000000000"))

	// 96% of the correct rate is within the 5% change threshold
	staking := &fakeStaking{
		owner: walletAddr,
		state: baseState(scaleRate(correct.RewardPerSecond, 96, 100)),
	}
	d := newTestDriver(staking, nil, true)

	report := d.ReconcilePool(context.Background(), dogePool, dogeUSD, nbcUSD)
	require.NoError(t, report.Err)
	assert.Equal(t, StatusCorrect, report.Status)
	assert.Empty(t, report.Actions)
	assert.Empty(t, staking.notified)
	assert.Less(t, report.DeviationPercent, 5.0)
}

func TestLargerDeviationProposesCorrection(t *testing.T) {
	correct := correctRate(t, mustBig("1000000000000000000000000"))

	staking := &fakeStaking{
		owner: walletAddr,
		state: baseState(scaleRate(correct.RewardPerSecond, 94, 100)),
	}
	d := newTestDriver(staking, nil, false)

	report := d.ReconcilePool(context.Background(), dogePool, dogeUSD, nbcUSD)
	require.NoError(t, report.Err)
	assert.Equal(t, StatusNeedsCorrection, report.Status)
	require.Len(t, report.Actions, 1)
	assert.Equal(t, "notify-reward", report.Actions[0].Kind)

	// dry run: proposed only, nothing submitted
	assert.Empty(t, report.Actions[0].TxHash)
	assert.Empty(t, staking.notified)
	assert.GreaterOrEqual(t, report.DeviationPercent, 5.0)
}

func TestExecuteRequiresOwnerWallet(t *testing.T) {
	correct := correctRate(t, mustBig("1000000000000000000000000"))

	staking := &fakeStaking{
		owner: strangerA,
		state: baseState(scaleRate(correct.RewardPerSecond, 50, 100)),
	}
	d := newTestDriver(staking, &fakeToken{}, true)

	report := d.ReconcilePool(context.Background(), dogePool, dogeUSD, nbcUSD)
	require.Error(t, report.Err)
	assert.ErrorIs(t, report.Err, ErrNotOwner)
	assert.Contains(t, report.Err.Error(), strangerA.Hex())
	assert.Empty(t, staking.notified)
}

func TestExecuteFundsAndNotifies(t *testing.T) {
	correct := correctRate(t, mustBig("1000000000000000000000000"))

	token := &fakeToken{
		balances: map[common.Address]*big.Int{
			walletAddr: new(big.Int).Mul(correct.AnnualRewardToken, big.NewInt(2)),
		},
		allowances: map[common.Address]*big.Int{},
	}
	staking := &fakeStaking{
		owner: walletAddr,
		state: baseState(scaleRate(correct.RewardPerSecond, 50, 100)),
		token: token,
	}
	d := newTestDriver(staking, token, true)

	report := d.ReconcilePool(context.Background(), dogePool, dogeUSD, nbcUSD)
	require.NoError(t, report.Err)
	assert.Equal(t, StatusNeedsCorrection, report.Status)

	require.Len(t, staking.notified, 1)
	assert.Equal(t, 0, staking.notified[0].Cmp(correct.AnnualRewardToken))

	// balance was ample, so no withdraw and no mint, only an approval
	assert.Empty(t, staking.withdrawn)
	assert.Empty(t, token.minted)
	require.Len(t, token.approved, 1)
	assert.Equal(t, 0, token.approved[0].Cmp(correct.AnnualRewardToken))
}

func TestContractBalanceReclaimedBeforeMint(t *testing.T) {
	correct := correctRate(t, mustBig("1000000000000000000000000"))

	// contract holds half the requirement, the owner holds nothing
	contractBal := new(big.Int).Div(correct.AnnualRewardToken, big.NewInt(2))
	token := &fakeToken{
		balances: map[common.Address]*big.Int{
			stakingAddr: new(big.Int).Set(contractBal),
		},
		allowances: map[common.Address]*big.Int{},
	}
	staking := &fakeStaking{
		owner: walletAddr,
		state: baseState(scaleRate(correct.RewardPerSecond, 50, 100)),
		token: token,
	}
	d := newTestDriver(staking, token, true)

	report := d.ReconcilePool(context.Background(), dogePool, dogeUSD, nbcUSD)
	require.NoError(t, report.Err)

	require.Len(t, staking.withdrawn, 1)
	assert.Equal(t, 0, staking.withdrawn[0].Cmp(contractBal))

	expectedMint := new(big.Int).Sub(correct.AnnualRewardToken, contractBal)
	require.Len(t, token.minted, 1)
	assert.Equal(t, 0, token.minted[0].Cmp(expectedMint))

	require.Len(t, staking.notified, 1)

	kinds := make([]string, 0, len(report.Actions))
	for _, a := range report.Actions {
		kinds = append(kinds, a.Kind)
	}
	assert.Contains(t, kinds, "withdraw")
	assert.Contains(t, kinds, "mint")
	assert.Contains(t, kinds, "approve")
}

func TestNonMintableShortfallFails(t *testing.T) {
	correct := correctRate(t, mustBig("1000000000000000000000000"))

	pool := dogePool
	pool.Mintable = false

	token := &fakeToken{
		balances:   map[common.Address]*big.Int{},
		allowances: map[common.Address]*big.Int{},
	}
	staking := &fakeStaking{
		owner: walletAddr,
		state: baseState(scaleRate(correct.RewardPerSecond, 50, 100)),
		token: token,
	}
	d := newTestDriver(staking, token, true)

	report := d.ReconcilePool(context.Background(), pool, dogeUSD, nbcUSD)
	require.Error(t, report.Err)
	assert.ErrorIs(t, report.Err, ErrInsufficientBalance)
	assert.Empty(t, staking.notified)
}

func TestDurationAnomalyFixedBeforeRate(t *testing.T) {
	correct := correctRate(t, mustBig("1000000000000000000000000"))

	// a duration of decades makes the stored rate meaningless
	state := baseState(scaleRate(correct.RewardPerSecond, 50, 100))
	state.RewardsDuration = new(big.Int).Mul(big.NewInt(model.SecondsPerYear), big.NewInt(80))

	token := &fakeToken{
		balances: map[common.Address]*big.Int{
			walletAddr: new(big.Int).Mul(correct.AnnualRewardToken, big.NewInt(2)),
		},
		allowances: map[common.Address]*big.Int{
			walletAddr: new(big.Int).Mul(correct.AnnualRewardToken, big.NewInt(2)),
		},
	}
	staking := &fakeStaking{owner: walletAddr, state: state, token: token}
	d := newTestDriver(staking, token, true)

	report := d.ReconcilePool(context.Background(), dogePool, dogeUSD, nbcUSD)
	require.NoError(t, report.Err)
	assert.False(t, report.DurationOK)

	require.Len(t, staking.durations, 1)
	assert.Equal(t, int64(model.SecondsPerYear), staking.durations[0].Int64())

	require.GreaterOrEqual(t, len(report.Actions), 2)
	assert.Equal(t, "set-duration", report.Actions[0].Kind)
	assert.Equal(t, "notify-reward", report.Actions[1].Kind)
	require.Len(t, staking.notified, 1)
}

func TestReconcileAllIsolatesFailures(t *testing.T) {
	correct := correctRate(t, mustBig("1000000000000000000000000"))

	staking := &fakeStaking{
		owner:     walletAddr,
		detailErr: errors.New("rpc: connection refused"),
		state:     baseState(scaleRate(correct.RewardPerSecond, 96, 100)),
	}
	d := newTestDriver(staking, nil, false)

	pools := []config.PoolConfig{
		dogePool,
		{Symbol: "SUI", PoolIndex: 10, Decimals: 9},
	}
	quotes := map[string]*model.PriceQuote{
		"DOGE": {Symbol: "DOGE", USDPrice: dogeUSD},
		// SUI price missing on purpose
	}

	reports := d.ReconcileAll(context.Background(), pools, quotes, nbcUSD)
	require.Len(t, reports, 2)

	assert.Error(t, reports[0].Err)
	assert.Equal(t, StatusUnchecked, reports[0].Status)

	assert.Error(t, reports[1].Err)
	assert.Contains(t, reports[1].Err.Error(), "no price available")
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "unchecked", StatusUnchecked.String())
	assert.Equal(t, "checked", StatusChecked.String())
	assert.Equal(t, "correct", StatusCorrect.String())
	assert.Equal(t, "needs-correction", StatusNeedsCorrection.String())
}
