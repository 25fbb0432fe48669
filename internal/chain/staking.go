package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/nbcex/rewardkeeper/internal/model"
)

// stakingABIJSON covers the slice of the staking contract the keeper uses:
// the compact and detailed pool views, ownership, and the three corrective
// mutations.
const stakingABIJSON = `[
	{"type":"function","name":"getPoolInfo","stateMutability":"view","inputs":[{"name":"poolIndex","type":"uint256"}],"outputs":[{"name":"rewardToken","type":"address"},{"name":"totalStakedAmount","type":"uint256"},{"name":"rewardRate","type":"uint256"},{"name":"periodFinish","type":"uint256"},{"name":"active","type":"bool"}]},
	{"type":"function","name":"pools","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[{"name":"rewardToken","type":"address"},{"name":"totalStakedAmount","type":"uint256"},{"name":"rewardRate","type":"uint256"},{"name":"periodFinish","type":"uint256"},{"name":"lastUpdateTime","type":"uint256"},{"name":"rewardsDuration","type":"uint256"},{"name":"active","type":"bool"}]},
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"notifyRewardAmount","stateMutability":"nonpayable","inputs":[{"name":"poolIndex","type":"uint256"},{"name":"reward","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"setRewardsDuration","stateMutability":"nonpayable","inputs":[{"name":"poolIndex","type":"uint256"},{"name":"rewardsDuration","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"emergencyWithdrawReward","stateMutability":"nonpayable","inputs":[{"name":"poolIndex","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]}
]`

// Staking is a thin wrapper over the deployed multi-pool staking contract.
type Staking struct {
	client   *Client
	address  common.Address
	contract *bind.BoundContract
}

// NewStaking binds the staking contract at the given address.
func NewStaking(client *Client, address string) (*Staking, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("chain: %q is not a valid contract address", address)
	}

	parsed, err := abi.JSON(strings.NewReader(stakingABIJSON))
	if err != nil {
		return nil, fmt.Errorf("chain: parsing staking ABI: %w", err)
	}

	addr := common.HexToAddress(address)
	return &Staking{
		client:   client,
		address:  addr,
		contract: bind.NewBoundContract(addr, parsed, client.eth, client.eth, client.eth),
	}, nil
}

// Address returns the bound contract address.
func (s *Staking) Address() common.Address { return s.address }

// PoolInfo reads the compact pool view used by the original adjuster.
func (s *Staking) PoolInfo(ctx context.Context, poolIndex int) (model.PoolState, error) {
	var out []interface{}
	err := s.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getPoolInfo", big.NewInt(int64(poolIndex)))
	if err != nil {
		return model.PoolState{}, fmt.Errorf("chain: getPoolInfo(%d): %w", poolIndex, err)
	}

	return model.PoolState{
		PoolIndex:         poolIndex,
		RewardToken:       out[0].(common.Address),
		TotalStakedAmount: out[1].(*big.Int),
		RewardRate:        out[2].(*big.Int),
		PeriodFinish:      out[3].(*big.Int),
		Active:            out[4].(bool),
	}, nil
}

// PoolDetail reads the full pool storage slot, including rewardsDuration and
// lastUpdateTime, which the compact view omits.
func (s *Staking) PoolDetail(ctx context.Context, poolIndex int) (model.PoolState, error) {
	var out []interface{}
	err := s.contract.Call(&bind.CallOpts{Context: ctx}, &out, "pools", big.NewInt(int64(poolIndex)))
	if err != nil {
		return model.PoolState{}, fmt.Errorf("chain: pools(%d): %w", poolIndex, err)
	}

	return model.PoolState{
		PoolIndex:         poolIndex,
		RewardToken:       out[0].(common.Address),
		TotalStakedAmount: out[1].(*big.Int),
		RewardRate:        out[2].(*big.Int),
		PeriodFinish:      out[3].(*big.Int),
		LastUpdateTime:    out[4].(*big.Int),
		RewardsDuration:   out[5].(*big.Int),
		Active:            out[6].(bool),
	}, nil
}

// Owner returns the contract owner address.
func (s *Staking) Owner(ctx context.Context) (common.Address, error) {
	var out []interface{}
	err := s.contract.Call(&bind.CallOpts{Context: ctx}, &out, "owner")
	if err != nil {
		return common.Address{}, fmt.Errorf("chain: owner(): %w", err)
	}
	return out[0].(common.Address), nil
}

// NotifyRewardAmount funds a pool's next reward period.
func (s *Staking) NotifyRewardAmount(ctx context.Context, poolIndex int, reward *big.Int) (*types.Transaction, error) {
	opts, err := s.client.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := s.contract.Transact(opts, "notifyRewardAmount", big.NewInt(int64(poolIndex)), reward)
	if err != nil {
		return nil, fmt.Errorf("chain: notifyRewardAmount(%d): %w", poolIndex, err)
	}
	return tx, nil
}

// SetRewardsDuration rewrites a pool's distribution window.
func (s *Staking) SetRewardsDuration(ctx context.Context, poolIndex int, duration *big.Int) (*types.Transaction, error) {
	opts, err := s.client.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := s.contract.Transact(opts, "setRewardsDuration", big.NewInt(int64(poolIndex)), duration)
	if err != nil {
		return nil, fmt.Errorf("chain: setRewardsDuration(%d): %w", poolIndex, err)
	}
	return tx, nil
}

// EmergencyWithdrawReward reclaims unused reward tokens from a pool to the
// owner wallet.
func (s *Staking) EmergencyWithdrawReward(ctx context.Context, poolIndex int, amount *big.Int) (*types.Transaction, error) {
	opts, err := s.client.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := s.contract.Transact(opts, "emergencyWithdrawReward", big.NewInt(int64(poolIndex)), amount)
	if err != nil {
		return nil, fmt.Errorf("chain: emergencyWithdrawReward(%d): %w", poolIndex, err)
	}
	return tx, nil
}
