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
)

// erc20ABIJSON is the slice of the token interface the keeper touches, plus
// the owner-mint extension carried by the test reward tokens.
const erc20ABIJSON = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

// ERC20 wraps a reward token contract.
type ERC20 struct {
	client   *Client
	address  common.Address
	contract *bind.BoundContract
}

// NewERC20 binds a token contract at the given address.
func NewERC20(client *Client, address common.Address) (*ERC20, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("chain: parsing ERC-20 ABI: %w", err)
	}
	return &ERC20{
		client:   client,
		address:  address,
		contract: bind.NewBoundContract(address, parsed, client.eth, client.eth, client.eth),
	}, nil
}

// Address returns the token contract address.
func (t *ERC20) Address() common.Address { return t.address }

// BalanceOf returns the token balance of an account.
func (t *ERC20) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	var out []interface{}
	err := t.contract.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("chain: balanceOf(%s): %w", account.Hex(), err)
	}
	return out[0].(*big.Int), nil
}

// Allowance returns the spend allowance granted by owner to spender.
func (t *ERC20) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	var out []interface{}
	err := t.contract.Call(&bind.CallOpts{Context: ctx}, &out, "allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("chain: allowance(%s, %s): %w", owner.Hex(), spender.Hex(), err)
	}
	return out[0].(*big.Int), nil
}

// Decimals returns the token's decimal precision.
func (t *ERC20) Decimals(ctx context.Context) (uint8, error) {
	var out []interface{}
	err := t.contract.Call(&bind.CallOpts{Context: ctx}, &out, "decimals")
	if err != nil {
		return 0, fmt.Errorf("chain: decimals(): %w", err)
	}
	return out[0].(uint8), nil
}

// Approve grants spender the right to move amount tokens.
func (t *ERC20) Approve(ctx context.Context, spender common.Address, amount *big.Int) (*types.Transaction, error) {
	opts, err := t.client.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := t.contract.Transact(opts, "approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("chain: approve(%s): %w", spender.Hex(), err)
	}
	return tx, nil
}

// Mint creates amount new tokens for the recipient. Only the owner-mintable
// test tokens expose this; calling it on a production token reverts.
func (t *ERC20) Mint(ctx context.Context, to common.Address, amount *big.Int) (*types.Transaction, error) {
	opts, err := t.client.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := t.contract.Transact(opts, "mint", to, amount)
	if err != nil {
		return nil, fmt.Errorf("chain: mint(%s): %w", to.Hex(), err)
	}
	return tx, nil
}
