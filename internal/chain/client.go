// Package chain wraps the go-ethereum bindings for the staking contract and
// its reward tokens on the NBC chain.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/nbcex/rewardkeeper/internal/config"
)

// Client bundles an RPC connection with the optional signing identity used
// for corrective transactions. A client without a key is read-only.
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int
	key     *ecdsa.PrivateKey
	from    common.Address
}

// Dial connects to the configured RPC endpoint. When cfg.PrivateKey is set
// the client can also sign corrective transactions.
func Dial(ctx context.Context, cfg config.Config) (*Client, error) {
	if strings.TrimSpace(cfg.RPCURL) == "" {
		return nil, fmt.Errorf("chain: RPC_URL is required")
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dialing %s: %w", cfg.RPCURL, err)
	}

	c := &Client{
		eth:     eth,
		chainID: big.NewInt(cfg.ChainID),
	}

	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("chain: parsing private key: %w", err)
		}
		c.key = key
		c.from = crypto.PubkeyToAddress(key.PublicKey)
		logrus.WithField("wallet", c.from.Hex()).Debug("Signing wallet loaded")
	}

	return c, nil
}

// CanSign reports whether this client carries a signing key.
func (c *Client) CanSign() bool { return c.key != nil }

// From returns the signing wallet address, or the zero address when read-only.
func (c *Client) From() common.Address { return c.from }

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	if c.eth != nil {
		c.eth.Close()
	}
}

// transactOpts builds signed transaction options for the configured chain.
func (c *Client) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if c.key == nil {
		return nil, fmt.Errorf("chain: PRIVATE_KEY not set, cannot sign transactions")
	}
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("chain: building transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// WaitMined blocks until the transaction is mined and returns the gas cost in
// native wei alongside the receipt.
func (c *Client) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, *big.Int, error) {
	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return nil, nil, fmt.Errorf("chain: waiting for tx %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, nil, fmt.Errorf("chain: tx %s reverted", tx.Hash().Hex())
	}

	gasPrice := receipt.EffectiveGasPrice
	if gasPrice == nil {
		gasPrice = tx.GasPrice()
	}
	cost := new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), gasPrice)
	return receipt, cost, nil
}
