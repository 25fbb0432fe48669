package main

import (
	"fmt"
	"math/big"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nbcex/rewardkeeper/internal/chain"
)

var withdrawAmount string

var withdrawCmd = &cobra.Command{
	Use:   "withdraw",
	Short: "Reclaim reward tokens held by the staking contract",
	Long: `withdraw calls emergencyWithdrawReward to move reward tokens from the
contract back to the owner wallet. Without --amount the pool's full contract
balance is reclaimed. Owner only.`,
	RunE: runWithdraw,
}

func init() {
	withdrawCmd.Flags().BoolVar(&flagExecute, "execute", false, "submit the withdrawal transaction")
	withdrawCmd.Flags().StringVar(&withdrawAmount, "amount", "", "amount in the token's smallest unit (default: full contract balance)")
	rootCmd.AddCommand(withdrawCmd)
}

func runWithdraw(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pools, err := selectPools()
	if err != nil {
		return err
	}
	if len(pools) != 1 {
		return fmt.Errorf("withdraw operates on a single pool, pass --pool SYMBOL")
	}
	pool := pools[0]

	client, staking, err := dialChain(ctx, flagExecute)
	if err != nil {
		return err
	}
	defer client.Close()

	state, err := staking.PoolDetail(ctx, pool.PoolIndex)
	if err != nil {
		return err
	}

	token, err := chain.NewERC20(client, state.RewardToken)
	if err != nil {
		return err
	}
	contractBal, err := token.BalanceOf(ctx, staking.Address())
	if err != nil {
		return err
	}

	amount := contractBal
	if withdrawAmount != "" {
		v, ok := new(big.Int).SetString(withdrawAmount, 10)
		if !ok {
			return fmt.Errorf("invalid --amount value %q", withdrawAmount)
		}
		if v.Cmp(contractBal) > 0 {
			return fmt.Errorf("requested %s exceeds contract balance %s", v, contractBal)
		}
		amount = v
	}

	if amount.Sign() == 0 {
		logrus.WithField("pool", pool.Symbol).Info("Contract holds no reward tokens, nothing to withdraw")
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"pool":             pool.Symbol,
		"contract_balance": contractBal.String(),
		"amount":           amount.String(),
	}).Info("Withdrawal prepared")

	if !flagExecute {
		logrus.Infof("Dry run: would call emergencyWithdrawReward(%d, %s)", pool.PoolIndex, amount)
		return nil
	}

	owner, err := staking.Owner(ctx)
	if err != nil {
		return err
	}
	if owner != client.From() {
		return fmt.Errorf("wallet %s is not the contract owner, use the owner account %s", client.From().Hex(), owner.Hex())
	}

	tx, err := staking.EmergencyWithdrawReward(ctx, pool.PoolIndex, amount)
	if err != nil {
		return err
	}
	_, gas, err := client.WaitMined(ctx, tx)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"pool":    pool.Symbol,
		"tx":      tx.Hash().Hex(),
		"gas_wei": gas.String(),
	}).Infof("Withdrew %s %s from the contract", amount, pool.Symbol)
	return nil
}
