package main

import (
	"fmt"
	"math/big"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var durationCmd = &cobra.Command{
	Use:   "duration",
	Short: "Check pool reward durations and fix ones that are not one year",
	Long: `duration reads each pool's rewardsDuration from the contract. A pool
whose duration is not the configured window (normally exactly one year) gets
flagged; with --execute the duration is corrected via setRewardsDuration.

A wrong duration silently dilutes rewards: the same annual amount spread over
decades pays out a tiny per-second rate. Fix durations before reconciling
rates, otherwise the corrected rate is computed against a broken window.`,
	RunE: runDuration,
}

func init() {
	durationCmd.Flags().BoolVar(&flagExecute, "execute", false, "submit setRewardsDuration transactions")
	rootCmd.AddCommand(durationCmd)
}

func runDuration(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pools, err := selectPools()
	if err != nil {
		return err
	}

	client, staking, err := dialChain(ctx, flagExecute)
	if err != nil {
		return err
	}
	defer client.Close()

	if flagExecute {
		owner, err := staking.Owner(ctx)
		if err != nil {
			return err
		}
		if owner != client.From() {
			return fmt.Errorf("wallet %s is not the contract owner, use the owner account %s", client.From().Hex(), owner.Hex())
		}
	}

	expected := big.NewInt(cfg.RewardsDuration)
	anomalies := 0
	failures := 0

	for _, pool := range pools {
		state, err := staking.PoolDetail(ctx, pool.PoolIndex)
		if err != nil {
			logrus.WithField("pool", pool.Symbol).Errorf("Pool read failed: %v", err)
			failures++
			continue
		}

		fields := logrus.Fields{
			"pool":           pool.Symbol,
			"duration":       state.RewardsDuration.String(),
			"duration_years": fmt.Sprintf("%.2f", state.DurationYears()),
		}

		if state.RewardsDuration.Cmp(expected) == 0 {
			logrus.WithFields(fields).Info("Duration OK")
			continue
		}

		anomalies++
		logrus.WithFields(fields).Warnf("Duration anomaly: expected %d seconds", cfg.RewardsDuration)

		if !flagExecute {
			logrus.WithField("pool", pool.Symbol).Infof("Dry run: would call setRewardsDuration(%d, %d)", pool.PoolIndex, cfg.RewardsDuration)
			continue
		}

		tx, err := staking.SetRewardsDuration(ctx, pool.PoolIndex, expected)
		if err != nil {
			logrus.WithField("pool", pool.Symbol).Errorf("setRewardsDuration failed: %v", err)
			failures++
			continue
		}
		_, gas, err := client.WaitMined(ctx, tx)
		if err != nil {
			logrus.WithField("pool", pool.Symbol).Errorf("Transaction failed: %v", err)
			failures++
			continue
		}
		logrus.WithFields(logrus.Fields{
			"pool":    pool.Symbol,
			"tx":      tx.Hash().Hex(),
			"gas_wei": gas.String(),
		}).Infof("Duration set to %d seconds", cfg.RewardsDuration)
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d pools failed", failures, len(pools))
	}
	if anomalies == 0 {
		logrus.Info("All pool durations are correct")
	}
	return nil
}
