package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nbcex/rewardkeeper/internal/price"
	"github.com/nbcex/rewardkeeper/internal/reward"
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Read on-chain pool state and report the implied APR of each pool",
	Long: `diagnose reads each pool's reward rate, stake and duration from the
contract, converts the rate back into an annual reward and implied APR using
live prices, and flags pools whose configuration looks wrong. Read-only.`,
	RunE: runDiagnose,
}

func init() {
	rootCmd.AddCommand(diagnoseCmd)
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pools, err := selectPools()
	if err != nil {
		return err
	}

	oracle := price.NewOracle(cfg, pools)
	quotes, nbcUSD, err := fetchPrices(ctx, oracle, pools)
	if err != nil {
		return err
	}

	client, staking, err := dialChain(ctx, false)
	if err != nil {
		return err
	}
	defer client.Close()

	failures := 0
	for _, pool := range pools {
		quote := quotes[pool.Symbol]
		if quote == nil {
			logrus.WithField("pool", pool.Symbol).Warn("No price available, skipping")
			failures++
			continue
		}

		state, err := staking.PoolDetail(ctx, pool.PoolIndex)
		if err != nil {
			logrus.WithField("pool", pool.Symbol).Errorf("Pool read failed: %v", err)
			failures++
			continue
		}

		conversionRate := quote.USDPrice / nbcUSD
		diag, err := reward.CalculateAPRFromRewardRate(state.RewardRate, state.TotalStakedAmount, conversionRate, pool.Decimals)
		if err != nil {
			logrus.WithField("pool", pool.Symbol).Errorf("Diagnosis failed: %v", err)
			failures++
			continue
		}

		fields := logrus.Fields{
			"pool":           pool.Symbol,
			"active":         state.Active,
			"reward_rate":    state.RewardRate.String(),
			"total_staked":   state.TotalStakedAmount.String(),
			"annual_reward":  diag.AnnualRewardToken.String(),
			"implied_apr":    fmt.Sprintf("%.4f%%", diag.ImpliedAPR),
			"duration_years": fmt.Sprintf("%.2f", state.DurationYears()),
			"price_source":   quote.Source,
		}

		switch {
		case diag.ImpliedAPR > cfg.MaxSaneAPR && cfg.MaxSaneAPR > 0:
			logrus.WithFields(fields).Warn("Implied APR is economically absurd, pool parameters need attention")
		case !state.Active:
			logrus.WithFields(fields).Warn("Pool is inactive")
		default:
			logrus.WithFields(fields).Info("Pool diagnosed")
		}

		// What stake would make the current rate produce the target APR.
		// A huge figure here usually means the rate was set against the
		// wrong stake basis.
		implied, err := reward.ImpliedStakeForAPR(state.RewardRate, conversionRate, pool.Decimals, cfg.TargetAPR)
		if err == nil && implied.Sign() > 0 {
			logrus.WithFields(logrus.Fields{
				"pool":          pool.Symbol,
				"implied_stake": implied.String(),
			}).Debugf("Stake that would justify the current rate at %.0f%% APR", cfg.TargetAPR)
		}
	}

	if failures == len(pools) {
		return fmt.Errorf("diagnosis failed for all %d pools", len(pools))
	}
	return nil
}
