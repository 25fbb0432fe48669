package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nbcex/rewardkeeper/internal/fixedpoint"
	"github.com/nbcex/rewardkeeper/internal/price"
	"github.com/nbcex/rewardkeeper/internal/reward"
)

var ratesTargetAPR float64

var ratesCmd = &cobra.Command{
	Use:   "rates",
	Short: "Compute correct reward rates from live prices without touching the chain",
	Long: `rates fetches live prices and prints, for each pool, the per-second
reward rate and annual reward amount that would deliver the target APR on the
configured stake. Purely computational, no RPC connection needed.`,
	RunE: runRates,
}

func init() {
	ratesCmd.Flags().Float64Var(&ratesTargetAPR, "target-apr", 0, "target APR in percent (default: TARGET_APR from the environment)")
	rootCmd.AddCommand(ratesCmd)
}

func runRates(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pools, err := selectPools()
	if err != nil {
		return err
	}

	targetAPR := cfg.TargetAPR
	if ratesTargetAPR > 0 {
		targetAPR = ratesTargetAPR
	}

	stake, err := expectedStake()
	if err != nil {
		return err
	}
	if stake == nil {
		return fmt.Errorf("TOTAL_STAKED_NBC must be set for rate computation")
	}

	oracle := price.NewOracle(cfg, pools)
	quotes, nbcUSD, err := fetchPrices(ctx, oracle, pools)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"target_apr":   fmt.Sprintf("%.2f%%", targetAPR),
		"total_staked": stake.String(),
	}).Info("Computing reward rates")

	failures := 0
	for _, pool := range pools {
		quote := quotes[pool.Symbol]
		if quote == nil {
			logrus.WithField("pool", pool.Symbol).Warn("No price available, skipping")
			failures++
			continue
		}

		conversionRate := quote.USDPrice / nbcUSD
		scaled, err := fixedpoint.Scale(conversionRate)
		if err != nil {
			logrus.WithField("pool", pool.Symbol).Errorf("Bad conversion rate: %v", err)
			failures++
			continue
		}

		result, err := reward.CalculateRewardRate(targetAPR, stake, scaled, pool.Decimals)
		if err != nil {
			logrus.WithField("pool", pool.Symbol).Errorf("Rate computation failed: %v", err)
			failures++
			continue
		}

		logrus.WithFields(logrus.Fields{
			"pool":              pool.Symbol,
			"price_usd":         quote.USDPrice,
			"price_source":      quote.Source,
			"conversion_rate":   fmt.Sprintf("%.6f", conversionRate),
			"reward_per_second": result.RewardPerSecond.String(),
			"annual_reward":     result.AnnualRewardToken.String(),
			"annual_reward_nbc": result.AnnualRewardNBCWei.String(),
		}).Info("Computed rate")
	}

	if failures == len(pools) {
		return fmt.Errorf("rate computation failed for all %d pools", len(pools))
	}
	return nil
}
