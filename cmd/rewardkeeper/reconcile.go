package main

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/nbcex/rewardkeeper/internal/guard"
	"github.com/nbcex/rewardkeeper/internal/model"
	"github.com/nbcex/rewardkeeper/internal/price"
	"github.com/nbcex/rewardkeeper/internal/reconcile"
)

var (
	reconcileTargetAPR      float64
	reconcileExpectedStaked string
	reconcileUseOnChain     bool
	reconcileUseOneYear     bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Compare on-chain reward rates against computed ones and correct drift",
	Long: `reconcile recomputes each pool's correct reward rate from live prices
and the target APR, compares it with the on-chain rate, and reports pools that
have drifted beyond the change threshold. Duration anomalies are corrected
before the rate itself.

Dry run by default. With --execute the tool must be run with the contract
owner's key; it tops the owner wallet up from contract-held balance (and mints
when the token allows it) before funding the new reward period.`,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().BoolVar(&flagExecute, "execute", false, "submit corrective transactions")
	reconcileCmd.Flags().Float64Var(&reconcileTargetAPR, "target-apr", 0, "target APR in percent (default: TARGET_APR from the environment)")
	reconcileCmd.Flags().StringVar(&reconcileExpectedStaked, "expected-staked", "", "stake basis in NBC wei (default: TOTAL_STAKED_NBC)")
	reconcileCmd.Flags().BoolVar(&reconcileUseOnChain, "use-on-chain-stake", false, "use the live totalStakedAmount instead of the configured stake")
	reconcileCmd.Flags().BoolVar(&reconcileUseOneYear, "use-one-year", false, "force a one-year rewards duration regardless of REWARDS_DURATION")
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pools, err := selectPools()
	if err != nil {
		return err
	}

	targetAPR := cfg.TargetAPR
	if reconcileTargetAPR > 0 {
		targetAPR = reconcileTargetAPR
	}

	var stake *big.Int
	if !reconcileUseOnChain {
		if reconcileExpectedStaked != "" {
			v, ok := new(big.Int).SetString(reconcileExpectedStaked, 10)
			if !ok {
				return fmt.Errorf("invalid --expected-staked value %q", reconcileExpectedStaked)
			}
			stake = v
		} else if stake, err = expectedStake(); err != nil {
			return err
		}
	}

	oracle := price.NewOracle(cfg, pools)
	quotes, nbcUSD, err := fetchPrices(ctx, oracle, pools)
	if err != nil {
		return err
	}

	client, staking, err := dialChain(ctx, flagExecute)
	if err != nil {
		return err
	}
	defer client.Close()

	sanity := guard.New(cfg.MaxSaneAPR).WithTripCallback(func(reason string) {
		logrus.Warnf("Sanity guard tripped: %s", reason)
	})

	duration := cfg.RewardsDuration
	if reconcileUseOneYear {
		duration = model.SecondsPerYear
	}

	driver := reconcile.NewDriver(staking, tokenProvider{client: client}, client, reconcile.Options{
		TargetAPR:       targetAPR,
		ExpectedStaked:  stake,
		RewardsDuration: duration,
		Threshold:       cfg.MinChangeThreshold,
		Execute:         flagExecute,
		Wallet:          client.From(),
		Guard:           sanity,
		Limiter:         rate.NewLimiter(rate.Limit(2), 1),
	})

	reports := driver.ReconcileAll(ctx, pools, quotes, nbcUSD)

	failures := 0
	corrections := 0
	for _, r := range reports {
		printReport(r)
		if r.Err != nil {
			// The wallet cannot become the owner mid-batch, so the
			// remaining pools would fail identically.
			if errors.Is(r.Err, reconcile.ErrNotOwner) {
				return r.Err
			}
			failures++
		}
		if r.Status == reconcile.StatusNeedsCorrection {
			corrections++
		}
	}

	logrus.WithFields(logrus.Fields{
		"pools":       len(reports),
		"corrections": corrections,
		"failures":    failures,
		"executed":    flagExecute,
	}).Info("Reconciliation finished")

	if failures == len(reports) && len(reports) > 0 {
		return fmt.Errorf("reconciliation failed for all %d pools", len(reports))
	}
	return nil
}
