package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nbcex/rewardkeeper/internal/chain"
	"github.com/nbcex/rewardkeeper/internal/config"
	"github.com/nbcex/rewardkeeper/internal/model"
	"github.com/nbcex/rewardkeeper/internal/price"
	"github.com/nbcex/rewardkeeper/internal/reconcile"
)

var (
	cfg config.Config

	flagPool    string
	flagExecute bool
)

var rootCmd = &cobra.Command{
	Use:   "rewardkeeper",
	Short: "Diagnose and correct staking pool reward rates",
	Long: `rewardkeeper reads live prices, recomputes what each staking pool's
reward rate should be for the target APR, compares it against the on-chain
state and, when asked, submits the corrective transactions.

All commands default to dry run. Pass --execute to submit transactions.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
		cfg = config.Load()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		logrus.Error(err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagPool, "pool", "all", "pool symbol to operate on, or 'all'")
}

// setupLogging configures the logging for the application
func setupLogging() {
	logFormat := strings.ToLower(os.Getenv("LOG_FORMAT"))
	logLevel := strings.ToLower(os.Getenv("LOG_LEVEL"))

	switch logFormat {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	switch logLevel {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}

// selectPools resolves the --pool flag against the pool registry.
func selectPools() ([]config.PoolConfig, error) {
	if flagPool == "" || strings.EqualFold(flagPool, "all") {
		return config.DefaultPools, nil
	}
	pool, ok := config.FindPool(flagPool)
	if !ok {
		return nil, fmt.Errorf("unknown pool %q, known pools: %s", flagPool, strings.Join(config.PoolSymbols(), ", "))
	}
	return []config.PoolConfig{pool}, nil
}

// fetchPrices collects the NBC quote plus a quote per selected pool.
func fetchPrices(ctx context.Context, oracle *price.Oracle, pools []config.PoolConfig) (map[string]*model.PriceQuote, float64, error) {
	nbc, err := oracle.NativePrice(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("NBC price unavailable: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"price":  nbc.USDPrice,
		"source": nbc.Source,
	}).Info("NBC price")

	symbols := make([]string, 0, len(pools))
	for _, p := range pools {
		symbols = append(symbols, p.Symbol)
	}
	quotes := oracle.TokenPrices(ctx, symbols)
	return quotes, nbc.USDPrice, nil
}

// dialChain connects the RPC client, failing when execute mode lacks a key.
func dialChain(ctx context.Context, needSigner bool) (*chain.Client, *chain.Staking, error) {
	client, err := chain.Dial(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if needSigner && !client.CanSign() {
		client.Close()
		return nil, nil, fmt.Errorf("PRIVATE_KEY is required with --execute")
	}
	staking, err := chain.NewStaking(client, cfg.StakingContract)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return client, staking, nil
}

// tokenProvider adapts the RPC client to the reconciliation driver.
type tokenProvider struct {
	client *chain.Client
}

func (p tokenProvider) TokenFor(address common.Address) (reconcile.Token, error) {
	return chain.NewERC20(p.client, address)
}

// expectedStake parses the configured total stake override.
func expectedStake() (*big.Int, error) {
	if cfg.TotalStakedNBC == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(cfg.TotalStakedNBC, 10)
	if !ok {
		return nil, fmt.Errorf("invalid TOTAL_STAKED_NBC value %q", cfg.TotalStakedNBC)
	}
	return v, nil
}

// printReport renders one pool's reconciliation outcome.
func printReport(r reconcile.Report) {
	if r.Err != nil {
		logrus.WithField("pool", r.Symbol).Errorf("%v", r.Err)
		return
	}

	fields := logrus.Fields{
		"pool":        r.Symbol,
		"status":      r.Status.String(),
		"implied_apr": fmt.Sprintf("%.2f%%", r.Diagnosis.ImpliedAPR),
		"deviation":   fmt.Sprintf("%.2f%%", r.DeviationPercent),
	}
	if r.State.RewardRate != nil {
		fields["on_chain_rate"] = r.State.RewardRate.String()
	}
	if r.Correct.RewardPerSecond != nil {
		fields["correct_rate"] = r.Correct.RewardPerSecond.String()
	}
	if !r.DurationOK && r.State.RewardsDuration != nil {
		fields["duration_years"] = fmt.Sprintf("%.2f", r.State.DurationYears())
	}
	logrus.WithFields(fields).Info("Pool reconciled")

	for _, a := range r.Actions {
		entry := logrus.WithFields(logrus.Fields{"pool": r.Symbol, "action": a.Kind})
		if a.TxHash != "" {
			entry = entry.WithField("tx", a.TxHash)
			if a.GasCost != nil {
				entry = entry.WithField("gas_wei", a.GasCost.String())
			}
			entry.Info(a.Detail)
		} else {
			entry.Infof("proposed: %s", a.Detail)
		}
	}
}
