package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/nbcex/rewardkeeper/internal/config"
	"github.com/nbcex/rewardkeeper/internal/guard"
	"github.com/nbcex/rewardkeeper/internal/price"
	"github.com/nbcex/rewardkeeper/internal/reconcile"
	"github.com/nbcex/rewardkeeper/internal/telemetry"
)

var adjustCmd = &cobra.Command{
	Use:   "adjust",
	Short: "Run the continuous reward rate adjuster daemon",
	Long: `adjust runs the reconciliation loop on an interval: fetch prices,
recompute each pool's correct rate, and correct pools that drifted past the
change threshold. A sanity guard blocks automatic writes when a pool's implied
APR is economically absurd; such pools are reported and left for manual review.

Prometheus metrics are served on METRICS_PORT. Dry run by default; pass
--execute to let the daemon submit transactions.`,
	RunE: runAdjust,
}

func init() {
	adjustCmd.Flags().BoolVar(&flagExecute, "execute", false, "let the daemon submit corrective transactions")
	rootCmd.AddCommand(adjustCmd)
}

// daemonMetrics holds Prometheus metrics for the adjuster loop
type daemonMetrics struct {
	runCounter    *prometheus.CounterVec
	runDuration   prometheus.Histogram
	impliedAPR    *prometheus.GaugeVec
	deviation     *prometheus.GaugeVec
	tokenPrice    *prometheus.GaugeVec
	corrections   *prometheus.CounterVec
	poolFailures  *prometheus.CounterVec
	guardState    prometheus.Gauge
	nbcPrice      prometheus.Gauge
}

func registerMetrics() *daemonMetrics {
	m := &daemonMetrics{
		runCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rewardkeeper_runs_total",
				Help: "Total number of reconciliation runs",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rewardkeeper_run_duration_seconds",
				Help:    "Reconciliation run duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		impliedAPR: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rewardkeeper_implied_apr_percent",
				Help: "Implied APR of the on-chain reward rate, in percent",
			},
			[]string{"pool"},
		),
		deviation: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rewardkeeper_rate_deviation_percent",
				Help: "Relative deviation of the on-chain rate from the computed rate",
			},
			[]string{"pool"},
		),
		tokenPrice: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rewardkeeper_token_price_usd",
				Help: "Last fetched reward token price in USD",
			},
			[]string{"pool"},
		),
		corrections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rewardkeeper_corrections_total",
				Help: "Total number of pools flagged for correction",
			},
			[]string{"pool"},
		),
		poolFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rewardkeeper_pool_failures_total",
				Help: "Total number of per-pool reconciliation failures",
			},
			[]string{"pool"},
		),
		guardState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rewardkeeper_guard_state",
				Help: "Sanity guard state (0=closed, 1=open)",
			},
		),
		nbcPrice: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rewardkeeper_nbc_price_usd",
				Help: "Last fetched NBC price in USD",
			},
		),
	}

	prometheus.MustRegister(
		m.runCounter,
		m.runDuration,
		m.impliedAPR,
		m.deviation,
		m.tokenPrice,
		m.corrections,
		m.poolFailures,
		m.guardState,
		m.nbcPrice,
	)

	return m
}

func runAdjust(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pools, err := selectPools()
	if err != nil {
		return err
	}

	stake, err := expectedStake()
	if err != nil {
		return err
	}

	shutdownTracer := telemetry.InitTracer(cfg.OtelEndpoint)
	defer shutdownTracer()

	client, staking, err := dialChain(ctx, flagExecute)
	if err != nil {
		return err
	}
	defer client.Close()

	metrics := registerMetrics()

	sanity := guard.New(cfg.MaxSaneAPR).WithTripCallback(func(reason string) {
		logrus.Warnf("Sanity guard tripped: %s", reason)
		metrics.guardState.Set(1)
	})

	oracle := price.NewOracle(cfg, pools)
	driver := reconcile.NewDriver(staking, tokenProvider{client: client}, client, reconcile.Options{
		TargetAPR:       cfg.TargetAPR,
		ExpectedStaked:  stake,
		RewardsDuration: cfg.RewardsDuration,
		Threshold:       cfg.MinChangeThreshold,
		Execute:         flagExecute,
		Wallet:          client.From(),
		Guard:           sanity,
		Limiter:         rate.NewLimiter(rate.Limit(2), 1),
	})

	metricsServer := &http.Server{
		Addr:         ":" + cfg.MetricsPort,
		Handler:      promhttp.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		logrus.Infof("Metrics server starting on port %s", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Errorf("Metrics server error: %v", err)
		}
	}()

	logrus.WithFields(logrus.Fields{
		"interval": cfg.UpdateInterval,
		"pools":    len(pools),
		"execute":  flagExecute,
	}).Info("Adjuster started")

	ticker := time.NewTicker(cfg.UpdateInterval)
	defer ticker.Stop()

	// First run immediately, then on the interval.
	runOnce(ctx, driver, oracle, pools, sanity, metrics)

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Adjuster shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logrus.Errorf("Metrics server shutdown failed: %v", err)
			}
			return nil
		case <-ticker.C:
			runOnce(ctx, driver, oracle, pools, sanity, metrics)
		}
	}
}

// runOnce performs a single reconciliation sweep over all pools.
func runOnce(ctx context.Context, driver *reconcile.Driver, oracle *price.Oracle, pools []config.PoolConfig, sanity *guard.Guard, metrics *daemonMetrics) {
	start := time.Now()

	ctx, span := telemetry.Tracer().Start(ctx, "reconcile.sweep")
	defer span.End()

	quotes, nbcUSD, err := fetchPrices(ctx, oracle, pools)
	if err != nil {
		logrus.Errorf("Price fetch failed, skipping this run: %v", err)
		telemetry.RecordError(ctx, err)
		metrics.runCounter.WithLabelValues("error").Inc()
		return
	}
	metrics.nbcPrice.Set(nbcUSD)

	reports := driver.ReconcileAll(ctx, pools, quotes, nbcUSD)

	status := "success"
	for _, r := range reports {
		printReport(r)

		if quote := quotes[r.Symbol]; quote != nil {
			metrics.tokenPrice.WithLabelValues(r.Symbol).Set(quote.USDPrice)
		}
		if r.Err != nil {
			telemetry.RecordError(ctx, r.Err)
			metrics.poolFailures.WithLabelValues(r.Symbol).Inc()
			status = "partial"
			continue
		}

		metrics.impliedAPR.WithLabelValues(r.Symbol).Set(r.Diagnosis.ImpliedAPR)
		metrics.deviation.WithLabelValues(r.Symbol).Set(r.DeviationPercent)
		if r.Status == reconcile.StatusNeedsCorrection {
			metrics.corrections.WithLabelValues(r.Symbol).Inc()
		}
	}

	if sanity.GetState() == guard.StateClosed {
		metrics.guardState.Set(0)
	}
	metrics.runCounter.WithLabelValues(status).Inc()
	metrics.runDuration.Observe(time.Since(start).Seconds())
}
