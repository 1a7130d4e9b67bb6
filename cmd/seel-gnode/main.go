package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/seelmesh/seel"
	"github.com/seelmesh/seel/internal/logging"
	"github.com/seelmesh/seel/internal/phy"
	"github.com/seelmesh/seel/internal/sched"
)

func main() {
	app := &cli.App{
		Name:  "seel-gnode",
		Usage: "run a SEEL gateway node",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to a YAML/JSON config file, layered over built-in defaults"},
			&cli.StringFlag{Name: "metrics-addr", Value: ":9100", Usage: "address to serve /metrics on"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "debug-level logging"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := seel.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}

	logConfig := logging.DefaultConfig()
	if c.Bool("verbose") {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	metrics := seel.NewMetrics()
	registry := prometheus.NewRegistry()
	registry.MustRegister(seel.NewPrometheusCollector(metrics))
	obs := seel.NewMetricsObserver(metrics)

	// A real deployment wires a silicon LoRa driver here; this repo
	// ships only the loopback transport (spec section 6 treats the PHY
	// as an external contract). Running standalone, this GNODE has no
	// peers — see cmd/seel-sim for a multi-node demonstration over the
	// same phy.Radio interface.
	net := phy.NewNetwork()
	radio := net.Register(0)
	clock := sched.NewMonotonicClock()

	gn := seel.NewGNODE(cfg, radio, clock, obs, logger)
	gn.Start()

	logger.Info("gnode starting", "metrics_addr", c.String("metrics-addr"))

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(c.String("metrics-addr"), mux); err != nil {
			logger.Error("metrics server stopped", "err", err)
		}
	}()

	stop := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		close(stop)
	}()

	gn.Scheduler().Run(stop)
	logger.Info("gnode stopped")
	return nil
}
