package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/opscart/ng-market-monitor/pkg/api"
	"github.com/opscart/ng-market-monitor/pkg/config"
	"github.com/opscart/ng-market-monitor/pkg/reporter"
)

var (
	// Global config, env first, flags override
	cfg     *config.Config
	verbose bool

	// Report flags
	reportFormat string
	reportOutput string

	// Alerts flags
	alertSeries string
	alertLimit  int
)

func logVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Printf("[DEBUG] "+format+"\n", args...)
	}
}

func main() {
	cfg = config.NewConfig()

	var rootCmd = &cobra.Command{
		Use:   "ng-monitor",
		Short: "Natural gas market monitor",
		Long: `Fetch EIA natural gas storage, LNG export, production and consumption data,
keep it cached and fresh, and serve seasonal percentiles, anomaly alerts,
terminal utilization and growth trends.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if cfg.Verbose {
				verbose = true
			}
		},
	}

	klogFlags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(klogFlags)
	rootCmd.PersistentFlags().AddGoFlagSet(klogFlags)

	rootCmd.PersistentFlags().StringVar(&cfg.StaticConfigPath, "static-config", cfg.StaticConfigPath, "Static lookup tables YAML (default: embedded)")
	rootCmd.PersistentFlags().StringVar(&cfg.StorageBackend, "storage", cfg.StorageBackend, "Alert journal backend: memory, postgres, redis")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose output")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the refresh scheduler and the HTTP API",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "HTTP listen address")
	serveCmd.Flags().DurationVar(&cfg.SchedulerTick, "tick", cfg.SchedulerTick, "How often datasets are checked for refresh")

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Load every dataset once and print a market report",
		RunE:  runReport,
	}
	reportCmd.Flags().StringVarP(&reportFormat, "format", "f", "text", "Report format: text, json, csv, html")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "Output file (default: stdout)")

	fetchCmd := &cobra.Command{
		Use:   "fetch <dataset>",
		Short: "Fetch one dataset and summarize its series",
		Args:  cobra.ExactArgs(1),
		RunE:  runFetch,
	}

	validateCmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Validate environment and static configuration",
		RunE:  runValidate,
	}

	alertsCmd := &cobra.Command{
		Use:   "alerts",
		Short: "List journaled alerts",
		RunE:  runAlerts,
	}
	alertsCmd.Flags().StringVar(&alertSeries, "series", "", "Only alerts for this series")
	alertsCmd.Flags().IntVarP(&alertLimit, "limit", "l", 20, "Maximum alerts to show")

	rootCmd.AddCommand(serveCmd, reportCmd, fetchCmd, validateCmd, alertsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	log := klog.NewKlogr()
	defer klog.Flush()

	a, err := newApp(ctx, cfg, log, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("[INFO] Serving %d datasets on %s (storage: %s)\n", len(a.cache.Names()), cfg.ListenAddr, cfg.StorageBackend)

	if err := a.cache.Start(ctx); err != nil {
		return err
	}
	defer a.cache.Stop()

	opts := api.Options{
		Monitor: a.monitor,
		Logger:  log,
		Metrics: api.NewHTTPMetrics(prometheus.DefaultRegisterer),
	}
	if verbose {
		opts.AccessLog = os.Stdout
	}
	return api.NewServer(opts).ListenAndServe(ctx, cfg.ListenAddr)
}

func runReport(cmd *cobra.Command, args []string) error {
	format, err := reporter.ParseFormat(reportFormat)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	log := klog.NewKlogr()
	defer klog.Flush()

	a, err := newApp(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if failed := a.refreshAll(ctx); failed == len(a.cache.Names()) {
		return errors.New("no dataset could be loaded")
	}

	r := reporter.New(format)
	report := r.Generate(a.monitor, a.clock.Now())

	if reportOutput == "" {
		return r.Write(report, os.Stdout)
	}
	f, err := os.Create(reportOutput)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	if err := r.Write(report, f); err != nil {
		return err
	}
	fmt.Printf("[INFO] Report written to %s\n", reportOutput)
	return nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	log := klog.NewKlogr()
	defer klog.Flush()

	a, err := newApp(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	name := args[0]
	start := time.Now()
	if err := a.cache.RefreshOne(ctx, name); err != nil {
		return err
	}
	lookup, err := a.monitor.GetDataset(name)
	if err != nil {
		return err
	}

	fmt.Printf("[INFO] Fetched %s in %s\n\n", name, time.Since(start).Round(time.Millisecond))
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SERIES\tUNIT\tOBSERVATIONS\tFIRST\tLATEST\tVALUE")
	for _, series := range lookup.Dataset.SeriesNames() {
		ts := lookup.Dataset.Series[series]
		latest, ok := ts.Latest()
		if !ok {
			fmt.Fprintf(tw, "%s\t%s\t0\t-\t-\t-\n", series, ts.Unit)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%.1f\n",
			series, ts.Unit, ts.Len(),
			ts.Observations[0].Timestamp.Format("2006-01-02"),
			latest.Timestamp.Format("2006-01-02"), latest.Value)
	}
	return tw.Flush()
}

func runValidate(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	static, err := config.LoadStatic(cfg.StaticConfigPath)
	if err != nil {
		return err
	}

	source := cfg.StaticConfigPath
	if source == "" {
		source = "embedded defaults"
	}
	fmt.Printf("[INFO] Static config: %s\n", source)
	for _, d := range static.Datasets {
		fmt.Printf("[INFO]   %-12s %-10s every %-6s %d series\n", d.Name, d.Source, d.RefreshInterval(), len(d.Series))
	}
	fmt.Printf("[INFO] Facilities: %d\n", len(static.Facilities))
	fmt.Printf("[INFO] Storage backend: %s\n", cfg.StorageBackend)

	if !cfg.EIAConfigured() {
		fmt.Println("[WARN] EIA_API_KEY not set")
	}
	for _, d := range static.Datasets {
		if d.Source == config.SourcePrometheus && cfg.PrometheusURL == "" {
			fmt.Printf("[WARN] dataset %s needs PROMETHEUS_URL\n", d.Name)
		}
	}
	fmt.Println("[INFO] Configuration OK")
	return nil
}

func runAlerts(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	log := klog.NewKlogr()
	defer klog.Flush()

	a, err := newApp(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	alerts, err := a.monitor.Alerts(ctx, alertSeries, alertLimit)
	if err != nil {
		return fmt.Errorf("failed to list alerts: %w", err)
	}
	if len(alerts) == 0 {
		fmt.Println("[INFO] No alerts journaled")
		if cfg.StorageBackend == config.StorageMemory {
			fmt.Println("[INFO] The memory journal only lives as long as a serve process")
		}
		return nil
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 80))
	fmt.Printf("Alerts (%d)\n", len(alerts))
	fmt.Printf("%s\n\n", strings.Repeat("=", 80))
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tSERIES\tKIND\tVALUE\tMESSAGE")
	for _, al := range alerts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f\t%s\n",
			al.Date.Format("2006-01-02"), al.Series, al.Kind, al.Value, al.Message)
	}
	return tw.Flush()
}
