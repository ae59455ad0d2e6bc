package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/danmuck/fleetctl/internal/clock"
	"github.com/danmuck/fleetctl/internal/lifecycle"
	"github.com/danmuck/fleetctl/internal/logging"
	"github.com/danmuck/fleetctl/internal/observability"
	"github.com/danmuck/fleetctl/internal/registry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// ErrNoCatalog is returned when neither --catalog nor profiles_path is set.
var ErrNoCatalog = errors.New("fleetctl: no profile catalog configured")

type rootOptions struct {
	configPath  string
	catalogPath string
	metricsAddr string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "fleetctl",
		Short:         "Provision containers and reconcile their profiles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to fleetctl.toml")
	root.PersistentFlags().StringVar(&opts.catalogPath, "catalog", "", "profile catalog (.toml, .yaml); overrides profiles_path")
	root.PersistentFlags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	root.AddCommand(newSimulateCommand(opts), newProfilesCommand(opts))
	return root
}

func (o *rootOptions) load() (runtimeConfig, registry.Catalog, error) {
	cfg, err := loadRuntimeConfig(o.configPath)
	if err != nil {
		return runtimeConfig{}, registry.Catalog{}, err
	}
	if o.catalogPath != "" {
		cfg.ProfilesPath = o.catalogPath
	}
	if o.metricsAddr != "" {
		cfg.MetricsAddr = o.metricsAddr
	}
	configureLogging(cfg.LogLevel)
	if cfg.ProfilesPath == "" {
		return runtimeConfig{}, registry.Catalog{}, ErrNoCatalog
	}
	cat, err := registry.LoadCatalog(cfg.ProfilesPath)
	if err != nil {
		return runtimeConfig{}, registry.Catalog{}, err
	}
	return cfg, cat, nil
}

// configureLogging installs the runtime logger; the environment level wins over
// the configured one.
func configureLogging(level string) {
	logging.ConfigureRuntime()
	if _, ok := os.LookupEnv(logging.EnvLogLevel); ok {
		return
	}
	if lvl, ok := logging.ParseLevel(level); ok {
		zerolog.SetGlobalLevel(lvl)
	}
}

func newSimulateCommand(opts *rootOptions) *cobra.Command {
	var virtual bool
	cmd := &cobra.Command{
		Use:   "simulate <plan.toml>",
		Short: "Run a lifecycle plan against the simulated fleet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cat, err := opts.load()
			if err != nil {
				return err
			}
			p, err := loadPlan(args[0])
			if err != nil {
				return err
			}
			var clk clock.Clock = clock.Real()
			if virtual {
				clk = clock.Fake(time.Now())
			}
			return simulate(cmd.Context(), cfg, cat, p, clk, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&virtual, "virtual-time", false, "advance a simulated clock instead of sleeping")
	return cmd
}

func simulate(ctx context.Context, cfg runtimeConfig, cat registry.Catalog, p plan, clk clock.Clock, out io.Writer) error {
	var srv *http.Server
	if cfg.MetricsAddr != "" {
		srv = serveMetrics(cfg.MetricsAddr)
		defer shutdown(srv)
	}

	reg := registry.NewMemory(registry.Config{Clock: clk, Agent: cfg.Agent})
	if err := reg.LoadCatalog(cat); err != nil {
		return err
	}
	lc := cfg.Lifecycle
	lc.Clock = clk
	orch := lifecycle.NewOrchestrator(reg, reg.Store(), lc)
	if err := runPlan(ctx, reg, orch, p, out); err != nil {
		return err
	}
	fmt.Fprintf(out, "fleet    %s\n", strings.Join(reg.Names(), ","))

	if srv != nil {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("plan complete; serving metrics until interrupted")
		<-ctx.Done()
	}
	return nil
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	return srv
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("metrics server shutdown")
	}
}

func newProfilesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List catalog profiles with their configuration fingerprints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, cat, err := opts.load()
			if err != nil {
				return err
			}
			return printProfiles(cat, cmd.OutOrStdout())
		},
	}
}

// printProfiles lists each version's profiles; profiles sharing a fingerprint
// are interchangeable for reconciliation.
func printProfiles(cat registry.Catalog, out io.Writer) error {
	reg := registry.NewMemory(registry.Config{})
	if err := reg.LoadCatalog(cat); err != nil {
		return err
	}
	def, err := reg.DefaultVersion(context.Background())
	if err != nil {
		return err
	}
	for _, v := range cat.Versions {
		marker := ""
		if v.Name == def.Name {
			marker = " (default)"
		}
		fmt.Fprintf(out, "version %s%s\n", v.Name, marker)
		profiles, err := reg.ListProfiles(v.Name)
		if err != nil {
			return err
		}
		for _, p := range profiles {
			fmt.Fprintf(out, "  %-24s %s parents=%s\n", p.Name, p.Fingerprint(), strings.Join(p.Parents, ","))
		}
	}
	return nil
}
