// Command crank creates campaign send lists and schedules cloned emails
// against the CRM, keeping an audit trail in a local store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/homemade/crank/campaign"
	"github.com/homemade/crank/cloner"
	"github.com/homemade/crank/config"
	"github.com/homemade/crank/crm"
	"github.com/homemade/crank/pace"
	"github.com/homemade/crank/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type app struct {
	configPath string
	verbose    bool

	cfg    config.Config
	log    zerolog.Logger
	client *crm.Client
	store  *store.Store
}

// setup loads configuration and opens the shared collaborators. Call close
// when done.
func (a *app) setup() error {
	level := zerolog.InfoLevel
	if a.verbose {
		level = zerolog.DebugLevel
	}
	a.log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()

	cfg, err := config.LoadFile(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.client = &crm.Client{
		Endpoint: cfg.API.Endpoint,
		APIKey:   cfg.API.Key,
		Log:      a.log,
	}
	a.store, err = store.Open(cfg.Store.Dir)
	if err != nil {
		return err
	}
	return nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Error().Err(err).Msg("close store failed")
		}
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "crank",
		Short:         "Campaign list creation and email clone scheduling",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "crank.yaml", "path to the YAML configuration file")
	root.PersistentFlags().BoolVar(&a.verbose, "verbose", false, "enable debug logging")

	root.AddCommand(newCampaignsCmd(a))
	root.AddCommand(newCloneCmd(a))
	root.AddCommand(newPublishCmd(a))
	root.AddCommand(newDeleteRecordCmd(a))
	return root
}

func newCampaignsCmd(a *app) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "campaigns",
		Short: "Allocate contacts into a new send list for each due campaign",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			defer a.close()

			allocator := campaign.NewAllocator(a.client, a.store, a.log)
			applyPacing(allocator, a.cfg.Pacing)
			runner := campaign.NewRunner(allocator, a.log)
			runner.Delay = a.cfg.Pacing.CampaignDelay

			configs := campaign.FilterConfigs(a.cfg.Campaigns, mode, time.Now().UTC())
			if len(configs) == 0 {
				a.log.Info().Str("mode", mode).Msg("no campaigns due")
				return nil
			}

			outcomes, summary := runner.Run(cmd.Context(), configs)
			for _, o := range outcomes {
				if o.Err != nil {
					a.log.Error().Err(o.Err).Str("campaign", o.Config.Name).Msg("campaign failed")
				}
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%d of %d campaigns failed", summary.Failed, summary.Failed+summary.Succeeded)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "only run campaigns with this mode")
	return cmd
}

func newCloneCmd(a *app) *cobra.Command {
	var (
		sources  []string
		days     int
		strategy string
	)
	cmd := &cobra.Command{
		Use:   "clone",
		Short: "Clone emails across future dates and schedule each clone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			defer a.close()

			if strategy == "" {
				strategy = a.cfg.Clone.Strategy
			}
			parsed, err := cloner.ParseStrategy(strategy)
			if err != nil {
				return err
			}

			scheduler := cloner.NewScheduler(a.client, a.store, a.log)
			stats, err := scheduler.CloneAndSchedule(cmd.Context(), sources, days, cloner.Options{
				Strategy: parsed,
				Custom: cloner.CustomSlots{
					StartHour:       a.cfg.Clone.StartHour,
					StartMinute:     a.cfg.Clone.StartMinute,
					IntervalMinutes: a.cfg.Clone.IntervalMinutes,
				},
				Properties:    a.cfg.Clone.Properties,
				IncludeListID: a.cfg.Clone.IncludeListID,
				ExcludeListID: a.cfg.Clone.ExcludeListID,
			})
			if err != nil {
				return err
			}
			a.log.Info().
				Int("attempted", stats.Attempted).
				Int("cloned", stats.Cloned).
				Int("duplicates", stats.Duplicates).
				Int("errors", stats.Errors).
				Msg("clone run finished")
			if stats.Errors > 0 {
				return fmt.Errorf("%d of %d clones failed", stats.Errors, stats.Attempted)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&sources, "source", nil, "source email id (repeatable)")
	cmd.Flags().IntVar(&days, "days", 1, "how many future days to clone into")
	cmd.Flags().StringVar(&strategy, "strategy", "", "slot strategy: morning, afternoon, smart or custom")
	cmd.MarkFlagRequired("source")
	return cmd
}

func newPublishCmd(a *app) *cobra.Command {
	var recordID string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a scheduled clone and mark its record published",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			defer a.close()
			return cloner.NewScheduler(a.client, a.store, a.log).Publish(cmd.Context(), recordID)
		},
	}
	cmd.Flags().StringVar(&recordID, "record", "", "clone record id")
	cmd.MarkFlagRequired("record")
	return cmd
}

func newDeleteRecordCmd(a *app) *cobra.Command {
	var recordID string
	cmd := &cobra.Command{
		Use:   "delete-record",
		Short: "Delete a clone record and best-effort delete its remote clone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			defer a.close()
			return cloner.NewScheduler(a.client, a.store, a.log).Delete(cmd.Context(), recordID)
		},
	}
	cmd.Flags().StringVar(&recordID, "record", "", "clone record id")
	cmd.MarkFlagRequired("record")
	return cmd
}

// applyPacing pushes the configured timing knobs into the pipeline.
func applyPacing(a *campaign.Allocator, p config.PacingSettings) {
	a.Fetcher.PageSize = p.PageSize
	a.Fetcher.RetryLimit = p.FetchRetries
	a.Fetcher.Pager = pace.NewIntervalPacer(p.PageInterval)
	a.Upload.Pacer = pace.NewIntervalPacer(p.ChunkInterval)
	a.Updater.Pacer = pace.NewIntervalPacer(p.UpdateInterval)
}
