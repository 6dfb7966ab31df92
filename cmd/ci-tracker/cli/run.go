package cli

import (
	"os/signal"
	"syscall"

	"github.com/davarch/ci-tracker/internal/api"
	"github.com/davarch/ci-tracker/internal/application"
	"github.com/davarch/ci-tracker/internal/domain"
	"github.com/davarch/ci-tracker/internal/infrastructure/cache_fs"
	"github.com/davarch/ci-tracker/internal/infrastructure/config"
	"github.com/davarch/ci-tracker/internal/infrastructure/notify_libnotify"
	"github.com/davarch/ci-tracker/internal/tui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runTUI    bool
	runListen string
)

var runCmd = &cobra.Command{
	Use:   "run [url...]",
	Short: "Track jobs and pipelines, auto-discover new jobs and serve the control API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, cfgErr, err := loadConfig()
		if err != nil {
			return err
		}

		log, err := newLogger(cfg, !runTUI)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		if cfgErr != nil {
			log.Warn("config unreadable, running with defaults", zap.Error(cfgErr))
		}
		if cfg.GitLab.Token == "" {
			log.Warn("no GitLab token configured; run `ci-tracker token set <token>`")
		}

		gl := newGateway(cfg)

		note := notify_libnotify.New(log)
		if cfg.Notify.Disabled {
			note = notify_libnotify.Disabled(log)
		}

		clock := domain.SystemClock{}
		reg := application.NewRegistry(log, gl, note, clock, application.Timings{
			RefreshInterval: cfg.Tracking.RefreshInterval,
			DeleteAfter:     cfg.Tracking.DeleteAfter,
		})
		defer reg.Teardown()

		sched := application.NewScheduler(log, gl, reg, note, clock, config.NewStore(cfgPath), cfg.AutoTrack.PauseFile)
		defer sched.Close()

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		pub := application.NewPublisher(log, reg, cache_fs.New(cfg.Cache.Path), clock)
		go pub.Run(ctx)

		if err := config.Watch(ctx, cfgPath, log, func(c config.Config) {
			gl.SetToken(c.GitLab.Token)
			sched.Configure(c.AutoTrackConfig())
		}); err != nil {
			log.Warn("config watch disabled", zap.String("path", cfgPath), zap.Error(err))
		}

		sched.Configure(cfg.AutoTrackConfig())

		for _, u := range append(append([]string(nil), cfg.Tracking.Items...), args...) {
			if _, _, err := reg.Track(ctx, u); err != nil {
				log.Warn("track failed", zap.String("url", u), zap.Error(err))
			}
		}

		listen := cfg.API.Listen
		if runListen != "" {
			listen = runListen
		}
		if listen != "" && listen != "off" {
			srv := api.NewServer(log, reg, sched)
			go func() {
				if err := srv.ListenAndServe(ctx, listen); err != nil {
					log.Warn("api server stopped", zap.String("addr", listen), zap.Error(err))
				}
			}()
		}

		log.Info("start",
			zap.String("version", version),
			zap.Int("items", reg.Len()),
			zap.Bool("auto_track", cfg.AutoTrack.Enabled),
			zap.Int("repos", len(cfg.AutoTrack.Repos)),
			zap.String("cache", cfg.Cache.Path),
			zap.String("listen", listen),
			zap.String("pause_file", cfg.AutoTrack.PauseFile),
		)

		if runTUI {
			changes, unsubscribe := reg.Subscribe()
			defer unsubscribe()
			return tui.Run(ctx, reg, changes)
		}

		<-ctx.Done()
		log.Info("shutting down")
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "show the interactive terminal UI")
	runCmd.Flags().StringVar(&runListen, "listen", "", "control API address (\"off\" disables it)")
	rootCmd.AddCommand(runCmd)
}
