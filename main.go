package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jellybot/api"
	"jellybot/bot"
	"jellybot/commands"
	"jellybot/commands/defs"
	"jellybot/config"
	"jellybot/execode"
	"jellybot/handlers"
	"jellybot/utils"
	"jellybot/utils/database/stores"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "jellybot",
	Short: "Multi-platform chat bot with auto replies and a management API",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		logger, err := utils.InitLogger(cfg.Log.Level, cfg.Log.Dev)
		if err != nil {
			return err
		}
		zap.ReplaceGlobals(logger)
		cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = zap.L().Sync()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot adapters, the HTTP API and the maintenance scheduler",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := stores.Open(cmd.Context(), configFrom(cmd))
		if err != nil {
			return err
		}
		defer s.Close()
		zap.L().Info("Database schema is up to date", zap.String("path", configFrom(cmd).Database.Path))
		return nil
	},
}

var apiUserCmd = &cobra.Command{
	Use:   "apiuser [email]",
	Short: "Create an API user, or rotate its token, and print the token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := configFrom(cmd)
		if cfg.Secret == "" {
			return config.ErrMissingSecret
		}
		s, err := stores.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer s.Close()
		u, token, err := s.Identity.EnsureAPIUser(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "user %s\ntoken %s\n", u.ID, token)
		return nil
	},
}

type configKey struct{}

func configFrom(cmd *cobra.Command) *config.Config {
	return cmd.Context().Value(configKey{}).(*config.Config)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to config.yaml")
	rootCmd.AddCommand(serveCmd, migrateCmd, apiUserCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := configFrom(cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := stores.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	reporter := utils.NewReporter(cfg.Report.WebhookURL)

	queue := execode.New(s.Execodes, execode.Config{Length: cfg.Execode.Length, Expiry: cfg.Execode.Expiry})
	queue.Register(execode.DefaultActions(execode.Deps{
		Channels: s.Channels, Profiles: s.Profiles, Identity: s.Identity, AutoReply: s.AutoReply,
	}))
	root := defs.Build(defs.Deps{
		Identity:  s.Identity,
		Channels:  s.Channels,
		Profiles:  s.Profiles,
		AutoReply: s.AutoReply,
		Remote:    s.Remote,
		Execode:   queue,
		StartedAt: time.Now(),
	})
	dispatcher := commands.NewDispatcher(root, s.Stats)
	noToken := utils.NewNotifyLock(cfg.Pipeline.NoTokenNotify)
	pipeline := handlers.New(handlers.Deps{
		Channels:    s.Channels,
		Identity:    s.Identity,
		Remote:      s.Remote,
		AutoReply:   s.AutoReply,
		Stats:       s.Stats,
		Reporter:    reporter,
		Commands:    dispatcher,
		Partitioner: handlers.NewPartitioner(handlers.LimitsFromConfig(cfg.Limits), s.Extra),
		NoToken:     noToken,
	})

	pool := bot.NewWorkerPool(cfg.Pipeline.Workers)
	pool.Start(ctx)
	defer pool.Stop()
	b := bot.New(bot.Deps{
		Pipeline: pipeline,
		Channels: s.Channels,
		Identity: s.Identity,
		Profiles: s.Profiles,
		Reporter: reporter,
	}, pool)

	server := api.NewServer(api.Deps{
		Identity:  s.Identity,
		Channels:  s.Channels,
		Profiles:  s.Profiles,
		AutoReply: s.AutoReply,
		Execode:   queue,
		Extra:     s.Extra,
		Validator: s.Validator,
		Stats:     s.Stats,
	})

	cleaners := map[string]bot.Cleaner{
		"no_token_notify":   noToken,
		"command_cooldowns": dispatcher,
	}
	g, gctx := errgroup.WithContext(ctx)

	if cfg.LineEnabled() {
		line := bot.NewLine(cfg.Line.Secret, cfg.Line.Token, b)
		line.RegisterRoutes(server.Engine())
		cleaners["line_webhook_dedup"] = line
	}
	if cfg.DiscordEnabled() {
		discord, err := bot.NewDiscord(cfg.Discord.Token, b, root)
		if err != nil {
			return err
		}
		g.Go(func() error { return discord.Run(gctx) })
	}

	scheduler := bot.NewScheduler(s.Sweepers(), cleaners)
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error { return server.Run(gctx, cfg.HTTP.Addr) })

	zap.L().Info("JellyBot started",
		zap.Bool("discord", cfg.DiscordEnabled()), zap.Bool("line", cfg.LineEnabled()), zap.String("addr", cfg.HTTP.Addr))
	reporter.ReportInfo(ctx, "main", "serve", "JellyBot started")
	if err := g.Wait(); err != nil {
		reporter.ReportError(context.Background(), "main", "serve", err.Error())
		return err
	}
	zap.L().Info("JellyBot stopped")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
