package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pushcal/internal/channel"
	"pushcal/internal/config"
	"pushcal/internal/ics"
	appLog "pushcal/internal/log"
	"pushcal/internal/push"
	"pushcal/internal/scheduler"
	"pushcal/internal/store"
	"pushcal/internal/token"
	"pushcal/internal/web"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := loadConfig(flags)
			if err != nil {
				return err
			}
			// --listen overrides config file listen if provided.
			if listen != "" {
				conf.Listen = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, conf)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

func serve(ctx context.Context, conf *config.Config) error {
	appLog.Info("pushcal starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"store", conf.Store.Path,
		"compact_cron", conf.Store.CompactCron,
		"serializer", conf.Calendar.Serializer,
		"offset_mode", conf.Calendar.OffsetMode,
		"pusher_cluster", conf.Pusher.Cluster,
		"vapid_configured", conf.Push.VAPIDPrivateKey != "",
		"token_secret_configured", conf.Calendar.TokenSecret != "",
	)

	db, err := store.Open(conf.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	feed, err := ics.NewFeedBuilder(ics.FeedOptions{
		OffsetMode: ics.OffsetMode(conf.Calendar.OffsetMode),
		Serializer: conf.Calendar.Serializer,
		ProductID:  conf.Calendar.ProductID,
		Name:       conf.Calendar.Name,
	})
	if err != nil {
		return fmt.Errorf("feed builder: %w", err)
	}

	sender := push.NewWebPushSender(push.WebPushOptions{
		VAPIDPublicKey:  conf.Push.VAPIDPublicKey,
		VAPIDPrivateKey: conf.Push.VAPIDPrivateKey,
		Subscriber:      conf.Push.VAPIDMailTo,
		TTL:             conf.Push.TTL,
		Timeout:         conf.Push.Timeout,
	})

	sched := scheduler.New()
	if err := sched.Add("store-compact", conf.Store.CompactCron, db.Compact); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	srv := web.NewServer(conf, web.Deps{
		Subscriptions: push.NewRelay(store.NewSubscriptionStore(db), sender, conf.Push.Timeout),
		Channels:      channel.New(conf.Pusher),
		Calendar:      store.NewCalendarStore(db),
		Tokens:        token.NewVerifier(conf.Calendar.TokenSecret),
		Feed:          feed,
		Fetcher:       ics.NewFetcher(conf.Calendar.ImportCacheDir, conf.Push.Timeout),
	})

	if err := srv.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	appLog.Info("pushcal exiting")
	return nil
}
