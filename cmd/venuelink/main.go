package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/quantfabric/venuelink/internal/auth"
	"github.com/quantfabric/venuelink/internal/bridge"
	"github.com/quantfabric/venuelink/internal/config"
	"github.com/quantfabric/venuelink/internal/metrics"
	"github.com/quantfabric/venuelink/internal/noncestore"
	"github.com/quantfabric/venuelink/internal/venue"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	log.Info().Str("environment", cfg.App.Environment).Msg("Starting venuelink")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.LoadVenueCredentials(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to load venue credentials")
	}

	cred, err := auth.NewCredential(cfg.Venue.APIKey, cfg.Venue.SecretKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid venue credential")
	}

	issuer := auth.NewIssuer()

	// Optional durable checkpoint: seed the issuer above anything a
	// previous run may have sent to the venue.
	var store *noncestore.Store
	if cfg.NonceStore.Enabled {
		store = noncestore.New(
			cfg.NonceStore.Addr,
			cfg.NonceStore.Password,
			cfg.NonceStore.DB,
			cfg.NonceStore.KeyPrefix,
			config.NewLogger("noncestore"),
		)
		defer store.Close()

		if err := store.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("Nonce store unreachable")
		}
		floor, err := store.Load(ctx, cred.KeyID())
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load nonce checkpoint")
		}
		if floor > 0 {
			issuer.Floor(cred.KeyID(), floor)
			log.Info().Int64("floor", floor).Msg("Nonce issuer seeded from checkpoint")
		}
	}

	subs, err := config.LoadSubscriptions(cfg.Connection.SubscriptionsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load subscriptions")
	}

	dialer := venue.NewWebsocketDialer(cfg.Connection.HandshakeTimeout)
	supervisor, err := venue.New(venue.Config{
		Endpoint:   cfg.Venue.Endpoint,
		Credential: cred,
		Backoff: venue.BackoffConfig{
			BaseDelay:  cfg.Connection.BaseDelay,
			MaxBackoff: cfg.Connection.MaxBackoff,
		},
		HeartbeatTimeout: cfg.Connection.HeartbeatTimeout,
		AuthTimeout:      cfg.Connection.AuthTimeout,
		EventBuffer:      cfg.Connection.EventBuffer,
		OutboundBuffer:   cfg.Connection.OutboundBuffer,
		WriteRate:        rate.Limit(cfg.Connection.WriteRatePerSec),
		WriteBurst:       cfg.Connection.WriteBurst,
	}, dialer, issuer, config.NewLogger("venue"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to construct supervisor")
	}

	for _, sub := range subs {
		supervisor.Subscribe(venue.NewSubscribeRequest(sub.Channel, sub.Symbol))
	}

	var metricsServer *metrics.Server
	if cfg.Monitoring.EnableMetrics {
		metricsServer = metrics.NewServer(cfg.Monitoring.MetricsAddr, config.NewLogger("metrics"))
		metricsServer.Start()
	}

	supervisor.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)

	// Fan events out: to NATS when the bridge is enabled, to the log
	// otherwise so the event stream always has a consumer.
	if cfg.NATS.Enabled {
		b, err := bridge.New(cfg.NATS.URL, cfg.NATS.SubjectPrefix, config.NewLogger("bridge"))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect event bridge")
		}
		defer b.Close()

		g.Go(func() error {
			return b.Run(gctx, supervisor.Events())
		})
	} else {
		g.Go(func() error {
			return logEvents(gctx, supervisor.Events())
		})
	}

	if store != nil {
		g.Go(func() error {
			return checkpointLoop(gctx, store, issuer, cred.KeyID(), cfg.NonceStore.CheckpointInterval)
		})
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := supervisor.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Supervisor shutdown failed")
	}
	if store != nil {
		if err := store.Save(shutdownCtx, cred.KeyID(), issuer.Last(cred.KeyID())); err != nil {
			log.Error().Err(err).Msg("Final nonce checkpoint failed")
		}
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Metrics server shutdown failed")
		}
	}

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("Worker exited with error")
	}

	log.Info().Msg("Shutdown complete")
	os.Exit(0)
}

// logEvents is the fallback event consumer when no bridge is wired.
func logEvents(ctx context.Context, events <-chan venue.Event) error {
	logger := config.NewLogger("events")
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Type {
			case venue.EventMessage:
				logger.Debug().
					Str("session_id", ev.SessionID.String()).
					Int("bytes", len(ev.Payload)).
					Msg("Venue message")
			case venue.EventCredentialFailure:
				logger.Error().
					Str("reason", ev.Reason).
					Msg("Venue rejected credentials repeatedly")
			default:
				logger.Info().
					Str("type", string(ev.Type)).
					Str("session_id", ev.SessionID.String()).
					Str("reason", ev.Reason).
					Msg("Connection event")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// checkpointLoop periodically persists the last issued nonce so the
// next process run can seed above it.
func checkpointLoop(ctx context.Context, store *noncestore.Store, issuer *auth.Issuer, keyID string, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := config.NewLogger("checkpoint")
	for {
		select {
		case <-ticker.C:
			if last := issuer.Last(keyID); last > 0 {
				if err := store.Save(ctx, keyID, last); err != nil {
					logger.Warn().Err(err).Msg("Nonce checkpoint failed")
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
