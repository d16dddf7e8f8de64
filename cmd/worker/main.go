// Worker runs background jobs: it purges expired and revoked refresh token
// ledger entries every LEDGER_PURGE_INTERVAL and, when KAFKA_BROKERS and
// LOKI_URL are set, ships auth events from Kafka to Loki.
package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"session-auth/internal/config"
	"session-auth/internal/db"
	"session-auth/internal/logging"
	sessionrepo "session-auth/internal/session/repository"
	"session-auth/internal/telemetry/loki"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("worker: exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(cfg.Level(), cfg.IsProduction(), os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(cfg.Dialect(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer conn.Close()
	ledger := sessionrepo.NewSQLRepository(conn, cfg.Dialect(), nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Dur("interval", cfg.PurgeInterval()).Msg("worker: purging ledger")
		purgeLoop(gctx, ledger, cfg.PurgeInterval(), time.Now)
		return nil
	})

	brokers := cfg.KafkaBrokersList()
	if len(brokers) > 0 && cfg.LokiURL != "" {
		client, err := loki.NewClient(cfg.LokiURL, nil)
		if err != nil {
			return err
		}
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          cfg.AuthEventsTopic,
			GroupID:        cfg.KafkaGroupID,
			MinBytes:       1,
			MaxBytes:       10e6, // 10MB
			MaxWait:        1 * time.Second,
			CommitInterval: time.Second,
		})
		defer reader.Close()
		g.Go(func() error {
			log.Info().Str("topic", cfg.AuthEventsTopic).Str("group", cfg.KafkaGroupID).Str("loki", cfg.LokiURL).Msg("worker: shipping auth events")
			return shipEvents(gctx, reader, client)
		})
	} else {
		log.Info().Msg("worker: KAFKA_BROKERS or LOKI_URL not set; event shipping disabled")
	}

	err = g.Wait()
	log.Info().Msg("worker: stopped")
	return err
}

// purger is the part of the ledger the purge loop needs.
type purger interface {
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// purgeLoop purges once immediately and then every interval until ctx is done.
func purgeLoop(ctx context.Context, p purger, interval time.Duration, now func() time.Time) {
	purge := func() {
		n, err := p.PurgeExpired(ctx, now())
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Msg("worker: ledger purge failed")
			}
			return
		}
		if n > 0 {
			log.Info().Int64("deleted", n).Msg("worker: ledger purged")
		}
	}
	purge()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			purge()
		}
	}
}

// messageReader is the part of *kafka.Reader the shipper needs.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// eventPusher is the part of *loki.Client the shipper needs.
type eventPusher interface {
	PushEventJSON(ctx context.Context, raw []byte) error
}

// shipEvents forwards every message to Loki until ctx is done. Push failures
// are logged and the message is skipped.
func shipEvents(ctx context.Context, r messageReader, p eventPusher) error {
	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return err
			}
			log.Warn().Err(err).Msg("worker: kafka read error")
			continue
		}

		pushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := p.PushEventJSON(pushCtx, msg.Value); err != nil {
			log.Warn().Err(err).Int64("offset", msg.Offset).Msg("worker: loki push failed")
		}
		cancel()
	}
}
