// server runs the session-auth gRPC API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"session-auth/internal/audit"
	auditrepo "session-auth/internal/audit/repository"
	"session-auth/internal/config"
	"session-auth/internal/db"
	healthhandler "session-auth/internal/health/handler"
	"session-auth/internal/identity/federation"
	identityhandler "session-auth/internal/identity/handler"
	"session-auth/internal/identity/service"
	"session-auth/internal/logging"
	"session-auth/internal/policy/engine"
	"session-auth/internal/security"
	"session-auth/internal/server"
	"session-auth/internal/server/interceptors"
	sessionrepo "session-auth/internal/session/repository"
	"session-auth/internal/telemetry"
	"session-auth/internal/telemetry/otel"
	"session-auth/internal/telemetry/producer"
	userrepo "session-auth/internal/user/repository"
)

const serviceName = "session-auth"

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server: exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(cfg.Level(), cfg.IsProduction(), os.Stderr)
	if err := cfg.ValidateAuth(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otel.NewProviders(ctx, otel.Options{
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		ServiceName: serviceName,
		Environment: cfg.Env,
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()

	conn, err := db.Open(cfg.Dialect(), cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer conn.Close()

	tokens, err := newTokenCodec(cfg)
	if err != nil {
		return fmt.Errorf("tokens: %w", err)
	}

	policySrc, err := engine.LoadLinkPolicy(cfg.FederationLinkPolicy)
	if err != nil {
		return err
	}
	policy, err := engine.NewOPALinkEvaluator(ctx, policySrc)
	if err != nil {
		return err
	}

	users := userrepo.NewSQLRepository(conn, cfg.Dialect())
	auditLogger := audit.NewLogger(auditrepo.NewSQLRepository(conn, cfg.Dialect()), interceptors.ClientIP)

	emitters := telemetry.MultiEmitter{otel.NewEventEmitter(providers.LoggerProvider)}
	kafkaProducer, err := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.AuthEventsTopic)
	if err != nil {
		return fmt.Errorf("kafka: %w", err)
	}
	if kafkaProducer != nil {
		defer kafkaProducer.Close()
		emitters = append(emitters, kafkaProducer)
		log.Info().Strs("brokers", cfg.KafkaBrokersList()).Str("topic", cfg.AuthEventsTopic).Msg("server: auth events to kafka")
	}

	var verifier federation.Verifier
	if cfg.GoogleClientID != "" {
		verifier, err = federation.NewGoogleVerifier(ctx, federation.GoogleConfig{
			ClientID:    cfg.GoogleClientID,
			Issuer:      cfg.GoogleIssuer,
			JWKSURL:     cfg.GoogleJWKSURL,
			HTTPTimeout: cfg.JWKSTimeout(),
		})
		if err != nil {
			return err
		}
	} else {
		log.Warn().Msg("server: GOOGLE_CLIENT_ID not set; LoginWithGoogle disabled")
	}

	cfgMgr := service.Config{
		Users:            users,
		Ledger:           sessionrepo.NewSQLRepository(conn, cfg.Dialect(), nil),
		Hasher:           security.NewHasher(cfg.BcryptCost, cfg.HashConcurrency),
		Tokens:           tokens,
		Audit:            auditLogger,
		Events:           emitters,
		RevokeAllOnReuse: cfg.RefreshReuseRevokeAll,
	}
	if verifier != nil {
		cfgMgr.Verifier = verifier
		cfgMgr.Linker = federation.NewLinker(users, policy, nil)
	}
	mgr, err := service.NewSessionManager(cfgMgr)
	if err != nil {
		return err
	}

	health := healthhandler.NewServer(conn, policy, identityhandler.AuthServiceName)
	srv := server.NewServer(server.Deps{
		Auth:   mgr,
		Tokens: tokens,
		Audit:  auditLogger,
		Events: emitters,
		Health: health,
	})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.GRPCAddr).Msg("server: gRPC listening")
		return srv.Serve(lis)
	})
	g.Go(func() error {
		health.Run(gctx, healthhandler.DefaultProbeInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("server: shutting down")
		srv.GracefulStop()
		return nil
	})
	err = g.Wait()

	// Let in-flight async emits finish before the exporters go away.
	time.Sleep(telemetry.ShutdownDrainDuration)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := providers.Shutdown(shutdownCtx); shutdownErr != nil {
		err = errors.Join(err, shutdownErr)
	}
	log.Info().Msg("server: stopped")
	return err
}

// newTokenCodec builds the JWT codec from config: an RS256/ES256 key pair when
// JWT_PRIVATE_KEY is set, otherwise HS256 with separate access and refresh secrets.
func newTokenCodec(cfg *config.Config) (*security.TokenCodec, error) {
	var access, refresh security.SigningKey
	if cfg.UsesKeyPair() {
		k, err := security.KeyPairFromPEM(cfg.JWTPrivateKey, cfg.JWTPublicKey)
		if err != nil {
			return nil, err
		}
		access, refresh = k, k
	} else {
		var err error
		if access, err = security.HMACKey(cfg.JWTAccessSecret); err != nil {
			return nil, fmt.Errorf("JWT_ACCESS_SECRET: %w", err)
		}
		if refresh, err = security.HMACKey(cfg.JWTRefreshSecret); err != nil {
			return nil, fmt.Errorf("JWT_REFRESH_SECRET: %w", err)
		}
	}
	return security.NewTokenCodec(security.TokenCodecConfig{
		AccessKey:  access,
		RefreshKey: refresh,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		AccessTTL:  cfg.AccessTTL(),
		RefreshTTL: cfg.RefreshTTL(),
	})
}
