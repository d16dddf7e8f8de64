// seed registers a development user through the session manager for local testing.
// Idempotent: an already registered email is reported and skipped.
package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"session-auth/internal/config"
	"session-auth/internal/db"
	"session-auth/internal/identity/service"
	"session-auth/internal/logging"
	"session-auth/internal/security"
	sessionrepo "session-auth/internal/session/repository"
	userrepo "session-auth/internal/user/repository"
)

const (
	devUserEmail = "dev@example.com"
	devUserName  = "Dev User"
	devPassword  = "password123"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "seed:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("seed", pflag.ContinueOnError)
	email := flags.String("email", devUserEmail, "email of the seeded user")
	name := flags.String("name", devUserName, "display name of the seeded user")
	password := flags.String("password", devPassword, "password of the seeded user")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(cfg.Level(), cfg.IsProduction(), os.Stderr)
	if cfg.IsProduction() {
		return errors.New("refusing to seed when APP_ENV=production")
	}

	conn, err := db.Open(cfg.Dialect(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	created, err := seedUser(context.Background(), conn, cfg.Dialect(), cfg.BcryptCost, *email, *name, *password)
	if err != nil {
		return err
	}
	if created {
		log.Info().Str("email", *email).Msg("seed: dev user registered")
	} else {
		log.Info().Str("email", *email).Msg("seed: dev user already exists; skipped")
	}
	return nil
}

// seedUser registers the user with a throwaway token codec keyed by random
// secrets; the issued tokens are discarded. Reports false when the email is
// already registered.
func seedUser(ctx context.Context, conn *sql.DB, dialect db.Dialect, bcryptCost int, email, name, password string) (bool, error) {
	access, err := randomKey()
	if err != nil {
		return false, err
	}
	refresh, err := randomKey()
	if err != nil {
		return false, err
	}
	tokens, err := security.NewTokenCodec(security.TokenCodecConfig{
		AccessKey:  access,
		RefreshKey: refresh,
		Issuer:     "seed",
		Audience:   "seed",
	})
	if err != nil {
		return false, err
	}
	mgr, err := service.NewSessionManager(service.Config{
		Users:  userrepo.NewSQLRepository(conn, dialect),
		Ledger: sessionrepo.NewSQLRepository(conn, dialect, nil),
		Hasher: security.NewHasher(bcryptCost, 1),
		Tokens: tokens,
	})
	if err != nil {
		return false, err
	}
	pair, err := mgr.Register(ctx, service.RegisterInput{Email: email, Name: name, Password: password, Device: "seed"})
	if errors.Is(err, service.ErrAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	// The seed session is never used; drop it from the ledger.
	_ = mgr.Logout(ctx, pair.RefreshToken)
	return true, nil
}

func randomKey() (security.SigningKey, error) {
	b := make([]byte, security.MinHMACSecretLen)
	if _, err := rand.Read(b); err != nil {
		return security.SigningKey{}, err
	}
	return security.HMACKey(hex.EncodeToString(b))
}
