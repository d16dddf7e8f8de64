// migrate runs DB migrations from embedded SQL for the configured DATABASE_DRIVER.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"session-auth/internal/config"
	"session-auth/internal/db/migrate"
	"session-auth/internal/logging"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	direction := flags.StringP("direction", "d", "up", "migration direction: up or down")
	dsn := flags.String("database-url", "", "override DATABASE_URL")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(cfg.Level(), cfg.IsProduction(), os.Stderr)
	if *dsn != "" {
		cfg.DatabaseURL = *dsn
	}

	if err := migrate.Run(cfg.Dialect(), cfg.DatabaseURL, *direction); err != nil {
		return err
	}
	log.Info().Str("driver", string(cfg.Dialect())).Str("direction", *direction).Msg("migrate: done")
	return nil
}
