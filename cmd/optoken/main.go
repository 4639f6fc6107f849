// Package main provides optoken, a small CLI that mints operator bearer
// tokens for the command endpoint of the tagwatch ingestor.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/tagwatch/tagwatch/internal/auth"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

type options struct {
	subject  string
	role     string
	ttl      time.Duration
	issuer   string
	audience string
	quiet    bool
}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().
		Timestamp().
		Str("version", Version).
		Logger()

	if err := run(os.Args[1:], os.Getenv("OPERATOR_JWT_KEY"), os.Stdout, log); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Error().Err(err).Msg("optoken failed")
		os.Exit(1)
	}
}

func run(args []string, key string, out io.Writer, log zerolog.Logger) error {
	var opts options

	flags := pflag.NewFlagSet("optoken", pflag.ContinueOnError)
	flags.StringVarP(&opts.subject, "subject", "s", "", "operator identity placed in the sub claim (required)")
	flags.StringVar(&opts.role, "role", auth.RoleOperator, "role claim")
	flags.DurationVar(&opts.ttl, "ttl", auth.DefaultTokenTTL, "token lifetime")
	flags.StringVar(&opts.issuer, "issuer", envOr("OPERATOR_JWT_ISSUER", "tagwatch"), "iss claim")
	flags.StringVar(&opts.audience, "audience", envOr("OPERATOR_JWT_AUDIENCE", "tagwatch-ops"), "aud claim")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "print only the token")

	if err := flags.Parse(args); err != nil {
		return err
	}

	if opts.subject == "" {
		return errors.New("--subject is required")
	}
	if key == "" {
		return errors.New("OPERATOR_JWT_KEY is not set")
	}
	if opts.ttl <= 0 {
		return fmt.Errorf("--ttl must be positive, got %s", opts.ttl)
	}

	svc := auth.NewJWTService(auth.JWTConfig{
		SigningKey: key,
		Issuer:     opts.issuer,
		Audience:   opts.audience,
	})

	token, expiresAt, err := svc.GenerateToken(opts.subject, opts.role, opts.ttl)
	if err != nil {
		return fmt.Errorf("minting token: %w", err)
	}

	if !opts.quiet {
		log.Info().
			Str("subject", opts.subject).
			Str("role", opts.role).
			Time("expires_at", expiresAt).
			Str("build_time", BuildTime).
			Msg("operator token minted")
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
