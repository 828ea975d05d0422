package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	allowNonMemberHost bool
	bind               string
	databaseURL        string
	feed               string
	playerTimeout      time.Duration
	port               int
	prefix             string
	profile            bool
	redisURL           string
	requestTimeout     time.Duration
	store              string
	tlsCert            string
	tlsKey             string
	verbose            bool
	version            bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}

	c.store = strings.ToLower(c.store)
	switch c.store {
	case "memory", "sqlite":
	case "postgres":
		if c.databaseURL == "" {
			return errors.New("--database-url is required when --store is postgres")
		}
	default:
		return fmt.Errorf("invalid store (must be one of memory, sqlite, postgres): %q", c.store)
	}

	c.feed = strings.ToLower(c.feed)
	switch c.feed {
	case "memory":
	case "redis":
		if c.redisURL == "" {
			return errors.New("--redis-url is required when --feed is redis")
		}
	default:
		return fmt.Errorf("invalid feed (must be one of memory, redis): %q", c.feed)
	}

	if c.playerTimeout < 0 {
		return fmt.Errorf("invalid player timeout (must not be negative): %s", c.playerTimeout)
	}
	if c.requestTimeout <= 0 {
		return fmt.Errorf("invalid request timeout (must be positive): %s", c.requestTimeout)
	}

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("FOOTYARENA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "footyarena",
		Short:         "Multiplayer football trivia rooms with realtime lobbies.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}

			slog.SetDefault(newLogger(cfg, cmd.ErrOrStderr()))

			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.BoolVar(&cfg.allowNonMemberHost, "allow-non-member-host", false, "allow host transfer to players outside the room (env: FOOTYARENA_ALLOW_NON_MEMBER_HOST)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: FOOTYARENA_BIND)")
	fs.StringVar(&cfg.databaseURL, "database-url", "", "sqlite path or postgres connection string (env: FOOTYARENA_DATABASE_URL)")
	fs.StringVar(&cfg.feed, "feed", "memory", "change feed backend: memory or redis (env: FOOTYARENA_FEED)")
	fs.DurationVar(&cfg.playerTimeout, "player-timeout", 10*time.Minute, "time before disconnected players lose their seat, 0 to disable (env: FOOTYARENA_PLAYER_TIMEOUT)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: FOOTYARENA_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: FOOTYARENA_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: FOOTYARENA_PROFILE)")
	fs.StringVar(&cfg.redisURL, "redis-url", "", "redis connection string for --feed redis (env: FOOTYARENA_REDIS_URL)")
	fs.DurationVar(&cfg.requestTimeout, "request-timeout", 5*time.Second, "time limit for store calls made by a request (env: FOOTYARENA_REQUEST_TIMEOUT)")
	fs.StringVar(&cfg.store, "store", "memory", "room store backend: memory, sqlite or postgres (env: FOOTYARENA_STORE)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: FOOTYARENA_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: FOOTYARENA_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: FOOTYARENA_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: FOOTYARENA_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("footyarena v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
