package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/Sternrassler/people-pager/pkg/logging"
	"github.com/Sternrassler/people-pager/pkg/pagination"
	"github.com/Sternrassler/people-pager/pkg/source"
)

// Source kinds accepted by --source.
const (
	sourceStatic = "static"
	sourceHTTP   = "http"
	sourceRedis  = "redis"
)

// settings is the resolved configuration shared by all commands.
// Precedence is flag, then PAGER_* environment variable, then config file.
type settings struct {
	LogLevel        logging.LogLevel
	Pretty          bool
	Source          string
	MaxRetries      int
	LoadThreshold   int
	PageSize        int
	RedisAddr       string
	RedisKey        string
	BaseURL         string
	UserAgent       string
	SharedRateLimit bool
	BreakerFailures uint32
}

// logger is the command logger, set up before any command runs.
var logger = zerolog.Nop()

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "pager",
		Short:         "Page through a people source like an infinite-scroll list",
		SilenceUsage:  true,
		Example: `  # Scroll through generated people, 5 per page
  pager list --page-size 5 --limit 30

  # Serve a people API that fails every 4th request
  pager serve --records 500 --fail-every 4

  # Page through it, retrying each failure up to 3 times
  pager list --source http --base-url http://localhost:8080

  # Seed a Redis list and page through it
  pager seed --count 200 && pager list --source redis`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if path := v.GetString("config"); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config file: %w", err)
				}
			}

			s, err := loadSettings(v)
			if err != nil {
				return err
			}

			logger = logging.Setup(logging.Config{
				Level:  s.LogLevel,
				Pretty: s.Pretty,
				Output: cmd.ErrOrStderr(),
			}).With().Str("component", "cli").Logger()
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "config file (yaml, json or toml)")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.Bool("pretty", isTerminal(os.Stderr), "human-readable log output")
	flags.String("source", sourceStatic, "page source: static, http or redis")
	flags.Int("max-retries", pagination.DefaultMaxRetries, "retries after a failed page fetch")
	flags.Int("load-threshold", pagination.DefaultLoadThreshold, "rows from the end at which the next page loads")
	flags.Int("page-size", source.DefaultPageSize, "records per page for static and redis sources and served pages")
	flags.String("redis-addr", "localhost:6379", "Redis address")
	flags.String("redis-key", "pager:people", "Redis list holding the records")
	flags.String("base-url", "http://localhost:8080", "people API base URL for the http source")
	flags.String("user-agent", "people-pager/0.1.0", "User-Agent for the http source")
	flags.Bool("shared-rate-limit", false, "share the http source's rate limit state through Redis")
	flags.Uint32("breaker-failures", 0, "consecutive http source failures that open the circuit breaker (0 = off)")

	_ = v.BindPFlags(flags)
	v.SetEnvPrefix("PAGER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd.AddCommand(newListCmd(v), newServeCmd(v), newSeedCmd(v))
	return cmd
}

func loadSettings(v *viper.Viper) (settings, error) {
	level, err := logging.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return settings{}, err
	}

	s := settings{
		LogLevel:        level,
		Pretty:          v.GetBool("pretty"),
		Source:          strings.ToLower(v.GetString("source")),
		MaxRetries:      v.GetInt("max-retries"),
		LoadThreshold:   v.GetInt("load-threshold"),
		PageSize:        v.GetInt("page-size"),
		RedisAddr:       v.GetString("redis-addr"),
		RedisKey:        v.GetString("redis-key"),
		BaseURL:         v.GetString("base-url"),
		UserAgent:       v.GetString("user-agent"),
		SharedRateLimit: v.GetBool("shared-rate-limit"),
		BreakerFailures: v.GetUint32("breaker-failures"),
	}

	switch s.Source {
	case sourceStatic, sourceHTTP, sourceRedis:
	default:
		return settings{}, fmt.Errorf("unknown source %q (want static, http or redis)", s.Source)
	}
	if s.MaxRetries < 0 {
		return settings{}, fmt.Errorf("max-retries must be >= 0, got %d", s.MaxRetries)
	}
	if s.LoadThreshold < 1 {
		return settings{}, fmt.Errorf("load-threshold must be >= 1, got %d", s.LoadThreshold)
	}
	if s.PageSize <= 0 {
		return settings{}, fmt.Errorf("page-size must be > 0, got %d", s.PageSize)
	}
	return s, nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
