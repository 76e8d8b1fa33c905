// Package host parses host command flags and starts the extension host.
package host

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/louisbranch/plughost/internal/platform/cmd"
	"github.com/louisbranch/plughost/internal/platform/config"
	server "github.com/louisbranch/plughost/internal/services/host/app"
)

// Config holds host command configuration.
type Config struct {
	HTTPAddr            string        `env:"PLUGHOST_HTTP_ADDR"             envDefault:":8090"`
	BaseAPI             string        `env:"PLUGHOST_BASE_API"              envDefault:"http://localhost:8666/rest"`
	AppURL              string        `env:"PLUGHOST_APP_URL"               envDefault:"http://localhost:8666/app"`
	CookieSuffix        string        `env:"PLUGHOST_COOKIE_SUFFIX"`
	ThemeModule         string        `env:"PLUGHOST_THEME_MODULE"`
	ThemeName           string        `env:"PLUGHOST_THEME_NAME"`
	LedgerPath          string        `env:"PLUGHOST_LEDGER_PATH"`
	Preloaded           string        `env:"PLUGHOST_PRELOADED_MODULES"     envDefault:"opensilex,opensilex-front"`
	HTTPTimeout         time.Duration `env:"PLUGHOST_HTTP_TIMEOUT"          envDefault:"30s"`
	TrustForwardedProto bool          `env:"PLUGHOST_TRUST_FORWARDED_PROTO"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "host HTTP listen address")
	fs.StringVar(&cfg.BaseAPI, "base-api", cfg.BaseAPI, "backend REST base URL")
	fs.StringVar(&cfg.AppURL, "app-url", cfg.AppURL, "application URL owning the session cookie")
	fs.StringVar(&cfg.CookieSuffix, "cookie-suffix", cfg.CookieSuffix, "session cookie name suffix")
	fs.StringVar(&cfg.ThemeModule, "theme-module", cfg.ThemeModule, "module providing the theme")
	fs.StringVar(&cfg.ThemeName, "theme-name", cfg.ThemeName, "theme name")
	fs.StringVar(&cfg.LedgerPath, "ledger-path", cfg.LedgerPath, "SQLite path of the module load ledger")
	fs.StringVar(&cfg.Preloaded, "preloaded", cfg.Preloaded, "comma-separated modules bundled with the host")
	fs.DurationVar(&cfg.HTTPTimeout, "http-timeout", cfg.HTTPTimeout, "backend request timeout")
	fs.BoolVar(&cfg.TrustForwardedProto, "trust-forwarded-proto", cfg.TrustForwardedProto, "honor X-Forwarded-Proto for secure cookies")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the host and serves its HTTP API.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceHost, func(context.Context) error {
		if err := server.Run(ctx, server.Config{
			BaseAPI:             cfg.BaseAPI,
			AppURL:              cfg.AppURL,
			CookieSuffix:        cfg.CookieSuffix,
			ThemeModule:         cfg.ThemeModule,
			ThemeName:           cfg.ThemeName,
			LedgerPath:          cfg.LedgerPath,
			Preloaded:           config.SplitList(cfg.Preloaded),
			HTTPTimeout:         cfg.HTTPTimeout,
			TrustForwardedProto: cfg.TrustForwardedProto,
		}, server.ServerConfig{HTTPAddr: cfg.HTTPAddr}); err != nil {
			return fmt.Errorf("serve host: %w", err)
		}
		return nil
	})
}
