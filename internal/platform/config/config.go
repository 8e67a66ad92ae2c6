package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ErrAccessTokenRequired is returned when the Mercado Pago bearer credential is missing.
var ErrAccessTokenRequired = errors.New("mercadopago access token is required")

type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Log         LogConfig         `koanf:"log"`
	App         AppConfig         `koanf:"app"`
	CORS        CORSConfig        `koanf:"cors"`
	MercadoPago MercadoPagoConfig `koanf:"mercadopago"`
}

type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type AppConfig struct {
	// BaseURL is the public frontend URL used to build default back_url values.
	BaseURL  string `koanf:"base_url"`
	Currency string `koanf:"currency"`
}

type CORSConfig struct {
	// AllowedOrigins is a comma-separated list, as in ALLOWED_ORIGINS. A YAML
	// list is joined into the same form by Load.
	AllowedOrigins string `koanf:"allowed_origins"`
}

type MercadoPagoConfig struct {
	BaseURL       string `koanf:"base_url"`
	AccessToken   string `koanf:"accesstoken"`
	WebhookSecret string `koanf:"webhooksecret"`
	TimeoutSecs   int    `koanf:"timeout_secs"`
}

// Origins splits the configured allowed origins, dropping blanks.
func (c CORSConfig) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Timeout returns the per-call timeout for remote API requests.
func (c MercadoPagoConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// Validate reports configuration that makes the process unable to serve.
// A missing webhook secret is not an error: verification then always fails closed.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.MercadoPago.AccessToken) == "" {
		return ErrAccessTokenRequired
	}
	return nil
}

func Load(configPaths ...string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	_ = k.Load(confmap.Provider(map[string]any{
		"server.port":              8000,
		"server.host":              "0.0.0.0",
		"log.level":                "info",
		"log.format":               "json",
		"app.currency":             "ARS",
		"mercadopago.base_url":     "https://api.mercadopago.com",
		"mercadopago.timeout_secs": 30,
	}, "."), nil)

	// YAML file (optional)
	for _, path := range configPaths {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// Config file is optional, skip if not found
			continue
		}
	}

	// Environment variables override everything
	// SUBGATE_SERVER_PORT -> server.port
	// SUBGATE_APP_BASE_URL -> app.base_url
	_ = k.Load(env.Provider("SUBGATE_", ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, "SUBGATE_"))
		section, rest, found := strings.Cut(key, "_")
		if !found {
			return key
		}
		return section + "." + rest
	}), nil)

	if err := joinList(k, "cors.allowed_origins"); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// joinList rewrites a list value at key as a comma-separated string so both
// YAML forms decode into the same field.
func joinList(k *koanf.Koanf, key string) error {
	list, ok := k.Get(key).([]any)
	if !ok {
		return nil
	}
	items := make([]string, 0, len(list))
	for _, v := range list {
		items = append(items, fmt.Sprint(v))
	}
	return k.Set(key, strings.Join(items, ","))
}
