// Package config, uygulamanın tüm konfigürasyonunu merkezi olarak yönetir.
//
// Kaynak sırası (sonraki öncekini ezer):
//  1. Kod içindeki varsayılanlar (Defaults)
//  2. PANO_CONFIG ile gösterilen YAML dosyası (opsiyonel)
//  3. Environment variable'lar (.env dosyası da desteklenir)
//
// Böylece production'da tek bir YAML dosyası taşınır, tekil değerler
// (ör: JWT_SECRET) yine env ile verilebilir.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config, uygulamanın tüm konfigürasyon değerlerini taşır.
// Her alt bölüm ayrı bir struct; her struct tek bir concern'ü temsil eder.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	JWT       JWTConfig       `yaml:"jwt"`
	Presence  PresenceConfig  `yaml:"presence"`
	Notify    NotifyConfig    `yaml:"notify"`
	Push      PushConfig      `yaml:"push"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
}

// ServerConfig, HTTP server ayarları.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DatabaseConfig, SQLite ve transaction retry ayarları.
type DatabaseConfig struct {
	Path          string        `yaml:"path"`           // SQLite dosya yolu (ör: ./data/pano.db)
	BusyTimeoutMs int           `yaml:"busy_timeout_ms"` // SQLite busy_timeout pragması
	RetryAttempts int           `yaml:"retry_attempts"`  // RunTx çakışmada kaç kez dener
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
}

// JWTConfig, JWT token ayarları.
type JWTConfig struct {
	Secret             string `yaml:"secret"`               // Token imzalama anahtarı; GİZLİ TUTULMALI
	AccessTokenExpiry  int    `yaml:"access_expiry_minutes"` // Dakika
	RefreshTokenExpiry int    `yaml:"refresh_expiry_days"`   // Gün
}

// PresenceConfig, typing state machine ayarları.
type PresenceConfig struct {
	TypingQuietPeriod time.Duration `yaml:"typing_quiet_period"`
}

// NotifyConfig, bildirim fan-out ayarları.
type NotifyConfig struct {
	Workers          int           `yaml:"workers"`
	TitleCacheTTL    time.Duration `yaml:"title_cache_ttl"`
	PlaceholderTitle string        `yaml:"placeholder_title"`
}

// PushConfig, push teslimatı. ResendAPIKey boşsa sadece log sender çalışır.
type PushConfig struct {
	ResendAPIKey string `yaml:"resend_api_key"`
	FromEmail    string `yaml:"from_email"`
	AppName      string `yaml:"app_name"`
}

// RateLimitConfig, kullanıcı başına mesaj ve typing limitleri.
type RateLimitConfig struct {
	MessagesPerSecond float64 `yaml:"messages_per_second"`
	MessageBurst      int     `yaml:"message_burst"`
	TypingPerSecond   float64 `yaml:"typing_per_second"`
	TypingBurst       int     `yaml:"typing_burst"`
}

// ReconcileConfig, periyodik aggregate onarımı. Interval 0 ise kapalı.
type ReconcileConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Defaults, hiçbir dış kaynak yokken kullanılan değerler.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        9090,
			CORSOrigins: []string{"http://localhost:3030"},
		},
		Database: DatabaseConfig{
			Path:          "./data/pano.db",
			BusyTimeoutMs: 5000,
			RetryAttempts: 5,
			RetryBackoff:  25 * time.Millisecond,
		},
		JWT: JWTConfig{
			AccessTokenExpiry:  15,
			RefreshTokenExpiry: 7,
		},
		Presence: PresenceConfig{TypingQuietPeriod: 2 * time.Second},
		Notify: NotifyConfig{
			Workers:          4,
			TitleCacheTTL:    5 * time.Minute,
			PlaceholderTitle: "a post",
		},
		Push: PushConfig{AppName: "pano"},
		RateLimit: RateLimitConfig{
			MessagesPerSecond: 2,
			MessageBurst:      5,
			TypingPerSecond:   5,
			TypingBurst:       10,
		},
	}
}

// Load, varsayılanlar → YAML → env sırasıyla Config oluşturur ve doğrular.
func Load() (*Config, error) {
	// .env dosyası yoksa hata vermez, sessizce devam eder.
	_ = godotenv.Load()

	cfg := Defaults()

	if path := os.Getenv("PANO_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv, tanımlı env variable'ları mevcut değerlerin üzerine yazar.
// Tanımsız olanlar YAML'dan veya varsayılandan gelen değeri korur.
func (c *Config) applyEnv() error {
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	if v := getEnv("CORS_ORIGINS", ""); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
	c.Database.Path = getEnv("DATABASE_PATH", c.Database.Path)
	c.JWT.Secret = getEnv("JWT_SECRET", c.JWT.Secret)
	c.Notify.PlaceholderTitle = getEnv("NOTIFY_PLACEHOLDER_TITLE", c.Notify.PlaceholderTitle)
	c.Push.ResendAPIKey = getEnv("RESEND_API_KEY", c.Push.ResendAPIKey)
	c.Push.FromEmail = getEnv("RESEND_FROM_EMAIL", c.Push.FromEmail)
	c.Push.AppName = getEnv("APP_NAME", c.Push.AppName)

	ints := []struct {
		key string
		dst *int
	}{
		{"SERVER_PORT", &c.Server.Port},
		{"DATABASE_BUSY_TIMEOUT_MS", &c.Database.BusyTimeoutMs},
		{"DATABASE_RETRY_ATTEMPTS", &c.Database.RetryAttempts},
		{"JWT_ACCESS_EXPIRY_MINUTES", &c.JWT.AccessTokenExpiry},
		{"JWT_REFRESH_EXPIRY_DAYS", &c.JWT.RefreshTokenExpiry},
		{"NOTIFY_WORKERS", &c.Notify.Workers},
		{"RATE_LIMIT_MESSAGE_BURST", &c.RateLimit.MessageBurst},
		{"RATE_LIMIT_TYPING_BURST", &c.RateLimit.TypingBurst},
	}
	for _, e := range ints {
		if err := envInt(e.key, e.dst); err != nil {
			return err
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"DATABASE_RETRY_BACKOFF", &c.Database.RetryBackoff},
		{"TYPING_QUIET_PERIOD", &c.Presence.TypingQuietPeriod},
		{"NOTIFY_TITLE_CACHE_TTL", &c.Notify.TitleCacheTTL},
		{"RECONCILE_INTERVAL", &c.Reconcile.Interval},
	}
	for _, e := range durations {
		if err := envDuration(e.key, e.dst); err != nil {
			return err
		}
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"RATE_LIMIT_MESSAGES_PER_SECOND", &c.RateLimit.MessagesPerSecond},
		{"RATE_LIMIT_TYPING_PER_SECOND", &c.RateLimit.TypingPerSecond},
	}
	for _, e := range floats {
		if v, ok := os.LookupEnv(e.key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", e.key, err)
			}
			*e.dst = f
		}
	}

	return nil
}

// Validate, sunucunun güvenle başlayamayacağı değerleri reddeder.
func (c *Config) Validate() error {
	var errs []error

	if len(c.JWT.Secret) < 16 {
		errs = append(errs, fmt.Errorf("JWT_SECRET is required and must be at least 16 characters"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port %d", c.Server.Port))
	}
	if c.Notify.Workers <= 0 {
		errs = append(errs, fmt.Errorf("notify workers must be positive"))
	}
	if c.Database.RetryAttempts <= 0 {
		errs = append(errs, fmt.Errorf("database retry attempts must be positive"))
	}
	if c.Presence.TypingQuietPeriod <= 0 {
		errs = append(errs, fmt.Errorf("typing quiet period must be positive"))
	}
	if c.Push.ResendAPIKey != "" && c.Push.FromEmail == "" {
		errs = append(errs, fmt.Errorf("RESEND_FROM_EMAIL is required when RESEND_API_KEY is set"))
	}
	if c.Reconcile.Interval < 0 {
		errs = append(errs, fmt.Errorf("reconcile interval must not be negative"))
	}

	return errors.Join(errs...)
}

// Addr, HTTP server'ın dinleyeceği adresi döner (ör: "0.0.0.0:9090").
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// getEnv, environment variable'ı okur, yoksa fallback değeri döner.
func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func envInt(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
