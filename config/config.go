package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"

	ProviderStripe   = "stripe"
	ProviderMidtrans = "midtrans"
)

type Config struct {
	Env         string `env:"APP_ENV" env-default:"local"`
	Port        string `env:"PORT" env-default:"8080"`
	DBURL       string `env:"DB_URL" env-required:"true"`
	JWTSecret   string `env:"JWT_SECRET" env-required:"true"`
	CORSOrigin  string `env:"CORS_ORIGIN" env-default:"http://localhost:5173"`
	FrontendURL string `env:"FRONTEND_URL" env-default:"http://localhost:5173"`

	// Currency is passed to the payment provider exactly as configured.
	Currency        string `env:"CURRENCY" env-default:"usd"`
	PaymentProvider string `env:"PAYMENT_PROVIDER" env-default:"stripe"`

	Stripe   Stripe   `env-prefix:"STRIPE_"`
	Midtrans Midtrans `env-prefix:"MIDTRANS_"`
	Google   Google   `env-prefix:"GOOGLE_"`

	Timeouts  Timeouts
	Reconcile Reconcile `env-prefix:"RECONCILE_"`
	Kafka     Kafka     `env-prefix:"KAFKA_"`
	Outbox    Outbox    `env-prefix:"OUTBOX_"`

	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_TIMEOUT" env-default:"15s"`
}

type Stripe struct {
	SecretKey     string `env:"SECRET_KEY"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`
}

type Midtrans struct {
	ServerKey  string `env:"SERVER_KEY"`
	Production bool   `env:"PRODUCTION" env-default:"false"`
}

type Google struct {
	ClientID         string `env:"CLIENT_ID"`
	ClientSecret     string `env:"CLIENT_SECRET"`
	RedirectURL      string `env:"REDIRECT_URL"`
	FrontendRedirect string `env:"FRONTEND_REDIRECT"`
}

func (g Google) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != "" && g.RedirectURL != ""
}

type Timeouts struct {
	// Provider bounds a single payment-provider query on the client poll path.
	Provider time.Duration `env:"PROVIDER_TIMEOUT" env-default:"5s"`
	// WebhookAck bounds how long a webhook delivery waits for the commit.
	WebhookAck time.Duration `env:"WEBHOOK_ACK_TIMEOUT" env-default:"800ms"`
	// Commit bounds a commit that outlived the webhook acknowledgement.
	Commit time.Duration `env:"COMMIT_TIMEOUT" env-default:"30s"`
}

type Reconcile struct {
	Schedule     string        `env:"SCHEDULE" env-default:"@every 5m"`
	PendingAfter time.Duration `env:"PENDING_AFTER" env-default:"30m"`
	BatchSize    int           `env:"BATCH_SIZE" env-default:"100"`
}

type Kafka struct {
	Brokers []string `env:"BROKERS" env-separator:","`
	Topic   string   `env:"TOPIC" env-default:"enrollments"`
}

type Outbox struct {
	PollInterval time.Duration `env:"POLL_INTERVAL" env-default:"1s"`
	BatchSize    int           `env:"BATCH_SIZE" env-default:"100"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found. Using system environment variables.")
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	return cfg
}

func (c Config) Validate() error {
	var errs []error

	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local|dev|prod, got %q", c.Env))
	}

	if strings.TrimSpace(c.Currency) == "" {
		errs = append(errs, errors.New("CURRENCY is empty"))
	}

	switch c.PaymentProvider {
	case ProviderStripe:
		if c.Stripe.SecretKey == "" {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY is required for the stripe provider"))
		}
		if c.Stripe.WebhookSecret == "" {
			errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required for the stripe provider"))
		}
	case ProviderMidtrans:
		if c.Midtrans.ServerKey == "" {
			errs = append(errs, errors.New("MIDTRANS_SERVER_KEY is required for the midtrans provider"))
		}
		if !strings.EqualFold(strings.TrimSpace(c.Currency), "idr") {
			errs = append(errs, fmt.Errorf("CURRENCY must be idr for the midtrans provider, got %q", c.Currency))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown PAYMENT_PROVIDER %q", c.PaymentProvider))
	}

	if c.Timeouts.WebhookAck <= 0 || c.Timeouts.Provider <= 0 || c.Timeouts.Commit <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}

	return errors.Join(errs...)
}
