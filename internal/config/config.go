package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/servorahq/servora/internal/types"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Server     ServerConfig     `validate:"required"`
	Postgres   PostgresConfig   `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	Auth       AuthConfig       `validate:"required"`
	Kubernetes KubernetesConfig `validate:"required"`
	Billing    BillingConfig    `validate:"required"`
	Payment    PaymentConfig
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type ServerConfig struct {
	Address string `validate:"required"`
}

type PostgresConfig struct {
	Host                   string `validate:"required"`
	Port                   int    `validate:"required"`
	User                   string `validate:"required"`
	Password               string
	DBName                 string `validate:"required"`
	SSLMode                string
	MaxOpenConns           int
	MaxIdleConns           int
	ConnMaxLifetimeMinutes int
	AutoMigrate            bool
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

type AuthConfig struct {
	// Secret signs and verifies bearer tokens.
	Secret string `validate:"required"`
	// TokenExpiryHours bounds issued token lifetime.
	TokenExpiryHours int
}

type KubernetesConfig struct {
	// KubeconfigPath is used when running outside the cluster; empty means
	// in-cluster config.
	KubeconfigPath string
	SkipTLSVerify  bool
	// Zone is the public DNS zone instance subdomains are created under.
	Zone string `validate:"required"`
	// ClusterIssuer is the cert-manager issuer referenced by TLS ingresses.
	ClusterIssuer string
	// CreateTimeout bounds readiness waits during initial provisioning.
	CreateTimeout time.Duration
	// UpdateTimeout bounds readiness waits during plan changes.
	UpdateTimeout time.Duration
}

type BillingConfig struct {
	// GracePeriodDays is granted after a failed renewal, clamped into
	// [GracePeriodMinDays, GracePeriodMaxDays].
	GracePeriodDays    int
	GracePeriodMinDays int
	GracePeriodMaxDays int
	// ExpiryWindowDays is how long a SUSPENDED subscription is kept before it
	// is expired and its instance terminated.
	ExpiryWindowDays int
	// SchedulerPeriod is the billing driver tick interval.
	SchedulerPeriod time.Duration
	// LowCreditLeadDays is how far ahead of the renewal date low-credit
	// warnings are emitted.
	LowCreditLeadDays int
}

type PaymentConfig struct {
	// MidtransServerKey verifies webhook signatures and authenticates status
	// re-checks.
	MidtransServerKey string
	MidtransBaseURL   string
}

func NewConfig() (*Configuration, error) {
	// Local development reads a .env file when present.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/servora")

	v.SetEnvPrefix("SERVORA")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", string(types.ModeLocal))
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", string(types.LogLevelInfo))
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "servora")
	v.SetDefault("postgres.dbname", "servora")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.maxopenconns", 20)
	v.SetDefault("postgres.maxidleconns", 5)
	v.SetDefault("postgres.connmaxlifetimeminutes", 30)
	v.SetDefault("auth.tokenexpiryhours", 24)
	v.SetDefault("kubernetes.zone", "apps.servora.id")
	v.SetDefault("kubernetes.createtimeout", 5*time.Minute)
	v.SetDefault("kubernetes.updatetimeout", 3*time.Minute)
	v.SetDefault("billing.graceperioddays", 7)
	v.SetDefault("billing.graceperiodmindays", 1)
	v.SetDefault("billing.graceperiodmaxdays", 30)
	v.SetDefault("billing.expirywindowdays", 3)
	v.SetDefault("billing.schedulerperiod", time.Hour)
	v.SetDefault("billing.lowcreditleaddays", 7)
	v.SetDefault("payment.midtransbaseurl", "https://api.midtrans.com")
}

func (c Configuration) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}

	b := c.Billing
	if b.GracePeriodMinDays < 1 || b.GracePeriodMaxDays > 30 || b.GracePeriodMinDays > b.GracePeriodMaxDays {
		return fmt.Errorf("invalid grace period bounds [%d, %d]", b.GracePeriodMinDays, b.GracePeriodMaxDays)
	}
	if b.GracePeriodDays < b.GracePeriodMinDays || b.GracePeriodDays > b.GracePeriodMaxDays {
		return fmt.Errorf("grace period days %d outside [%d, %d]", b.GracePeriodDays, b.GracePeriodMinDays, b.GracePeriodMaxDays)
	}
	if b.ExpiryWindowDays < 1 || b.ExpiryWindowDays > 30 {
		return fmt.Errorf("expiry window days %d outside [1, 30]", b.ExpiryWindowDays)
	}
	return nil
}

// GraceDuration is the grace window applied on a failed renewal.
func (b BillingConfig) GraceDuration() time.Duration {
	return time.Duration(b.GracePeriodDays) * 24 * time.Hour
}

// ExpiryWindow is the suspended-to-expired window.
func (b BillingConfig) ExpiryWindow() time.Duration {
	return time.Duration(b.ExpiryWindowDays) * 24 * time.Hour
}

// GetDefaultConfig returns a default configuration for local development and
// unit tests.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Server:     ServerConfig{Address: ":8080"},
		Logging:    LoggingConfig{Level: types.LogLevelInfo},
		Postgres: PostgresConfig{
			Host: "localhost", Port: 5432, User: "servora", DBName: "servora", SSLMode: "disable",
		},
		Auth: AuthConfig{Secret: "dev-secret", TokenExpiryHours: 24},
		Kubernetes: KubernetesConfig{
			Zone:          "apps.servora.test",
			CreateTimeout: 5 * time.Minute,
			UpdateTimeout: 3 * time.Minute,
		},
		Billing: BillingConfig{
			GracePeriodDays:    7,
			GracePeriodMinDays: 1,
			GracePeriodMaxDays: 30,
			ExpiryWindowDays:   3,
			SchedulerPeriod:    time.Hour,
			LowCreditLeadDays:  7,
		},
	}
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}
