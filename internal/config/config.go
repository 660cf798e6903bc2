package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"logLevel"`
	Server      struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`
	NATS struct {
		URL         string   `mapstructure:"url"`
		Stream      string   `mapstructure:"stream"`      // JetStream stream name for bot events
		SubjectList []string `mapstructure:"subjectList"` // Subjects bound to the stream
		MaxAge      int64    `mapstructure:"maxAge"`      // Max age of messages in days
	} `mapstructure:"nats"`
	Database struct {
		PostgresDSN         string `mapstructure:"postgresDSN"`
		PostgresAutoMigrate bool   `mapstructure:"postgresAutoMigrate"`
	} `mapstructure:"database"`
	Platform struct {
		APIBaseURL string        `mapstructure:"apiBaseURL"` // Base URL of the messaging platform bot API
		Timeout    time.Duration `mapstructure:"timeout"`
	} `mapstructure:"platform"`
	Webhook WebhookClientConfig `mapstructure:"webhook"`
	Conversation struct {
		StateTTL    time.Duration `mapstructure:"stateTTL"`    // How long a stored user state stays valid
		DedupWindow time.Duration `mapstructure:"dedupWindow"` // Rolling suppression window for lead/appointment rows
	} `mapstructure:"conversation"`
	Classifier ClassifierConfig    `mapstructure:"classifier"`
	Broadcast  BroadcastPoolConfig `mapstructure:"broadcast"`
	Notifier   NotifierConfig      `mapstructure:"notifier"`
	Metrics    struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"metrics"`
}

// WebhookClientConfig holds settings for the outbound webhook delivery client
type WebhookClientConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`      // Per-attempt request timeout
	MaxRetries   int           `mapstructure:"maxRetries"`   // Retry attempts after the first
	BaseDelay    time.Duration `mapstructure:"baseDelay"`    // Initial retry delay, doubled each attempt
	MaxDelay     time.Duration `mapstructure:"maxDelay"`     // Retry delay cap
	AllowedHosts []string      `mapstructure:"allowedHosts"` // Host allow-list; empty means any public host
	AllowHTTP    bool          `mapstructure:"allowHTTP"`    // Permit plain http destinations (dev only)
	MaxBodyLog   int           `mapstructure:"maxBodyLog"`   // Max bytes of payload kept in webhook logs
}

// BroadcastPoolConfig holds settings for the broadcast worker pool
type BroadcastPoolConfig struct {
	PoolSize     int           `mapstructure:"poolSize"`     // Number of concurrent send workers
	QueueSize    int           `mapstructure:"queueSize"`    // Task queue buffer size
	SendInterval time.Duration `mapstructure:"sendInterval"` // Minimum spacing between sends per worker
	ExpiryTime   time.Duration `mapstructure:"expiryTime"`   // Idle worker expiry time
}

// NotifierConfig holds settings for admin notifications
type NotifierConfig struct {
	LinkServiceURL string        `mapstructure:"linkServiceURL"` // Deep-link resolver for admin panel buttons
	Timeout        time.Duration `mapstructure:"timeout"`
}

// ClassifierConfig holds the keyword tables used to classify interactions
type ClassifierConfig struct {
	LeadKeywords        []string `mapstructure:"leadKeywords"`
	OrderKeywords       []string `mapstructure:"orderKeywords"`
	AppointmentKeywords []string `mapstructure:"appointmentKeywords"`
}

// LoadConfig reads configuration from file or environment variables
func LoadConfig(path string) (*Config, error) {
	// Create new viper instance
	v := viper.New()

	// Set defaults
	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 2112)

	v.SetDefault("nats.stream", "bot_events_stream")
	v.SetDefault("nats.subjectList", []string{"v1.bots.events.>"})
	v.SetDefault("nats.maxAge", 30)

	v.SetDefault("database.postgresAutoMigrate", true)

	v.SetDefault("platform.timeout", 10*time.Second)

	v.SetDefault("webhook.timeout", 10*time.Second)
	v.SetDefault("webhook.maxRetries", 3)
	v.SetDefault("webhook.baseDelay", 500*time.Millisecond)
	v.SetDefault("webhook.maxDelay", 8*time.Second)
	v.SetDefault("webhook.maxBodyLog", 2048)

	v.SetDefault("conversation.stateTTL", 30*24*time.Hour)
	v.SetDefault("conversation.dedupWindow", 10*time.Minute)

	v.SetDefault("classifier.leadKeywords", []string{"price", "quote", "interested", "contact me"})
	v.SetDefault("classifier.orderKeywords", []string{"order", "buy", "purchase", "checkout"})
	v.SetDefault("classifier.appointmentKeywords", []string{"appointment", "book", "schedule", "visit"})

	v.SetDefault("broadcast.poolSize", 10)
	v.SetDefault("broadcast.queueSize", 10000)
	v.SetDefault("broadcast.sendInterval", 50*time.Millisecond)
	v.SetDefault("broadcast.expiryTime", time.Minute)

	v.SetDefault("notifier.timeout", 5*time.Second)

	// Config file settings
	v.SetConfigName("default") // name of config file (without extension)
	v.SetConfigType("yaml")    // REQUIRED if the config file does not have the extension in the name

	// Add lookup paths
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("/etc/lego-bot-sub001")

	// Try to read from config file
	if err := v.ReadInConfig(); err != nil {
		// It's ok if config file is not found, we'll use env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Map environment variables to config fields
	bindEnvs(v, Config{})

	// Read directly from ENV for critical values
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		v.Set("database.postgresDSN", dsn)
	}
	if lgLevel := os.Getenv("LOG_LEVEL"); lgLevel != "" {
		v.Set("logLevel", lgLevel)
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		v.Set("nats.url", url)
	}
	if url := os.Getenv("PLATFORM_API_BASE_URL"); url != "" {
		v.Set("platform.apiBaseURL", url)
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &config, nil
}

// bindEnvs recursively binds environment variables to config struct fields
func bindEnvs(v *viper.Viper, cfg interface{}, parts ...string) {
	ifv := reflect.ValueOf(cfg)
	ift := reflect.TypeOf(cfg)
	for i := 0; i < ift.NumField(); i++ {
		fieldVal := ifv.Field(i)
		fieldType := ift.Field(i)

		// Get the field tag value (mapstructure)
		tag := fieldType.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		// Build the env var path
		path := append(parts, tag)
		key := strings.Join(path, ".")

		// If it's a struct, recursively bind its fields
		if fieldType.Type.Kind() == reflect.Struct {
			bindEnvs(v, fieldVal.Interface(), path...)
			continue
		}

		// Bind the env var
		_ = v.BindEnv(key)
	}
}
