package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"assist-server/pkg/errors"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config represents the complete application configuration
type Config struct {
	Session     SessionConfig     `json:"session"`
	Capture     CaptureConfig     `json:"capture"`
	Suggestions SuggestionsConfig `json:"suggestions"`
	Insights    InsightsConfig    `json:"insights"`
	Messaging   MessagingConfig   `json:"messaging"`
	HTTP        HTTPConfig        `json:"http"`
	Logging     LoggingConfig     `json:"logging"`
}

// SessionConfig holds the session controller tuning
type SessionConfig struct {
	// Sampler tick period
	SampleInterval time.Duration `json:"sample_interval" env:"SESSION_SAMPLE_INTERVAL" default:"5s"`

	// Contact name used on synthesized tickets when the platform
	// supplies none
	DefaultContact string `json:"default_contact" env:"SESSION_DEFAULT_CONTACT"`
}

// CaptureConfig holds media capture settings
type CaptureConfig struct {
	// Source kind for the demo entrypoint (phone or screen_share)
	Source string `json:"source" env:"CAPTURE_SOURCE" default:"phone"`

	// Loop the scripted signal feed instead of exhausting it
	Loop bool `json:"loop" env:"CAPTURE_LOOP" default:"false"`
}

// SuggestionsConfig holds suggestion engine settings
type SuggestionsConfig struct {
	// Maximum number of suggestions shown at once
	Cap int `json:"cap" env:"SUGGESTIONS_CAP" default:"2"`
}

// InsightsConfig holds the learning emission policy settings
type InsightsConfig struct {
	// Emit at most one learning every N processed ticks
	EmitEvery int `json:"emit_every" env:"INSIGHTS_EMIT_EVERY" default:"3"`

	// Maximum learnings per session
	Max int `json:"max" env:"INSIGHTS_MAX" default:"5"`
}

// MessagingConfig holds AMQP settings for ticket publishing
type MessagingConfig struct {
	// AMQP server URL (empty = publishing disabled)
	AMQPUrl string `json:"amqp_url" env:"AMQP_URL"`

	// Queue name for synthesized ticket records
	AMQPQueueName string `json:"amqp_queue_name" env:"AMQP_QUEUE_NAME" default:"incident_tickets"`
}

// HTTPConfig holds HTTP server settings
type HTTPConfig struct {
	Enabled bool `json:"enabled" env:"HTTP_ENABLED" default:"true"`
	Port    int  `json:"port" env:"HTTP_PORT" default:"8080"`

	ReadTimeout  time.Duration `json:"read_timeout" env:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `json:"write_timeout" env:"HTTP_WRITE_TIMEOUT" default:"30s"`

	// Enable the /metrics endpoint
	EnableMetrics bool `json:"enable_metrics" env:"HTTP_ENABLE_METRICS" default:"true"`

	// Enable the /ws session event stream
	EnableWebsocket bool `json:"enable_websocket" env:"HTTP_ENABLE_WEBSOCKET" default:"true"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	// Log level
	Level string `json:"level" env:"LOG_LEVEL" default:"info"`

	// Log format (json or text)
	Format string `json:"format" env:"LOG_FORMAT" default:"json"`

	// Log output file (empty = stdout)
	OutputFile string `json:"output_file" env:"LOG_OUTPUT_FILE"`
}

// Load reads configuration from .env files and environment variables
func Load(logger *logrus.Logger) (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		logger.WithError(err).Warn("Failed to get current working directory")
		wd = "unknown"
	}

	possibleEnvFiles := []string{
		".env",
		"../.env",
		filepath.Join(wd, ".env"),
	}

	var loadedFrom string
	for _, envFile := range possibleEnvFiles {
		if _, statErr := os.Stat(envFile); statErr == nil {
			absPath, _ := filepath.Abs(envFile)
			if loadErr := godotenv.Load(envFile); loadErr == nil {
				loadedFrom = absPath
				break
			}
		}
	}

	if loadedFrom != "" {
		logger.WithFields(logrus.Fields{
			"working_dir": wd,
			"path":        loadedFrom,
		}).Info("Successfully loaded .env file")
	} else {
		logger.WithField("working_dir", wd).Debug("No .env file found, using environment variables only")
	}

	config := &Config{}

	loadSessionConfig(&config.Session)
	loadCaptureConfig(&config.Capture)
	loadSuggestionsConfig(&config.Suggestions)
	loadInsightsConfig(&config.Insights)
	loadMessagingConfig(&config.Messaging)
	loadHTTPConfig(&config.HTTP)
	loadLoggingConfig(&config.Logging)

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadSessionConfig(config *SessionConfig) {
	config.SampleInterval = getEnvDuration("SESSION_SAMPLE_INTERVAL", 5*time.Second)
	config.DefaultContact = getEnv("SESSION_DEFAULT_CONTACT", "")
}

func loadCaptureConfig(config *CaptureConfig) {
	config.Source = getEnv("CAPTURE_SOURCE", "phone")
	config.Loop = getEnvBool("CAPTURE_LOOP", false)
}

func loadSuggestionsConfig(config *SuggestionsConfig) {
	config.Cap = getEnvInt("SUGGESTIONS_CAP", 2)
}

func loadInsightsConfig(config *InsightsConfig) {
	config.EmitEvery = getEnvInt("INSIGHTS_EMIT_EVERY", 3)
	config.Max = getEnvInt("INSIGHTS_MAX", 5)
}

func loadMessagingConfig(config *MessagingConfig) {
	config.AMQPUrl = getEnv("AMQP_URL", "")
	config.AMQPQueueName = getEnv("AMQP_QUEUE_NAME", "incident_tickets")
}

func loadHTTPConfig(config *HTTPConfig) {
	config.Enabled = getEnvBool("HTTP_ENABLED", true)
	config.Port = getEnvInt("HTTP_PORT", 8080)
	config.ReadTimeout = getEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second)
	config.WriteTimeout = getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second)
	config.EnableMetrics = getEnvBool("HTTP_ENABLE_METRICS", true)
	config.EnableWebsocket = getEnvBool("HTTP_ENABLE_WEBSOCKET", true)
}

func loadLoggingConfig(config *LoggingConfig) {
	config.Level = getEnv("LOG_LEVEL", "info")
	config.Format = getEnv("LOG_FORMAT", "json")
	config.OutputFile = getEnv("LOG_OUTPUT_FILE", "")
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Session.SampleInterval <= 0 {
		return errors.New("session sample interval must be positive")
	}

	switch c.Capture.Source {
	case "phone", "screen_share":
	default:
		return errors.New(fmt.Sprintf("invalid capture source: %s", c.Capture.Source))
	}

	if c.Suggestions.Cap <= 0 {
		return errors.New("suggestions cap must be positive")
	}

	if c.Insights.EmitEvery <= 0 || c.Insights.Max < 0 {
		return errors.New("invalid insights policy configuration")
	}

	if c.HTTP.Enabled && (c.HTTP.Port < 1 || c.HTTP.Port > 65535) {
		return errors.New(fmt.Sprintf("invalid HTTP port: %d", c.HTTP.Port))
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return errors.Wrap(err, fmt.Sprintf("invalid log level: %s", c.Logging.Level))
	}

	return nil
}

// ApplyLogging applies the logging configuration to the logger
func (c *Config) ApplyLogging(logger *logrus.Logger) error {
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("invalid log level: %s", c.Logging.Level))
	}
	logger.SetLevel(level)

	if c.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
		})
	}

	if c.Logging.OutputFile != "" {
		f, err := os.OpenFile(c.Logging.OutputFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("failed to open log file: %s", c.Logging.OutputFile))
		}
		logger.SetOutput(f)
	} else {
		logger.SetOutput(os.Stdout)
	}

	return nil
}

// Helper function to get an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// Helper function to get a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	switch strings.ToLower(value) {
	case "true", "yes", "1", "on":
		return true
	case "false", "no", "0", "off":
		return false
	default:
		return defaultValue
	}
}

// Helper function to get an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

// Helper function to get a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}
