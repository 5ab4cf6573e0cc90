package main

import (
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Environment variables read by LoadConfig.
const (
	envConfigFile     = "UPDATE_SERVER_CONFIG_FILE"
	envPort           = "UPDATE_SERVER_PORT"
	envBind           = "UPDATE_SERVER_BIND"
	envSource         = "UPDATE_SERVER_SOURCE"
	envAttachmentName = "UPDATE_SERVER_ATTACHMENT_NAME"
	envLogLevel       = "UPDATE_SERVER_LOG_LEVEL"
	envTrustForwarded = "UPDATE_SERVER_TRUST_FORWARDED_FOR"
)

// Config holds all configuration for the update server
type Config struct {
	Port              int    `yaml:"port"`
	Bind              string `yaml:"bind"`
	DownloadPath      string `yaml:"download_path"`
	Source            string `yaml:"source"`
	AttachmentName    string `yaml:"attachment_name"`
	LogLevel          string `yaml:"log_level"`
	ShutdownTimeout   int    `yaml:"shutdown_timeout_seconds"`
	RateLimitEnabled  bool   `yaml:"rate_limit_enabled"`
	RateLimitRPM      int    `yaml:"rate_limit_requests_per_minute"`
	RateLimitBurst    int    `yaml:"rate_limit_burst_size"`
	TrustForwardedFor bool   `yaml:"trust_forwarded_for"`
}

func defaultConfig() *Config {
	return &Config{
		Port:             80,
		Bind:             "",
		DownloadPath:     "/download",
		Source:           "update.txt",
		AttachmentName:   "update.txt",
		LogLevel:         "info",
		ShutdownTimeout:  30,
		RateLimitEnabled: false,
		RateLimitRPM:     30,
		RateLimitBurst:   5,

		TrustForwardedFor: false,
	}
}

// LoadConfig builds the configuration from defaults, a config file, environment
// variables and finally any flags explicitly set on cmd. A nil cmd skips flags.
func LoadConfig(cmd *cobra.Command) (*Config, error) {
	config := defaultConfig()

	configFile := os.Getenv(envConfigFile)
	if cmd != nil && cmd.Flags().Changed("config") {
		configFile, _ = cmd.Flags().GetString("config")
	}
	if configFile != "" {
		if err := loadConfigFromFile(configFile, config); err != nil {
			return nil, errors.Wrap(err, "failed to load config file")
		}
	}

	if err := loadConfigFromEnv(config); err != nil {
		return nil, err
	}

	if cmd != nil {
		if err := applyFlags(cmd, config); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadTestConfig loads configuration for testing (without reading flags)
func LoadTestConfig() (*Config, error) {
	return LoadConfig(nil)
}

// loadConfigFromFile decodes a YAML file over config. JSON is accepted too,
// being a subset of YAML. Unknown keys are rejected.
func loadConfigFromFile(filename string, config *Config) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(config); err != nil && err != io.EOF {
		return errors.Wrapf(err, "decode %s", filename)
	}
	return nil
}

func loadConfigFromEnv(config *Config) error {
	if portStr := os.Getenv(envPort); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return errors.Wrapf(err, "invalid %s", envPort)
		}
		config.Port = port
	}

	if bind, ok := os.LookupEnv(envBind); ok {
		config.Bind = bind
	}

	if source := os.Getenv(envSource); source != "" {
		config.Source = source
	}

	if name := os.Getenv(envAttachmentName); name != "" {
		config.AttachmentName = name
	}

	if logLevel := os.Getenv(envLogLevel); logLevel != "" {
		config.LogLevel = logLevel
	}

	if trust := os.Getenv(envTrustForwarded); trust != "" {
		value, err := strconv.ParseBool(trust)
		if err != nil {
			return errors.Wrapf(err, "invalid %s", envTrustForwarded)
		}
		config.TrustForwardedFor = value
	}

	return nil
}

func applyFlags(cmd *cobra.Command, config *Config) error {
	flags := cmd.Flags()
	var err error

	if flags.Changed("port") {
		if config.Port, err = flags.GetInt("port"); err != nil {
			return err
		}
	}
	if flags.Changed("bind") {
		if config.Bind, err = flags.GetString("bind"); err != nil {
			return err
		}
	}
	if flags.Changed("download-path") {
		if config.DownloadPath, err = flags.GetString("download-path"); err != nil {
			return err
		}
	}
	if flags.Changed("source") {
		if config.Source, err = flags.GetString("source"); err != nil {
			return err
		}
	}
	if flags.Changed("attachment-name") {
		if config.AttachmentName, err = flags.GetString("attachment-name"); err != nil {
			return err
		}
	}
	if flags.Changed("log-level") {
		if config.LogLevel, err = flags.GetString("log-level"); err != nil {
			return err
		}
	}
	if flags.Changed("trust-forwarded-for") {
		if config.TrustForwardedFor, err = flags.GetBool("trust-forwarded-for"); err != nil {
			return err
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.Errorf("port %d out of range", c.Port)
	}
	if !strings.HasPrefix(c.DownloadPath, "/") {
		return errors.Errorf("download path %q must start with /", c.DownloadPath)
	}
	if strings.ContainsAny(c.DownloadPath, "{}*?#") {
		return errors.Errorf("download path %q must be a literal path", c.DownloadPath)
	}
	if c.Source == "" {
		return errors.New("source file must be set")
	}
	if c.AttachmentName == "" {
		return errors.New("attachment name must be set")
	}
	if strings.ContainsAny(c.AttachmentName, "\"\\/\r\n") {
		return errors.Errorf("attachment name %q contains reserved characters", c.AttachmentName)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrapf(err, "log level %q", c.LogLevel)
	}
	if c.ShutdownTimeout < 0 {
		return errors.Errorf("shutdown timeout %d is negative", c.ShutdownTimeout)
	}
	if c.RateLimitEnabled && (c.RateLimitRPM <= 0 || c.RateLimitBurst <= 0) {
		return errors.New("rate limit requires positive requests per minute and burst size")
	}
	return nil
}

// Addr is the listen address handed to net.Listen.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}
