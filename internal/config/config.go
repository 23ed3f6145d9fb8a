package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ErrMissingCredential is returned by Validate when a Docker Cloud secret is not set.
var ErrMissingCredential = errors.New("missing credential")

type Config struct {
	DockerCloudURL    string
	DockerCloudUser   string
	DockerCloudAPIKey string
	GitHubURL         string
	GitHubToken       string
	WebhookSecret     string
	Port              string
	DatabasePath      string
	PollInterval      time.Duration
	PollRetries       int
	NewRelicLicense   string
	NewRelicAppName   string
	NewRelicEnabled   bool
}

func Load() *Config {
	newRelicEnabled, err := strconv.ParseBool(getEnv("NEW_RELIC_ENABLED", "false"))
	if err != nil {
		newRelicEnabled = false
	}

	pollInterval, err := time.ParseDuration(getEnv("POLL_INTERVAL", "5s"))
	if err != nil || pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}

	pollRetries, err := strconv.Atoi(getEnv("POLL_RETRIES", "10"))
	if err != nil || pollRetries <= 0 {
		pollRetries = 10
	}

	return &Config{
		DockerCloudURL:    getEnv("DOCKERCLOUD_URL", "https://cloud.docker.com"),
		DockerCloudUser:   os.Getenv("DOCKERCLOUD_USER"),
		DockerCloudAPIKey: os.Getenv("DOCKERCLOUD_APIKEY"),
		GitHubURL:         getEnv("GITHUB_API_URL", "https://api.github.com"),
		GitHubToken:       os.Getenv("GITHUB_TOKEN"),
		WebhookSecret:     os.Getenv("WEBHOOK_SECRET"),
		Port:              getEnv("PORT", "3000"),
		DatabasePath:      getEnv("DATABASE_PATH", "./stackbot.db"),
		PollInterval:      pollInterval,
		PollRetries:       pollRetries,
		NewRelicLicense:   getEnv("NEW_RELIC_LICENSE_KEY", ""),
		NewRelicAppName:   getEnv("NEW_RELIC_APP_NAME", "stackbot-deployment"),
		NewRelicEnabled:   newRelicEnabled,
	}
}

// Validate reports the first required setting that is missing.
func (c *Config) Validate() error {
	if c.DockerCloudUser == "" {
		return fmt.Errorf("%w: 'DOCKERCLOUD_USER' environment variable", ErrMissingCredential)
	}
	if c.DockerCloudAPIKey == "" {
		return fmt.Errorf("%w: 'DOCKERCLOUD_APIKEY' environment variable", ErrMissingCredential)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
