package backend

import (
	"fmt"

	"walletwise/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type:           backendType,
		APIBaseURL:     appConfig.APIBaseURL,
		APITimeout:     appConfig.APITimeout,
		DataDirectory:  appConfig.SeedDir,
		ActivityDBPath: appConfig.ActivityDBPath,
		AMQPURL:        appConfig.AMQPURL,
		AMQPExchange:   appConfig.AMQPExchange,
		AMQPQueue:      appConfig.AMQPQueue,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.Type == APIBackend && c.APIBaseURL == "" {
		return fmt.Errorf("API base URL is required for api backend")
	}
	if c.AMQPURL != "" && c.ActivityDBPath == "" {
		return fmt.Errorf("activity database path is required when AMQP is enabled")
	}
	return nil
}
