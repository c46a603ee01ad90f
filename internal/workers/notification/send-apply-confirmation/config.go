// internal/workers/notification/send-apply-confirmation/config.go
package sendapplyconfirmation

import "time"

type Config struct {
	Timeout      time.Duration
	AWSRegion    string
	FromEmail    string
	EmailEnabled bool
	SMSEnabled   bool
}

func LoadConfig() *Config {
	return &Config{
		Timeout:      30 * time.Second,
		AWSRegion:    "us-east-1",
		FromEmail:    "no-reply@grantmatch.io",
		EmailEnabled: true,
		SMSEnabled:   false,
	}
}
