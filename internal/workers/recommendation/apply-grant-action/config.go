// internal/workers/recommendation/apply-grant-action/config.go
package applygrantaction

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}
