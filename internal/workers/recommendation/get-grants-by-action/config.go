// internal/workers/recommendation/get-grants-by-action/config.go
package getgrantsbyaction

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}
