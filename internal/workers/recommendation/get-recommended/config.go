// internal/workers/recommendation/get-recommended/config.go
package getrecommended

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}
