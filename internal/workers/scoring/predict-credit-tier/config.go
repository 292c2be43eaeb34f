package predictcredittier

import (
	"time"

	"credit-prediction/internal/common/config"
)

type Config struct {
	Timeout time.Duration
	// MinConfidence flags results whose winning probability is below it. Zero disables the flag.
	MinConfidence float64
}

func LoadConfig(cfg *config.Config) *Config {
	wc := config.GetWorkerConfig(cfg, TaskType)
	return &Config{
		Timeout:       config.GetDuration(wc.Timeout),
		MinConfidence: wc.MinConfidence,
	}
}
