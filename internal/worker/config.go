package worker

import (
	"github.com/kelseyhightower/envconfig"
)

// Config for Worker.
type Config struct {
	Workers  int    `envconfig:"WORKERS" default:"3"`
	JobQueue string `envconfig:"JOB_QUEUE" default:"job-queue"`
}

// LoadConfig loads envs.
func LoadConfig() (Config, error) {
	c := Config{}
	return c, envconfig.Process("", &c)
}

// MustConfig loads envs.
// Panics in case of error.
func MustConfig(c Config, err error) Config {
	if err != nil {
		panic(err)
	}
	return c
}
