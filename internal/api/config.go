package api

import (
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Config for API.
type Config struct {
	MountPrefix   string `envconfig:"MOUNT_PREFIX" default:"/api/v1"`
	ListenAddress string `envconfig:"LISTEN_ADDR" default:":3000"`
	JobQueue      string `envconfig:"JOB_QUEUE" default:"job-queue"`
	// MaxRequests per job.
	MaxRequests int `envconfig:"MAX_JOB_REQUESTS" default:"1000"`
}

// LoadConfig loads envs.
func LoadConfig() (Config, error) {
	c := Config{}
	if err := envconfig.Process("", &c); err != nil {
		return c, err
	}
	c.MountPrefix = strings.TrimSuffix(c.MountPrefix, "/")
	return c, nil
}

// MustConfig loads envs.
// Panics in case of error.
func MustConfig(c Config, err error) Config {
	if err != nil {
		panic(err)
	}
	return c
}
