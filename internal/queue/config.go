package queue

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config for SQS.
type Config struct {
	URL       string `envconfig:"AWS_SQS_ENDPOINT_URL" required:"true"`
	KeyID     string `envconfig:"AWS_ACCESS_KEY_ID" required:"true"`
	SecretKey string `envconfig:"AWS_SECRET_ACCESS_KEY" required:"true"`
	Region    string `envconfig:"AWS_SQS_REGION" default:"ru-central1"`
	// VisibilityTimeout hides a received job from other workers while it runs.
	VisibilityTimeout time.Duration `envconfig:"AWS_SQS_VISIBILITY_TIMEOUT" default:"5m"`
	// MaxMessageAttempts after which a job message is dropped.
	MaxMessageAttempts int  `envconfig:"AWS_SQS_MAX_ATTEMPTS" default:"3"`
	Debug              bool `envconfig:"DEBUG" default:"false"`
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
