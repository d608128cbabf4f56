package server

import (
	"fmt"

	"github.com/kbukum/rowquery/validation"
)

// Config holds HTTP server configuration. Timeouts are in seconds.
//
// MaxConcurrentQueries, QueueTimeout (milliseconds) and OpenAttempts guard
// GET /rows. A zero value leaves that guard off; ApplyDefaults turns them on.
type Config struct {
	Host         string `yaml:"host" mapstructure:"host"`
	Port         int    `yaml:"port" mapstructure:"port" validate:"gte=0,lte=65535"`
	ReadTimeout  int    `yaml:"read_timeout" mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout int    `yaml:"write_timeout" mapstructure:"write_timeout" validate:"gte=0"`
	IdleTimeout  int    `yaml:"idle_timeout" mapstructure:"idle_timeout" validate:"gte=0"`

	MaxConcurrentQueries int `yaml:"max_concurrent_queries" mapstructure:"max_concurrent_queries" validate:"gte=0"`
	QueueTimeout         int `yaml:"queue_timeout" mapstructure:"queue_timeout" validate:"gte=0"`
	OpenAttempts         int `yaml:"open_attempts" mapstructure:"open_attempts" validate:"gte=0,lte=10"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 15
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60
	}
	if c.MaxConcurrentQueries == 0 {
		c.MaxConcurrentQueries = 8
	}
	if c.QueueTimeout == 0 {
		c.QueueTimeout = 500
	}
	if c.OpenAttempts == 0 {
		c.OpenAttempts = 3
	}
}

// Validate checks the struct tags and reports violations as INVALID_INPUT.
func (c *Config) Validate() error {
	return validation.Validate(c)
}

// Addr is the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
