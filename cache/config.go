package cache

import (
	"time"

	"github.com/kbukum/rowquery/validation"
)

// Config holds Redis connection and result cache settings. Timeouts are
// duration strings such as "3s".
type Config struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr     string `yaml:"addr" mapstructure:"addr" validate:"required_if=Enabled true,omitempty,hostname_port"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db" validate:"gte=0"`
	PoolSize int    `yaml:"pool_size" mapstructure:"pool_size" validate:"gte=0"`

	DialTimeout  string `yaml:"dial_timeout" mapstructure:"dial_timeout" validate:"omitempty,duration"`
	ReadTimeout  string `yaml:"read_timeout" mapstructure:"read_timeout" validate:"omitempty,duration"`
	WriteTimeout string `yaml:"write_timeout" mapstructure:"write_timeout" validate:"omitempty,duration"`

	// TTL is how long a result stays cached, in seconds.
	TTL int `yaml:"ttl" mapstructure:"ttl" validate:"gte=0"`
}

// ApplyDefaults sets defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.DialTimeout == "" {
		c.DialTimeout = "5s"
	}
	if c.ReadTimeout == "" {
		c.ReadTimeout = "3s"
	}
	if c.WriteTimeout == "" {
		c.WriteTimeout = "3s"
	}
	if c.TTL == 0 {
		c.TTL = 60
	}
}

// Validate checks the struct tags and reports violations as INVALID_INPUT.
func (c *Config) Validate() error {
	return validation.Validate(c)
}

// Expiration is TTL as a duration.
func (c *Config) Expiration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}

func parseDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
