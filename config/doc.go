// Package config loads service configuration with viper.
//
// Values come from a config.yml found in the standard locations (or given
// explicitly), then from a .env file loaded through godotenv, then from the
// process environment. Environment keys are matched against nested config
// keys, so QUERY_LIMIT sets query.limit.
//
// # Usage
//
//	type AppConfig struct {
//	    config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
//	    Query QueryConfig    `yaml:"query" mapstructure:"query"`
//	}
//
//	var cfg AppConfig
//	err := config.Load("rowquery", &cfg, config.WithEnvPrefix("ROWQUERY"))
package config
