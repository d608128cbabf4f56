// Package validation checks configuration structs and request parameters.
//
// Struct tag validation uses go-playground/validator; field names in messages
// follow mapstructure or json tags:
//
//	type QueryConfig struct {
//	    File  string `mapstructure:"file" validate:"required"`
//	    Limit int    `mapstructure:"limit" validate:"gte=-1"`
//	}
//	err := validation.Validate(cfg)
//
// The fluent Validator collects errors while parsing raw strings:
//
//	v := validation.New()
//	v.Int("offset", c.Query("offset"), &offset).Min("offset", offset, 0)
//	if appErr := v.Validate(); appErr != nil { ... }
package validation
