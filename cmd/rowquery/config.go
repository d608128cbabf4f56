package main

import (
	"time"

	"github.com/kbukum/rowquery/cache"
	"github.com/kbukum/rowquery/config"
	"github.com/kbukum/rowquery/observability"
	"github.com/kbukum/rowquery/query"
	"github.com/kbukum/rowquery/server"
	"github.com/kbukum/rowquery/source"
	"github.com/kbukum/rowquery/validation"
)

const serviceName = "rowquery"

func init() {
	if err := validation.Register("sortkey", func(s string) bool {
		_, err := query.ParseSort(s)
		return err == nil
	}); err != nil {
		panic(err)
	}
}

// AppConfig is the full rowquery configuration.
type AppConfig struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
	Query                QueryConfig     `yaml:"query" mapstructure:"query"`
	S3                   source.S3Config `yaml:"s3" mapstructure:"s3"`
	Server               server.Config   `yaml:"server" mapstructure:"server"`
	Cache                cache.Config    `yaml:"cache" mapstructure:"cache"`
	Telemetry            TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
}

// QueryConfig selects the row source and the query applied to it. File is a
// local path or an s3://bucket/key URL. Format defaults to the file
// extension; Sheet applies to workbooks only.
type QueryConfig struct {
	File       string   `yaml:"file" mapstructure:"file" validate:"required"`
	Format     string   `yaml:"format" mapstructure:"format" validate:"omitempty,oneof=csv xlsx"`
	Sheet      string   `yaml:"sheet" mapstructure:"sheet"`
	Delimiter  string   `yaml:"delimiter" mapstructure:"delimiter" validate:"omitempty,len=1"`
	Comment    string   `yaml:"comment" mapstructure:"comment" validate:"omitempty,len=1"`
	Encoding   string   `yaml:"encoding" mapstructure:"encoding"`
	LazyQuotes bool     `yaml:"lazy_quotes" mapstructure:"lazy_quotes"`
	SkipHeader bool     `yaml:"skip_header" mapstructure:"skip_header"`
	Sort       []string `yaml:"sort" mapstructure:"sort" validate:"dive,sortkey"`
	Offset     int      `yaml:"offset" mapstructure:"offset" validate:"gte=0"`
	// Limit is a pointer so an absent value means "no limit" rather than 0.
	Limit *int `yaml:"limit" mapstructure:"limit" validate:"omitempty,gte=-1"`
	Serve bool `yaml:"serve" mapstructure:"serve"`
}

// TelemetryConfig controls OTLP trace and metric export.
type TelemetryConfig struct {
	Enabled        bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint       string  `yaml:"endpoint" mapstructure:"endpoint" validate:"required_if=Enabled true,omitempty,hostname_port"`
	Insecure       bool    `yaml:"insecure" mapstructure:"insecure"`
	SampleRate     float64 `yaml:"sample_rate" mapstructure:"sample_rate" validate:"gte=0,lte=1"`
	MetricInterval int     `yaml:"metric_interval" mapstructure:"metric_interval" validate:"gte=0"` // seconds
}

// ApplyDefaults fills in unset values.
func (c *AppConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = serviceName
	}
	c.ServiceConfig.ApplyDefaults()
	c.S3.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Cache.ApplyDefaults()
	if c.Telemetry.Enabled && c.Telemetry.SampleRate == 0 {
		c.Telemetry.SampleRate = 1
	}
	if c.Telemetry.MetricInterval == 0 {
		c.Telemetry.MetricInterval = 15
	}
}

// Validate checks what struct tags cannot express.
func (c *AppConfig) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if _, _, err := source.ParseObjectURL(c.Query.File); err != nil {
		return err
	}
	if _, err := c.Query.csvOptions(); err != nil {
		return err
	}
	_, err := c.Query.newQuery()
	return err
}

func (q *QueryConfig) format() source.Format {
	if q.Format != "" {
		return source.Format(q.Format)
	}
	return source.DetectFormat(q.File)
}

// limit resolves the configured limit, NoLimit when absent.
func (q *QueryConfig) limit() int {
	if q.Limit == nil {
		return query.NoLimit
	}
	return *q.Limit
}

func (q *QueryConfig) csvOptions() ([]source.CSVOption, error) {
	var opts []source.CSVOption
	if q.Delimiter != "" {
		opts = append(opts, source.WithDelimiter([]rune(q.Delimiter)[0]))
	}
	if q.Comment != "" {
		opts = append(opts, source.WithComment([]rune(q.Comment)[0]))
	}
	if q.LazyQuotes {
		opts = append(opts, source.WithLazyQuotes())
	}
	if q.Encoding != "" {
		opts = append(opts, source.WithEncoding(q.Encoding))
	}
	if err := source.CheckOptions(opts...); err != nil {
		return nil, err
	}
	return opts, nil
}

// newQuery builds the configured query. Sort keys were already checked by
// the sortkey tag; errors here mean Finalize was skipped.
func (q *QueryConfig) newQuery(opts ...query.Option) (*query.Query, error) {
	qry := query.New(opts...)
	if q.SkipHeader {
		qry.AddFilter(query.SkipHeader())
	}
	for _, raw := range q.Sort {
		crit, err := query.ParseSort(raw)
		if err != nil {
			return nil, err
		}
		if _, err := qry.AddSort(crit.Column, crit.Direction); err != nil {
			return nil, err
		}
	}
	if _, err := qry.SetOffset(q.Offset); err != nil {
		return nil, err
	}
	if _, err := qry.SetLimit(q.limit()); err != nil {
		return nil, err
	}
	return qry, nil
}

func (t *TelemetryConfig) tracerConfig(base *config.ServiceConfig) *observability.TracerConfig {
	return &observability.TracerConfig{
		ServiceName:    base.Name,
		ServiceVersion: base.Version,
		Environment:    base.Environment,
		Endpoint:       t.Endpoint,
		Insecure:       t.Insecure,
		SampleRate:     t.SampleRate,
	}
}

func (t *TelemetryConfig) meterConfig(base *config.ServiceConfig) *observability.MeterConfig {
	return &observability.MeterConfig{
		ServiceName:    base.Name,
		ServiceVersion: base.Version,
		Environment:    base.Environment,
		Endpoint:       t.Endpoint,
		Insecure:       t.Insecure,
		Interval:       time.Duration(t.MetricInterval) * time.Second,
	}
}
