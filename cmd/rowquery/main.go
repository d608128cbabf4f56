// Command rowquery filters, sorts and pages the rows of a CSV file or XLSX
// workbook, read from disk or S3. It prints the result as tab-separated
// lines or serves it over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kbukum/rowquery/config"
	apperrors "github.com/kbukum/rowquery/errors"
	"github.com/kbukum/rowquery/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "rowquery:", describe(err))
		stop()
		os.Exit(1)
	}
}

type cliOptions struct {
	configFile string
	envFile    string

	file       string
	format     string
	sheet      string
	delimiter  string
	encoding   string
	skipHeader bool
	sort       []string
	offset     int
	limit      int
}

func newRootCmd() *cobra.Command {
	var opts cliOptions

	root := &cobra.Command{
		Use:           "rowquery [file]",
		Short:         "Filter, sort and page the rows of a CSV file or workbook",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &opts, args)
			if err != nil {
				return err
			}
			return run(cmd, cfg, cfg.Query.Serve)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "path to config.yml")
	pf.StringVar(&opts.envFile, "env-file", "", "path to a .env file")
	pf.StringVarP(&opts.file, "file", "f", "", "CSV or XLSX file to query, local or s3://bucket/key")
	pf.StringVar(&opts.format, "format", "", "csv or xlsx (default from the file extension)")
	pf.StringVar(&opts.sheet, "sheet", "", "worksheet to read (default the first)")
	pf.StringVarP(&opts.delimiter, "delimiter", "d", "", "field delimiter (default ',')")
	pf.StringVar(&opts.encoding, "encoding", "", "input character set, e.g. iso-8859-15")
	pf.BoolVar(&opts.skipHeader, "skip-header", false, "drop the first row")
	pf.StringSliceVarP(&opts.sort, "sort", "s", nil, "sort keys as column[:asc|desc], repeatable")
	pf.IntVar(&opts.offset, "offset", 0, "rows to skip after sorting")
	pf.IntVar(&opts.limit, "limit", -1, "rows to return, -1 for all")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve [file]",
			Short: "Serve GET /rows over HTTP",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(cmd, &opts, args)
				if err != nil {
					return err
				}
				return run(cmd, cfg, true)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version.Full())
			},
		},
	)
	return root
}

// loadConfig reads config.yml, .env and ROWQUERY_* variables, then layers
// explicitly set flags and a positional file on top before validating.
func loadConfig(cmd *cobra.Command, opts *cliOptions, args []string) (*AppConfig, error) {
	loaderOpts := []config.LoaderOption{config.WithEnvPrefix("ROWQUERY")}
	if opts.configFile != "" {
		loaderOpts = append(loaderOpts, config.WithConfigFile(opts.configFile))
	}
	if opts.envFile != "" {
		loaderOpts = append(loaderOpts, config.WithEnvFile(opts.envFile))
	}

	var cfg AppConfig
	if err := config.LoadConfig(serviceName, &cfg, loaderOpts...); err != nil {
		return nil, err
	}
	opts.overlay(cmd, &cfg.Query)
	if len(args) == 1 {
		cfg.Query.File = args[0]
	}
	if err := config.Finalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (o *cliOptions) overlay(cmd *cobra.Command, q *QueryConfig) {
	flags := cmd.Flags()
	if flags.Changed("file") {
		q.File = o.file
	}
	if flags.Changed("format") {
		q.Format = o.format
	}
	if flags.Changed("sheet") {
		q.Sheet = o.sheet
	}
	if flags.Changed("delimiter") {
		q.Delimiter = o.delimiter
	}
	if flags.Changed("encoding") {
		q.Encoding = o.encoding
	}
	if flags.Changed("skip-header") {
		q.SkipHeader = o.skipHeader
	}
	if flags.Changed("sort") {
		q.Sort = o.sort
	}
	if flags.Changed("offset") {
		q.Offset = o.offset
	}
	if flags.Changed("limit") {
		limit := o.limit
		q.Limit = &limit
	}
}

func run(cmd *cobra.Command, cfg *AppConfig, serve bool) (err error) {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.close(ctx); err == nil {
			err = closeErr
		}
	}()

	if serve {
		return a.serve(ctx)
	}
	return a.runQuery(ctx, cmd.OutOrStdout())
}

// describe prefers the user-facing message of an AppError.
func describe(err error) string {
	if appErr, ok := apperrors.AsAppError(err); ok {
		return fmt.Sprintf("%s: %s", appErr.Code, appErr.Message)
	}
	return err.Error()
}
