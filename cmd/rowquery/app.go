package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kbukum/rowquery/cache"
	apperrors "github.com/kbukum/rowquery/errors"
	"github.com/kbukum/rowquery/logger"
	"github.com/kbukum/rowquery/observability"
	"github.com/kbukum/rowquery/pipeline"
	"github.com/kbukum/rowquery/query"
	"github.com/kbukum/rowquery/server"
	"github.com/kbukum/rowquery/source"
	"github.com/kbukum/rowquery/version"
)

// app holds what a run needs once configuration is final.
type app struct {
	cfg      *AppConfig
	log      *logger.Logger
	metrics  *observability.QueryMetrics
	shutdown []func(context.Context) error
}

// newApp initializes logging and, when enabled, OTLP export.
func newApp(ctx context.Context, cfg *AppConfig) (*app, error) {
	logger.Init(&cfg.Logging)
	a := &app{cfg: cfg, log: logger.GetGlobalLogger()}

	if cfg.Telemetry.Enabled {
		tp, err := observability.InitTracer(ctx, cfg.Telemetry.tracerConfig(&cfg.ServiceConfig))
		if err != nil {
			return nil, fmt.Errorf("init tracer: %w", err)
		}
		a.shutdown = append(a.shutdown, tp.Shutdown)

		mp, err := observability.InitMeter(ctx, cfg.Telemetry.meterConfig(&cfg.ServiceConfig))
		if err != nil {
			_ = a.close(ctx)
			return nil, fmt.Errorf("init meter: %w", err)
		}
		a.shutdown = append(a.shutdown, mp.Shutdown)
	}

	metrics, err := observability.NewQueryMetrics(observability.Meter(serviceName))
	if err != nil {
		_ = a.close(ctx)
		return nil, err
	}
	a.metrics = metrics

	fields := version.Get().Fields()
	fields["environment"] = cfg.Environment
	fields["telemetry"] = cfg.Telemetry.Enabled
	a.log.Info("rowquery starting", fields)
	return a, nil
}

func (a *app) queryOptions() []query.Option {
	return []query.Option{query.WithLogger(a.log), query.WithMetrics(a.metrics)}
}

// rowSource picks the local file or S3 object named by query.file and the
// decoder for its format.
func (a *app) rowSource(ctx context.Context) (server.Loader, observability.HealthChecker, error) {
	q := &a.cfg.Query
	opts, err := q.csvOptions()
	if err != nil {
		return nil, nil, err
	}
	obj, isS3, err := source.ParseObjectURL(q.File)
	if err != nil {
		return nil, nil, err
	}
	xlsx := q.format() == source.FormatXLSX

	if !isS3 {
		if xlsx {
			return source.XLSXLoader(q.File, q.Sheet), source.FileHealth(q.File), nil
		}
		return source.FileLoader(q.File, opts...), source.FileHealth(q.File), nil
	}

	client, err := source.NewS3Client(ctx, a.cfg.S3)
	if err != nil {
		return nil, nil, apperrors.SourceUnavailable("s3", err)
	}
	a.log.Debug("reading rows from S3", map[string]interface{}{"object": obj.String(), "region": a.cfg.S3.Region})
	if xlsx {
		return source.S3XLSXLoader(client, obj, q.Sheet), source.S3Health(client, obj), nil
	}
	return source.S3Loader(client, obj, opts...), source.S3Health(client, obj), nil
}

// runQuery applies the configured query to the CSV source and writes the
// result to out, one tab-separated row per line.
func (a *app) runQuery(ctx context.Context, out io.Writer) error {
	q, err := a.cfg.Query.newQuery(a.queryOptions()...)
	if err != nil {
		return err
	}
	load, _, err := a.rowSource(ctx)
	if err != nil {
		return err
	}
	src, err := load(ctx)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(out)
	rows := query.ExecuteMap(q, src, query.Row.Strings)
	err = pipeline.ForEach(ctx, rows, func(_ context.Context, fields []string) error {
		_, err := w.WriteString(strings.Join(fields, "\t") + "\n")
		return err
	})
	if flushErr := w.Flush(); err == nil {
		err = flushErr
	}
	return err
}

// serve exposes GET /rows over HTTP until ctx is cancelled.
func (a *app) serve(ctx context.Context) error {
	load, health, err := a.rowSource(ctx)
	if err != nil {
		return err
	}

	checkers := []observability.HealthChecker{health}
	srv := server.New(a.cfg.Server, a.log)
	srv.ApplyMiddleware(a.metrics)
	if a.cfg.Cache.Enabled {
		client, err := cache.New(a.cfg.Cache, a.log)
		if err != nil {
			return err
		}
		defer client.Close()
		// Results are only valid for one source, so the key carries it.
		store := cache.NewStore[server.CachedRows](client, a.cfg.Name+":"+a.cfg.Query.File)
		srv.SetResultCache(store, a.cfg.Cache.Expiration())
		checkers = append(checkers, client.Health())
	}
	srv.RegisterDefaultEndpoints(a.cfg.Name, checkers...)
	srv.RegisterRows(load, a.queryOptions()...)
	srv.LogRoutes()

	// Binding is not cancelled with ctx; a stop requested meanwhile is
	// handled by the shutdown below.
	if err := srv.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	<-ctx.Done()
	a.log.Info("shutdown signal received")

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return srv.Stop(stopCtx)
}

// close flushes telemetry exporters in reverse order of creation.
func (a *app) close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	var errs []error
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		if err := a.shutdown[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.shutdown = nil
	return errors.Join(errs...)
}
