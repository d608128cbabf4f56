package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/rowquery/logger"
	"github.com/kbukum/rowquery/pipeline"
	"github.com/kbukum/rowquery/query"
	"github.com/kbukum/rowquery/validation"
)

// Loader opens a fresh row source for one request.
type Loader func(ctx context.Context) (*pipeline.Pipeline[query.Row], error)

type rowsParams struct {
	criteria   []query.SortCriterion
	offset     int
	limit      int
	skipHeader bool
}

// CachedRows is a stored /rows result.
type CachedRows struct {
	Data [][]string `json:"data"`
	Meta Meta       `json:"meta"`
}

// ResultCache stores /rows results by normalized request parameters.
// Load returns (nil, nil) on a miss.
type ResultCache interface {
	Load(ctx context.Context, key string) (*CachedRows, error)
	Save(ctx context.Context, key string, val *CachedRows, ttl time.Duration) error
}

// HeaderCache reports HIT or MISS when a result cache is configured.
const HeaderCache = "X-Cache"

// RowsHandler serves GET /rows. Supported parameters:
//
//	sort=0:asc,2:desc   repeated or comma separated, column[:asc|desc]
//	offset=10           rows to skip after filtering and sorting
//	limit=20            rows to return, -1 for all
//	skip_header=true    drop the first source row
//
// Invalid parameters answer 400. A row lacking a sort column answers 422.
func RowsHandler(load Loader, opts ...query.Option) gin.HandlerFunc {
	return (&rowsEndpoint{load: load, opts: opts}).serve
}

type rowsEndpoint struct {
	load Loader
	opts []query.Option

	cache ResultCache
	ttl   time.Duration
	log   *logger.Logger
}

func (e *rowsEndpoint) serve(c *gin.Context) {
	params, err := parseRowsParams(c)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	q, err := params.query(e.opts)
	if err != nil {
		RespondWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	key := params.cacheKey()
	if cached := e.lookup(ctx, key); cached != nil {
		c.Header(HeaderCache, "HIT")
		RespondOKWithMeta(c, cached.Data, &cached.Meta)
		return
	}
	if e.cache != nil {
		c.Header(HeaderCache, "MISS")
	}

	src, err := e.load(ctx)
	if err != nil {
		RespondWithError(c, err)
		return
	}

	rows, err := pipeline.Collect(ctx, query.ExecuteMap(q, src, query.Row.Strings))
	if err != nil {
		RespondWithError(c, err)
		return
	}
	if rows == nil {
		rows = [][]string{}
	}

	result := &CachedRows{
		Data: rows,
		Meta: Meta{Count: len(rows), Offset: params.offset, Limit: params.limit},
	}
	for _, crit := range params.criteria {
		result.Meta.Sort = append(result.Meta.Sort, crit.String())
	}
	e.store(ctx, key, result)
	RespondOKWithMeta(c, result.Data, &result.Meta)
}

// lookup treats cache failures as misses.
func (e *rowsEndpoint) lookup(ctx context.Context, key string) *CachedRows {
	if e.cache == nil {
		return nil
	}
	cached, err := e.cache.Load(ctx, key)
	if err != nil {
		e.log.WithContext(ctx).Warn("result cache load failed", logger.ErrorFields("cache_load", err))
		return nil
	}
	return cached
}

func (e *rowsEndpoint) store(ctx context.Context, key string, result *CachedRows) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Save(ctx, key, result, e.ttl); err != nil {
		e.log.WithContext(ctx).Warn("result cache save failed", logger.ErrorFields("cache_save", err))
	}
}

func parseRowsParams(c *gin.Context) (rowsParams, error) {
	p := rowsParams{limit: query.NoLimit}
	v := validation.New()

	v.Int("offset", c.Query("offset"), &p.offset)
	v.Min("offset", p.offset, 0)
	v.Int("limit", c.Query("limit"), &p.limit)
	v.Min("limit", p.limit, query.NoLimit)
	v.Bool("skip_header", c.Query("skip_header"), &p.skipHeader)

	for _, raw := range sortKeys(c.QueryArray("sort")) {
		crit, err := query.ParseSort(raw)
		if err != nil {
			v.AddError("sort", fmt.Sprintf("%q must look like column[:asc|desc]", raw))
			continue
		}
		p.criteria = append(p.criteria, crit)
	}

	if appErr := v.Validate(); appErr != nil {
		return p, appErr
	}
	return p, nil
}

// sortKeys flattens repeated and comma separated sort values.
func sortKeys(values []string) []string {
	var keys []string
	for _, value := range values {
		for _, key := range strings.Split(value, ",") {
			if key = strings.TrimSpace(key); key != "" {
				keys = append(keys, key)
			}
		}
	}
	return keys
}

// cacheKey is the same for requests that differ only in spelling, e.g.
// "sort=0" and "sort=0:asc".
func (p rowsParams) cacheKey() string {
	keys := make([]string, len(p.criteria))
	for i, crit := range p.criteria {
		keys[i] = crit.String()
	}
	return fmt.Sprintf("sort=%s&offset=%d&limit=%d&skip_header=%t",
		strings.Join(keys, ","), p.offset, p.limit, p.skipHeader)
}

func (p rowsParams) query(opts []query.Option) (*query.Query, error) {
	q := query.New(opts...)
	if p.skipHeader {
		q.AddFilter(query.SkipHeader())
	}
	for _, crit := range p.criteria {
		if _, err := q.AddSort(crit.Column, crit.Direction); err != nil {
			return nil, err
		}
	}
	if _, err := q.SetOffset(p.offset); err != nil {
		return nil, err
	}
	if _, err := q.SetLimit(p.limit); err != nil {
		return nil, err
	}
	return q, nil
}
