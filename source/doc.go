// Package source produces row pipelines from CSV input, read from a local
// file or an S3 object.
//
//	src, err := source.OpenCSV("data/names.csv", source.WithDelimiter(';'))
//	if err != nil {
//		return err
//	}
//	rows, err := pipeline.Collect(ctx, query.New().MustLimit(20).Execute(src.Pipeline()))
//
// FileLoader and S3Loader reopen their input on every call, for servers that
// run one query per request. A missing file or object is NOT_FOUND; a failed
// S3 call is a retryable SOURCE_UNAVAILABLE.
//
// Records of differing length are passed through untouched; whether a short
// row is acceptable is decided by the query that consumes it.
package source
