package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	apperrors "github.com/kbukum/rowquery/errors"
	"github.com/kbukum/rowquery/observability"
	"github.com/kbukum/rowquery/pipeline"
	"github.com/kbukum/rowquery/query"
)

// DefaultRegion is used when S3Config.Region is empty.
const DefaultRegion = "us-east-1"

// S3Config configures access to Amazon S3 or an S3-compatible store such as
// MinIO. Without static keys the default AWS credential chain is used.
type S3Config struct {
	Region string `yaml:"region" mapstructure:"region"`
	// Endpoint overrides the AWS endpoint. Setting it implies path-style URLs.
	Endpoint       string `yaml:"endpoint" mapstructure:"endpoint" validate:"omitempty,url"`
	AccessKey      string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey      string `yaml:"secret_key" mapstructure:"secret_key" validate:"required_with=AccessKey"`
	ForcePathStyle bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
}

// ApplyDefaults fills in the region.
func (c *S3Config) ApplyDefaults() {
	if c.Region == "" {
		c.Region = DefaultRegion
	}
}

// ObjectAPI is the part of the S3 client a row source needs.
type ObjectAPI interface {
	GetObject(ctx context.Context, in *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *awss3.HeadObjectInput, optFns ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
}

// NewS3Client builds an S3 client from cfg.
func NewS3Client(ctx context.Context, cfg S3Config) (*awss3.Client, error) {
	cfg.ApplyDefaults()
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle || cfg.Endpoint != ""
	}), nil
}

// Object names an S3 object.
type Object struct {
	Bucket string
	Key    string
}

// String returns the s3://bucket/key form.
func (o Object) String() string {
	return "s3://" + o.Bucket + "/" + o.Key
}

// ParseObjectURL splits an s3://bucket/key location. ok is false for
// anything that is not an s3 URL, which callers treat as a local path.
func ParseObjectURL(raw string) (obj Object, ok bool, err error) {
	if !strings.HasPrefix(strings.ToLower(raw), "s3://") {
		return Object{}, false, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Object{}, true, apperrors.InvalidFormat("file", "s3://bucket/key").WithCause(err)
	}
	obj = Object{Bucket: u.Host, Key: strings.TrimPrefix(u.Path, "/")}
	if obj.Bucket == "" || obj.Key == "" {
		return Object{}, true, apperrors.InvalidFormat("file", "s3://bucket/key")
	}
	return obj, true, nil
}

// OpenS3CSV starts reading obj. Close closes the object body.
func OpenS3CSV(ctx context.Context, api ObjectAPI, obj Object, opts ...CSVOption) (*CSV, error) {
	if err := CheckOptions(opts...); err != nil {
		return nil, err
	}
	body, err := getObject(ctx, api, obj)
	if err != nil {
		return nil, err
	}
	c, err := newCSV(body, body, obj.String(), opts)
	if err != nil {
		_ = body.Close()
		return nil, err
	}
	return c, nil
}

// OpenS3XLSX downloads obj and opens sheet of the workbook.
func OpenS3XLSX(ctx context.Context, api ObjectAPI, obj Object, sheet string) (*XLSX, error) {
	body, err := getObject(ctx, api, obj)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return NewXLSX(body, sheet)
}

// S3Loader returns a loader that fetches obj afresh on every call.
func S3Loader(api ObjectAPI, obj Object, opts ...CSVOption) func(ctx context.Context) (*pipeline.Pipeline[query.Row], error) {
	return func(ctx context.Context) (*pipeline.Pipeline[query.Row], error) {
		c, err := OpenS3CSV(ctx, api, obj, opts...)
		if err != nil {
			return nil, err
		}
		return c.Pipeline(), nil
	}
}

// S3XLSXLoader is S3Loader for workbooks.
func S3XLSXLoader(api ObjectAPI, obj Object, sheet string) func(ctx context.Context) (*pipeline.Pipeline[query.Row], error) {
	return func(ctx context.Context) (*pipeline.Pipeline[query.Row], error) {
		x, err := OpenS3XLSX(ctx, api, obj, sheet)
		if err != nil {
			return nil, err
		}
		return x.Pipeline(), nil
	}
}

func getObject(ctx context.Context, api ObjectAPI, obj Object) (io.ReadCloser, error) {
	out, err := api.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(obj.Bucket),
		Key:    aws.String(obj.Key),
	})
	if err != nil {
		return nil, objectError(obj, err)
	}
	return out.Body, nil
}

// S3Health reports whether obj exists and is reachable.
func S3Health(api ObjectAPI, obj Object) observability.HealthChecker {
	return observability.CheckerFunc(func(ctx context.Context) observability.Health {
		h := observability.Health{Name: "s3", Details: map[string]string{"object": obj.String()}}
		_, err := api.HeadObject(ctx, &awss3.HeadObjectInput{
			Bucket: aws.String(obj.Bucket),
			Key:    aws.String(obj.Key),
		})
		if err != nil {
			h.Status = observability.HealthStatusDown
			h.Message = err.Error()
			return h
		}
		h.Status = observability.HealthStatusUp
		return h
	})
}

// objectError maps a missing object to NOT_FOUND and every other service
// failure to a retryable SOURCE_UNAVAILABLE.
func objectError(obj Object, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var (
		noKey    *types.NoSuchKey
		noBucket *types.NoSuchBucket
		notFound *types.NotFound
	)
	if errors.As(err, &noKey) || errors.As(err, &noBucket) || errors.As(err, &notFound) {
		return apperrors.NotFound("object", obj.String()).WithCause(err)
	}

	appErr := apperrors.SourceUnavailable("s3", err).WithDetail("object", obj.String())
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		appErr.WithDetail("aws_code", apiErr.ErrorCode())
	}
	return appErr
}
