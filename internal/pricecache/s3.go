package pricecache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/aristath/etfscope/internal/domain"
)

// S3Config describes the bucket holding cached CSV files.
// Endpoint is set for S3-compatible stores (R2, MinIO) and switches to path-style addressing.
type S3Config struct {
	Bucket    string
	Prefix    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// S3API is the subset of the S3 client the store uses.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store keeps one "<prefix>/<TICKER>.csv" object per ticker.
type S3Store struct {
	client     S3API
	downloader *manager.Downloader
	bucket     string
	prefix     string
}

// NewS3Store builds an S3 client from the default AWS configuration chain,
// overridden by any explicit credentials, region or endpoint.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 cache requires a bucket")
	}

	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		// S3-compatible stores often reject the newer default checksums
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	return NewS3StoreWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{
		client:     client,
		downloader: manager.NewDownloader(client),
		bucket:     bucket,
		prefix:     strings.Trim(prefix, "/"),
	}
}

// Load downloads and decodes the cached history for a ticker.
func (s *S3Store) Load(ctx context.Context, ticker string) (domain.RawHistory, error) {
	buf := manager.NewWriteAtBuffer(nil)
	_, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(ticker)),
	})
	if err != nil {
		if isNotFound(err) {
			return domain.RawHistory{}, domain.ErrCacheMiss
		}
		return domain.RawHistory{}, fmt.Errorf("%w: failed to download %s: %w", domain.ErrCacheRead, s.key(ticker), err)
	}

	raw, err := DecodeCSV(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return domain.RawHistory{}, fmt.Errorf("failed to decode %s: %w", s.key(ticker), err)
	}
	return raw, nil
}

// Save uploads the history, replacing any previous object.
func (s *S3Store) Save(ctx context.Context, ticker string, raw domain.RawHistory) error {
	data, err := MarshalCSV(raw)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", ticker, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(ticker)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", s.key(ticker), err)
	}
	return nil
}

// Tickers lists the cached tickers in alphabetical order.
func (s *S3Store) Tickers(ctx context.Context) ([]string, error) {
	listPrefix := ""
	if s.prefix != "" {
		listPrefix = s.prefix + "/"
	}

	var tickers []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(listPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", s.bucket, listPrefix, err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), listPrefix)
			if strings.Contains(name, "/") || !strings.HasSuffix(name, csvExt) {
				continue
			}
			ticker, err := url.PathUnescape(strings.TrimSuffix(name, csvExt))
			if err != nil {
				continue
			}
			tickers = append(tickers, ticker)
		}
	}
	sort.Strings(tickers)
	return tickers, nil
}

func (s *S3Store) key(ticker string) string {
	return path.Join(s.prefix, fileNameEscaper.Replace(ticker)+csvExt)
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}
