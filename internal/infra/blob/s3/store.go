// Package s3 serves dataset documents from an S3-compatible bucket (AWS S3
// or MinIO).
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"thermofit/internal/blob/object"
)

var _ object.Store = (*Store)(nil)

// DefaultRegion is used when no region is configured.
const DefaultRegion = "us-east-1"

// Store implements object.Store on a single bucket. Keys map to object keys
// directly.
type Store struct {
	client *s3.Client
	bucket string
	now    func() time.Time
}

// Config holds explicit construction parameters. Credentials fall back to
// the default AWS chain when AccessKeyID is empty.
type Config struct {
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	PathStyle       bool   `yaml:"path_style"`
}

// ErrBucketRequired is returned when Config has no bucket.
var ErrBucketRequired = errors.New("s3: bucket required")

// New creates an S3 document store from Config.
func New(ctx context.Context, cfg Config, optFns ...func(*s3.Options)) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, ErrBucketRequired
	}
	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		for _, fn := range optFns {
			fn(o)
		}
	})
	return &Store{client: client, bucket: cfg.Bucket, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Bucket returns the bucket backing the store.
func (s *Store) Bucket() string { return s.bucket }

// Driver returns the blob driver identifier.
func (s *Store) Driver() object.Driver { return object.DriverS3 }

// Put uploads a new document. Existing keys are rejected both by a HEAD probe
// and by a conditional write.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts object.PutOptions) (object.Info, error) {
	k, err := object.CleanKey(key)
	if err != nil {
		return object.Info{}, err
	}
	if _, err := s.Head(ctx, k); err == nil {
		return object.Info{}, fmt.Errorf("%w: %s", object.ErrExists, k)
	} else if !errors.Is(err, object.ErrNotFound) {
		return object.Info{}, err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return object.Info{}, err
	}
	contentType := opts.ContentType
	if contentType == "" {
		contentType = object.ContentTypeFor(k)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(k),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
		IfNoneMatch:   aws.String("*"),
	})
	if err != nil {
		return object.Info{}, s.translate(k, err)
	}
	return s.Head(ctx, k)
}

// Get streams a document. The caller closes the body.
func (s *Store) Get(ctx context.Context, key string) (object.Info, io.ReadCloser, error) {
	k, err := object.CleanKey(key)
	if err != nil {
		return object.Info{}, nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(k)})
	if err != nil {
		return object.Info{}, nil, s.translate(k, err)
	}
	return s.info(k, out.ContentLength, out.ContentType, out.ETag, out.LastModified), out.Body, nil
}

// Head returns document metadata.
func (s *Store) Head(ctx context.Context, key string) (object.Info, error) {
	k, err := object.CleanKey(key)
	if err != nil {
		return object.Info{}, err
	}
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(k)})
	if err != nil {
		return object.Info{}, s.translate(k, err)
	}
	return s.info(k, out.ContentLength, out.ContentType, out.ETag, out.LastModified), nil
}

// Delete removes a document, reporting whether it existed beforehand.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	k, err := object.CleanKey(key)
	if err != nil {
		return false, err
	}
	if _, err := s.Head(ctx, k); err != nil {
		if errors.Is(err, object.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(k)}); err != nil {
		return false, s.translate(k, err)
	}
	return true, nil
}

// List pages through every object under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]object.Info, error) {
	var infos []object.Info
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s/%s: %w", s.bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			infos = append(infos, object.Info{
				Key:          key,
				Size:         aws.ToInt64(obj.Size),
				ContentType:  object.ContentTypeFor(key),
				ETag:         strings.Trim(aws.ToString(obj.ETag), `"`),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (s *Store) info(key string, size *int64, contentType, etag *string, lastModified *time.Time) object.Info {
	lm := s.now()
	if lastModified != nil {
		lm = *lastModified
	}
	ct := aws.ToString(contentType)
	if ct == "" {
		ct = object.ContentTypeFor(key)
	}
	return object.Info{
		Key:          key,
		Size:         aws.ToInt64(size),
		ContentType:  ct,
		ETag:         strings.Trim(aws.ToString(etag), `"`),
		LastModified: lm,
	}
}

func (s *Store) translate(key string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return fmt.Errorf("%w: %s", object.ErrNotFound, key)
		case "PreconditionFailed":
			return fmt.Errorf("%w: %s", object.ErrExists, key)
		}
	}
	return fmt.Errorf("s3 %s/%s: %w", s.bucket, key, err)
}
