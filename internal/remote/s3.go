package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/couchcryptid/prism-etl/internal/domain"
)

// s3Store reads from a public S3 mirror of the PRISM archive tree using
// anonymous credentials. Object keys mirror the FTP layout without the
// leading slash.
type s3Store struct {
	client *s3.Client
	bucket string
}

func newS3Store(ctx context.Context, cfg Config) (*s3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 remote store requires a bucket")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("", "", "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	clientOpts := []func(*s3.Options){
		func(o *s3.Options) {
			o.UsePathStyle = true // MinIO compatibility
		},
	}
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return &s3Store{
		client: s3.NewFromConfig(awsCfg, clientOpts...),
		bucket: cfg.Bucket,
	}, nil
}

func (s *s3Store) Glob(ctx context.Context, pattern string) ([]string, error) {
	key := strings.TrimPrefix(pattern, "/")
	prefix := staticPrefix(key)

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var matches []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classifyS3("s3 list "+prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			ok, err := path.Match(key, *obj.Key)
			if err != nil {
				return nil, fmt.Errorf("bad glob pattern %q: %w", pattern, err)
			}
			if ok {
				matches = append(matches, "/"+*obj.Key)
			}
		}
	}
	return matches, nil
}

func (s *s3Store) Fetch(ctx context.Context, remotePath, localPath string) error {
	key := strings.TrimPrefix(remotePath, "/")

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return classifyS3("s3 get "+key, err)
	}
	defer out.Body.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", localPath, err)
	}
	if _, err := io.Copy(f, out.Body); err != nil {
		f.Close() //nolint:errcheck // already failing
		return &domain.TransientError{Op: "s3 transfer " + key, Err: err}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", localPath, err)
	}
	return nil
}

func (s *s3Store) Close() error { return nil }

// staticPrefix returns the pattern up to its first wildcard metacharacter,
// used as the S3 listing prefix to keep result sets small.
func staticPrefix(pattern string) string {
	if i := strings.IndexAny(pattern, "*?["); i >= 0 {
		return pattern[:i]
	}
	return pattern
}

// classifyS3 marks network-level failures as transient. Service replies such
// as NoSuchKey come back as typed API errors and stay permanent; the SDK
// already retries throttling internally.
func classifyS3(op string, err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &domain.TransientError{Op: op, Err: err}
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return &domain.TransientError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
