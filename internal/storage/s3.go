package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/zaldivarmena/mindy/internal/util"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const linkExpiry = 15 * time.Minute

func NewS3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(util.GetEnvString("AWS_REGION", "us-east-1")),
		config.WithBaseEndpoint(util.GetEnv("AWS_ENDPOINT")),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			util.GetEnv("AWS_ACCESS_KEY"),
			util.GetEnv("AWS_SECRET_KEY"),
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	}), nil
}

// ExportStore keeps rendered mind map images in a bucket and hands out
// presigned download links.
type ExportStore struct {
	client         *s3.Client
	bucket         string
	publicEndpoint string
	now            func() time.Time
}

// NewExportStore uses AWS_BUCKET and AWS_PUBLIC_ENDPOINT. An empty public
// endpoint presigns against the client's own endpoint.
func NewExportStore(client *s3.Client) *ExportStore {
	return &ExportStore{
		client:         client,
		bucket:         util.GetEnv("AWS_BUCKET"),
		publicEndpoint: util.GetEnv("AWS_PUBLIC_ENDPOINT"),
		now:            time.Now,
	}
}

// ExportKey is the object key of a course export taken at t.
func ExportKey(courseID string, t time.Time) string {
	course := strings.Trim(strings.ReplaceAll(courseID, "/", "_"), ". ")
	if course == "" {
		course = "unknown"
	}
	return path.Join("mindmaps", course, fmt.Sprintf("%d.png", t.UnixMilli()))
}

// PutExport uploads a PNG and returns its key.
func (s *ExportStore) PutExport(ctx context.Context, courseID string, png []byte) (string, error) {
	key := ExportKey(courseID, s.now())
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(png),
		ContentType: aws.String("image/png"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload export to S3: %w", err)
	}
	return key, nil
}

// DownloadLink presigns a GET for key, signed for the public endpoint so the
// signature matches the Host header browsers send.
func (s *ExportStore) DownloadLink(ctx context.Context, key string) (string, error) {
	var (
		presignClient = s.client
		prefix        string
	)
	if s.publicEndpoint != "" {
		publicURL, err := url.Parse(s.publicEndpoint)
		if err != nil || publicURL.Scheme == "" || publicURL.Host == "" {
			return "", fmt.Errorf("invalid AWS_PUBLIC_ENDPOINT: %s", s.publicEndpoint)
		}
		prefix = strings.TrimSuffix(publicURL.Path, "/")
		base := fmt.Sprintf("%s://%s", publicURL.Scheme, publicURL.Host)

		opts := s.client.Options()
		presignClient = s3.NewFromConfig(
			aws.Config{
				Region:      opts.Region,
				Credentials: opts.Credentials,
				HTTPClient:  opts.HTTPClient,
			},
			func(o *s3.Options) {
				o.BaseEndpoint = aws.String(base)
				o.UsePathStyle = true
			},
		)
	}

	out, err := s3.NewPresignClient(presignClient).PresignGetObject(
		ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		},
		s3.WithPresignExpires(linkExpiry),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate download link: %w", err)
	}
	if prefix == "" {
		return out.URL, nil
	}

	signedURL, err := url.Parse(out.URL)
	if err != nil {
		return "", fmt.Errorf("failed to parse presigned url: %w", err)
	}
	signedURL.Path = prefix + signedURL.Path
	return signedURL.String(), nil
}
