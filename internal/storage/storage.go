// Package storage archives bank files received and produced by the batch pipelines.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/jukubill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	KindBankTransfer = "bank-transfer"
	KindDebitExport  = "debit-export"
	KindDebitResult  = "debit-result"
)

// Archiver stores a copy of a batch file and returns its key.
type Archiver interface {
	Archive(ctx context.Context, orgID snowflake.ID, kind string, at time.Time, fileName string, body []byte, contentType string) (string, error)
}

var Module = fx.Module("storage",
	fx.Provide(NewArchiver),
)

// NewArchiver returns an S3 archiver when a bucket is configured.
func NewArchiver(cfg config.Config, log *zap.Logger) (Archiver, error) {
	if !cfg.Archive.Enabled() {
		return NopArchiver{}, nil
	}
	return NewS3Archiver(context.Background(), cfg.Archive, log)
}

// Key builds <org>/<kind>/<yyyy>/<mm>/<slug-file>.
func Key(orgID snowflake.ID, kind string, at time.Time, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	base := slug.Make(strings.TrimSuffix(fileName, path.Ext(fileName)))
	if base == "" {
		base = "file"
	}
	return fmt.Sprintf("%d/%s/%s/%s/%s%s", orgID, kind, at.Format("2006"), at.Format("01"), base, ext)
}

// FileName builds a download name from parts, e.g. "jis 2025-04" -> "jis-2025-04.csv".
func FileName(ext string, parts ...string) string {
	return slug.Make(strings.Join(parts, " ")) + ext
}

type NopArchiver struct{}

func (NopArchiver) Archive(_ context.Context, orgID snowflake.ID, kind string, at time.Time, fileName string, _ []byte, _ string) (string, error) {
	return Key(orgID, kind, at, fileName), nil
}

type S3Archiver struct {
	client *s3.Client
	bucket string
	log    *zap.Logger
}

func NewS3Archiver(ctx context.Context, cfg config.ArchiveConfig, log *zap.Logger) (*S3Archiver, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load archive config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Archiver{client: client, bucket: cfg.Bucket, log: log.Named("storage.s3")}, nil
}

func (a *S3Archiver) Archive(ctx context.Context, orgID snowflake.ID, kind string, at time.Time, fileName string, body []byte, contentType string) (string, error) {
	key := Key(orgID, kind, at, fileName)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", key, err)
	}
	a.log.Info("archived batch file", zap.String("key", key), zap.Int("bytes", len(body)))
	return key, nil
}

// Fetch reads an archived file back.
func (a *S3Archiver) Fetch(ctx context.Context, key string) ([]byte, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
