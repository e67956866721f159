package main

import (
	"context"
	"fmt"
	"strings"

	"mediahub/internal/access"
	"mediahub/internal/config"
	"mediahub/internal/db"
	"mediahub/internal/httpapi/handlers"
	"mediahub/internal/storage"
	"mediahub/internal/store"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

type blobBackend struct {
	store  storage.BlobStore
	issuer access.Issuer
	// verifier is set when this process serves the signed download route.
	verifier handlers.BlobVerifier
}

func openBlobs(ctx context.Context, cfg config.Config, logger zerolog.Logger) (blobBackend, error) {
	var b blobBackend
	switch cfg.StorageDriver {
	case config.StorageLocal:
		local, err := storage.NewLocalBlobStore(storage.LocalOptions{
			Root:       cfg.StorageRoot,
			Container:  cfg.BlobContainer,
			PublicBase: storage.JoinURL(cfg.PublicBaseURL, "blobs"),
		})
		if err != nil {
			return b, fmt.Errorf("init local storage: %w", err)
		}
		signer, err := access.NewSignedURLIssuer(access.SignedURLOptions{
			AccountKey: cfg.StorageAccountKey,
			PublicBase: cfg.PublicBaseURL,
		})
		if err != nil {
			return b, fmt.Errorf("init url signer: %w", err)
		}
		b = blobBackend{store: local, issuer: signer, verifier: signer}

	case config.StorageS3:
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return b, err
		}
		b = blobBackend{
			store: storage.NewS3BlobStore(storage.S3Options{
				Client:     client,
				Bucket:     cfg.BlobContainer,
				PublicBase: s3PublicBase(cfg),
			}),
			issuer: access.NewS3Issuer(client, nil),
		}

	case config.StorageMinio:
		client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
			Creds:  miniocreds.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
			Secure: cfg.MinioUseSSL,
			Region: cfg.MinioRegion,
		})
		if err != nil {
			return b, fmt.Errorf("init minio client: %w", err)
		}
		scheme := "http"
		if cfg.MinioUseSSL {
			scheme = "https"
		}
		b = blobBackend{
			store: storage.NewMinioBlobStore(storage.MinioOptions{
				Client:     client,
				Bucket:     cfg.BlobContainer,
				PublicBase: storage.JoinURL(scheme+"://"+cfg.MinioEndpoint, cfg.BlobContainer),
			}),
			issuer: access.NewMinioIssuer(client, nil),
		}

	default:
		return b, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if err := b.store.EnsureContainer(ctx); err != nil {
		return b, fmt.Errorf("ensure container %q: %w", cfg.BlobContainer, err)
	}
	logger.Info().Str("driver", cfg.StorageDriver).Str("container", cfg.BlobContainer).Msg("blob storage ready")
	return b, nil
}

func loadAWSConfig(ctx context.Context, region, accessKey, secretKey string) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

func newS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg.S3Region, cfg.S3AccessKeyID, cfg.S3SecretAccessKey)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3UsePathStyle
	}), nil
}

// s3PublicBase is the unsigned location prefix for objects in the bucket.
func s3PublicBase(cfg config.Config) string {
	if cfg.S3PublicBaseURL != "" {
		return strings.TrimRight(cfg.S3PublicBaseURL, "/")
	}
	if cfg.S3Endpoint != "" {
		return storage.JoinURL(cfg.S3Endpoint, cfg.BlobContainer)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.BlobContainer, cfg.S3Region)
}

func openIndex(ctx context.Context, cfg config.Config, logger zerolog.Logger) (store.Index, func(), error) {
	switch cfg.IndexDriver {
	case config.IndexPostgres:
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			return nil, nil, fmt.Errorf("migrate database: %w", err)
		}
		pool, err := db.Connect(ctx, db.Options{
			URL:             cfg.DatabaseURL,
			MaxConns:        cfg.DBMaxConns,
			MaxConnLifetime: cfg.DBConnLifetime,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		logger.Info().Str("driver", cfg.IndexDriver).Msg("metadata index ready")
		return store.New(pool), pool.Close, nil

	case config.IndexDynamoDB:
		awsCfg, err := loadAWSConfig(ctx, cfg.DynamoDBRegion, "", "")
		if err != nil {
			return nil, nil, err
		}
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.DynamoDBEndpoint != "" {
				o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
			}
		})
		idx := store.NewDynamoStore(client, cfg.TableName)
		if err := idx.EnsureTable(ctx, cfg.DynamoDBTableWait); err != nil {
			return nil, nil, err
		}
		logger.Info().Str("driver", cfg.IndexDriver).Str("table", cfg.TableName).Msg("metadata index ready")
		return idx, func() {}, nil

	case config.IndexMemory:
		logger.Warn().Msg("using in-memory metadata index; records are lost on restart")
		return store.NewMemoryStore(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported index driver %q", cfg.IndexDriver)
	}
}
