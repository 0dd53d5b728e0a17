package store

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/VehicleTaxonomy/internal/config"
	"github.com/JonMunkholm/VehicleTaxonomy/internal/core"
)

// Opened is a store plus the function that releases its resources.
type Opened struct {
	Store core.Store
	Close func()
}

// Open connects the store selected by cfg.Store.Driver. sess is only used
// by the dynamo driver and may be nil otherwise.
func Open(ctx context.Context, cfg *config.Config, sess *session.Session) (*Opened, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		slog.Info("using in-memory store; data is lost on exit")
		return &Opened{Store: NewMemory(), Close: func() {}}, nil

	case config.DriverPostgres:
		pool, err := OpenPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		return &Opened{Store: NewPostgres(pool), Close: pool.Close}, nil

	case config.DriverDynamo:
		if sess == nil {
			return nil, fmt.Errorf("dynamo store needs an AWS session")
		}
		slog.Info("using dynamodb store", "table", cfg.Store.DynamoTable)
		return &Opened{Store: NewDynamo(dynamodb.New(sess), cfg.Store.DynamoTable), Close: func() {}}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// OpenPool creates and pings a pgx pool.
func OpenPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}

// NewAWSSession builds the session shared by the DynamoDB store and S3
// file sources.
func NewAWSSession(cfg config.AWSConfig) (*session.Session, error) {
	awsConfig := &aws.Config{
		Retryer: client.DefaultRetryer{NumMaxRetries: 10},
	}
	if cfg.Profile != "" {
		awsConfig.Credentials = credentials.NewSharedCredentials("", cfg.Profile)
	}
	if cfg.Region != "" {
		awsConfig.Region = aws.String(cfg.Region)
	}
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("create AWS session: %w", err)
	}
	return sess, nil
}
