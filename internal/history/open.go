package history

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/rs/zerolog/log"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendDynamo = "dynamodb"
)

// Options selects and configures a backend.
type Options struct {
	Backend     string
	DataDir     string // sqlite
	DynamoTable string // dynamodb
	AWSRegion   string // dynamodb, optional
}

// Open creates the configured Store. An empty backend means sqlite.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case "", BackendSQLite:
		return NewSQLiteStore(opts.DataDir)
	case BackendDynamo:
		if opts.DynamoTable == "" {
			return nil, fmt.Errorf("history backend %q requires a table name", BackendDynamo)
		}
		var loadOpts []func(*awsconfig.LoadOptions) error
		if opts.AWSRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(opts.AWSRegion))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		log.Debug().Str("table", opts.DynamoTable).Str("region", cfg.Region).Msg("Using DynamoDB history store")
		return NewDynamoStore(dynamodb.NewFromConfig(cfg), opts.DynamoTable), nil
	default:
		return nil, fmt.Errorf("unknown history backend %q (want memory, sqlite or dynamodb)", opts.Backend)
	}
}
