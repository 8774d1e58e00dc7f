package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/iot"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/jitr/internal/handler"
	platformaws "github.com/wolfeidau/jitr/internal/platform/aws"
	"github.com/wolfeidau/jitr/internal/platform/memory"
	"github.com/wolfeidau/jitr/internal/registration"
	"github.com/wolfeidau/jitr/internal/store"
	awsstore "github.com/wolfeidau/jitr/internal/store/aws"
	memorystore "github.com/wolfeidau/jitr/internal/store/memory"
	"github.com/wolfeidau/jitr/internal/telemetry"
	"github.com/wolfeidau/jitr/internal/verifiers"
)

type Globals struct {
	Debug   bool
	Version string
}

// AWSFlags selects the AWS region and, for LocalStack, the endpoint.
type AWSFlags struct {
	Region   string `help:"AWS region" default:"us-east-1" env:"AWS_REGION"`
	Endpoint string `help:"AWS endpoint (for LocalStack)" default:"" env:"AWS_ENDPOINT"`
}

// DealerFlags configures the dealers shared by every boundary.
type DealerFlags struct {
	Platform     string `help:"device platform (aws or memory)" default:"aws" enum:"aws,memory" env:"JITR_PLATFORM"`
	BucketName   string `help:"bucket holding CA certificate bundles" default:"" env:"BUCKET_NAME"`
	BucketPrefix string `help:"key prefix for CA certificate bundles" default:"" env:"BUCKET_PREFIX"`
	Verifiers    string `help:"JSON array of allowed verifier names" default:"" env:"VERIFIERS"`
	VerifiersSSM string `help:"SSM parameter holding the verifier allow-list, read per request" default:"" env:"JITR_VERIFIERS_SSM"`
	JournalTable string `help:"DynamoDB table for the deal journal, in memory when empty" default:"" env:"JITR_JOURNAL_TABLE"`
	Telemetry    bool   `help:"enable OTLP metrics and traces" default:"false" env:"JITR_TELEMETRY"`
}

func (f *DealerFlags) Validate() error {
	if f.Platform == "aws" && f.BucketName == "" {
		return errors.New("bucket name is required (--bucket-name or BUCKET_NAME)")
	}
	if f.Verifiers != "" {
		if _, err := verifiers.Parse(f.Verifiers); err != nil {
			return fmt.Errorf("invalid verifiers: %w", err)
		}
	}
	return nil
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

func loadAWSConfig(ctx context.Context, flags AWSFlags) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(flags.Region),
	}

	// LocalStack accepts any credentials
	if flags.Endpoint != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "test")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if flags.Endpoint != "" {
		cfg.BaseEndpoint = aws.String(flags.Endpoint)
	}

	return cfg, nil
}

// setupTelemetry starts telemetry when enabled and returns its shutdown func.
func setupTelemetry(ctx context.Context, enabled bool, service, version string) func() {
	if !enabled {
		return func() {}
	}

	shutdown, err := telemetry.Init(ctx, service, version)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown telemetry")
		}
	}
}

// newHandlers wires the dealers to either AWS or the in-memory platform.
func newHandlers(ctx context.Context, flags DealerFlags, awsFlags AWSFlags) (*handler.Handlers, error) {
	if err := flags.Validate(); err != nil {
		return nil, err
	}

	cfg := handler.Config{
		Bucket:    registration.Bucket{Name: flags.BucketName, Prefix: flags.BucketPrefix},
		Verifiers: verifiers.JSONSource(flags.Verifiers),
	}

	var journal store.JournalStore = memorystore.NewJournalStore()

	switch flags.Platform {
	case "memory":
		p := memory.New()

		// every allowed verifier approves, so both pipelines can run end to end locally
		names, _ := verifiers.Parse(flags.Verifiers)
		for _, name := range names {
			p.RegisterFunction(name, approveAll)
		}

		if cfg.Bucket.Name == "" {
			cfg.Bucket.Name = "jitr-certificates"
		}
		cfg.Registrar, cfg.Store, cfg.Registry, cfg.Invoker = p, p, p, p

		log.Warn().Strs("verifiers", names).Msg("using in-memory platform, nothing is provisioned")
	default:
		awsCfg, err := loadAWSConfig(ctx, awsFlags)
		if err != nil {
			return nil, err
		}

		devices := platformaws.NewIoT(iot.NewFromConfig(awsCfg))
		cfg.Registrar = devices
		cfg.Registry = devices
		cfg.Store = platformaws.NewS3(s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			// LocalStack serves buckets by path
			o.UsePathStyle = awsFlags.Endpoint != ""
		}))
		cfg.Invoker = platformaws.NewLambda(lambda.NewFromConfig(awsCfg))

		if flags.VerifiersSSM != "" {
			cfg.Verifiers = verifiers.NewSSMSource(ssm.NewFromConfig(awsCfg), flags.VerifiersSSM)
		}

		if flags.JournalTable != "" {
			journal = awsstore.NewJournalStore(dynamodb.NewFromConfig(awsCfg), flags.JournalTable)
		}
	}

	cfg.Journal = journal

	log.Info().
		Str("platform", flags.Platform).
		Str("bucket", cfg.Bucket.Name).
		Str("journal_table", flags.JournalTable).
		Bool("verifiers_ssm", flags.VerifiersSSM != "").
		Msg("dealers configured")

	return handler.New(cfg), nil
}

func approveAll(ctx context.Context, _ []byte) ([]byte, error) {
	return []byte(`{"statusCode":200,"body":{"verified":true}}`), nil
}
