package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// AWSConfig holds AWS SDK settings shared by the SNS channel and the S3 replay source.
type AWSConfig struct {
	// Region overrides the SDK default region chain. SNS destinations use the
	// topic's own region when this is empty.
	Region string `yaml:"region"`

	// Endpoint is an optional custom endpoint (LocalStack and similar).
	Endpoint string `yaml:"endpoint,omitempty" validate:"omitempty,url"`

	// Static credentials (optional, the default credential chain is used if not set).
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	SessionToken    string `yaml:"session_token,omitempty"`

	// UsePathStyle forces path-style S3 addressing.
	UsePathStyle bool `yaml:"use_path_style"`

	RetryMaxAttempts int `yaml:"retry_max_attempts" validate:"gte=0,lte=10"`
}

// Load resolves an aws.Config. region, when non-empty, takes precedence over the
// configured region.
func (a AWSConfig) Load(ctx context.Context, region string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if region == "" {
		region = a.Region
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	// Use static credentials if provided
	if a.AccessKeyID != "" && a.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(
			a.AccessKeyID,
			a.SecretAccessKey,
			a.SessionToken,
		)
		opts = append(opts, awsconfig.WithCredentialsProvider(creds))
	}

	if a.RetryMaxAttempts > 0 {
		opts = append(opts, awsconfig.WithRetryMaxAttempts(a.RetryMaxAttempts))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

// SNSClient creates an SNS client for region.
func (a AWSConfig) SNSClient(ctx context.Context, region string) (*sns.Client, error) {
	cfg, err := a.Load(ctx, region)
	if err != nil {
		return nil, err
	}
	return sns.NewFromConfig(cfg, func(o *sns.Options) {
		if a.Endpoint != "" {
			o.BaseEndpoint = aws.String(a.Endpoint)
		}
	}), nil
}

// S3Client creates an S3 client.
func (a AWSConfig) S3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := a.Load(ctx, "")
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if a.Endpoint != "" {
			o.BaseEndpoint = aws.String(a.Endpoint)
		}
		o.UsePathStyle = a.UsePathStyle
	}), nil
}
