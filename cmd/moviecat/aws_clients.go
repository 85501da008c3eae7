package main

import (
	"context"
	"fmt"
	"os"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gurre/s3streamer"

	"github.com/gurre/moviecat/aws"
	"github.com/gurre/moviecat/config"
)

// newAWSClients builds SDK clients from the default credential chain. With a custom
// endpoint and no credentials in the environment, static local credentials are used.
func newAWSClients(ctx context.Context, cfg *config.Config) (*clients, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.Endpoint != "" && os.Getenv("AWS_ACCESS_KEY_ID") == "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var endpoint *string
	if cfg.Endpoint != "" {
		endpoint = awssdk.String(cfg.Endpoint)
	}

	dynamoClient := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		o.BaseEndpoint = endpoint
	})
	rawS3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = endpoint
		o.UsePathStyle = endpoint != nil
	})
	iamClient := iam.NewFromConfig(awsCfg, func(o *iam.Options) {
		o.BaseEndpoint = endpoint
	})

	return &clients{
		dynamo:    aws.NewDynamoDBClient(dynamoClient),
		s3:        aws.NewS3Client(rawS3Client),
		presigner: s3.NewPresignClient(rawS3Client),
		streamer:  s3streamer.NewS3Streamer(rawS3Client),
		iam:       aws.NewIAMClient(iamClient),
	}, nil
}
