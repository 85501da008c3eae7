// Package aws narrows the AWS SDK clients down to the calls moviecat makes, so that
// adapters can be exercised against in-memory fakes.
package aws

import (
	"context"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DynamoDBClient defines the DynamoDB operations used by the catalog store.
// It satisfies dynamodb.ScanAPIClient and dynamodb.QueryAPIClient so the SDK
// paginators can drive it.
type DynamoDBClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoDBAdminClient adds the table management calls used for provisioning.
type DynamoDBAdminClient interface {
	DynamoDBClient
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// S3Client defines the S3 operations used for media objects, checkpoints and reports.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Presigner issues presigned object URLs without any network round trip.
type S3Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// IAMClient defines the IAM operations used by the permission preflight.
type IAMClient interface {
	SimulatePrincipalPolicy(ctx context.Context, params *iam.SimulatePrincipalPolicyInput, optFns ...func(*iam.Options)) (*iam.SimulatePrincipalPolicyOutput, error)
}

// Compile-time interface checks to ensure implementations satisfy interfaces
var (
	_ DynamoDBAdminClient = (*DynamoDBClientImpl)(nil)
	_ S3Client            = (*S3ClientImpl)(nil)
	_ IAMClient           = (*IAMClientImpl)(nil)

	// AWS SDK interface checks to ensure SDK clients satisfy interfaces
	_ DynamoDBAdminClient       = (*dynamodb.Client)(nil)
	_ S3Client                  = (*s3.Client)(nil)
	_ S3Presigner               = (*s3.PresignClient)(nil)
	_ IAMClient                 = (*iam.Client)(nil)
	_ dynamodb.ScanAPIClient    = (DynamoDBClient)(nil)
	_ dynamodb.QueryAPIClient   = (DynamoDBClient)(nil)
	_ s3.ListObjectsV2APIClient = (S3Client)(nil)
)
