package catalogstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/gurre/moviecat/aws"
)

// CreateTable provisions the movie table: hash key movieId, range key movieName,
// and a genre GSI (genreKey, movieName) projecting all attributes. An existing
// table is left untouched.
func CreateTable(ctx context.Context, client aws.DynamoDBAdminClient, table, genreIndex string) error {
	input := &dynamodb.CreateTableInput{
		TableName: awssdk.String(table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: awssdk.String(attrMovieID), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: awssdk.String(attrMovieName), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: awssdk.String(attrGenreKey), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: awssdk.String(attrMovieID), KeyType: types.KeyTypeHash},
			{AttributeName: awssdk.String(attrMovieName), KeyType: types.KeyTypeRange},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: awssdk.String(genreIndex),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: awssdk.String(attrGenreKey), KeyType: types.KeyTypeHash},
					{AttributeName: awssdk.String(attrMovieName), KeyType: types.KeyTypeRange},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	}

	_, err := client.CreateTable(ctx, input)
	var inUse *types.ResourceInUseException
	if errors.As(err, &inUse) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// WaitForTable blocks until the table reports ACTIVE or maxWait elapses.
func WaitForTable(ctx context.Context, client dynamodb.DescribeTableAPIClient, table string, maxWait time.Duration) error {
	waiter := dynamodb.NewTableExistsWaiter(client, func(o *dynamodb.TableExistsWaiterOptions) {
		o.MinDelay = 2 * time.Second
	})
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: awssdk.String(table)}, maxWait); err != nil {
		return fmt.Errorf("wait for table %s: %w", table, err)
	}
	return nil
}
