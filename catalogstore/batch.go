package catalogstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/gurre/moviecat/model"
)

// maxBatchSize is the BatchWriteItem request limit.
const maxBatchSize = 25

// PutBatch upserts movies in BatchWriteItem chunks of 25. Unprocessed items are
// resubmitted with backoff until DynamoDB accepts them or ctx ends. Like Put, each
// stored version is one past the version supplied.
//
// Performance notes:
//   - 25 items per call is the service maximum and minimizes round trips
//   - Unprocessed items signal throttling and are retried without a cap
func (s *DynamoStore) PutBatch(ctx context.Context, movies []model.Movie) error {
	for i := 0; i < len(movies); i += maxBatchSize {
		end := min(i+maxBatchSize, len(movies))

		requests := make([]types.WriteRequest, 0, end-i)
		for _, m := range movies[i:end] {
			m.Version++
			item, err := marshalMovie(m)
			if err != nil {
				return model.StoreError("encode movie", err)
			}
			requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
		}

		if err := s.writeBatch(ctx, requests); err != nil {
			return err
		}
	}
	return nil
}

func (s *DynamoStore) writeBatch(ctx context.Context, requests []types.WriteRequest) error {
	input := &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{s.table: requests},
	}

	for attempt := 0; ; attempt++ {
		var out *dynamodb.BatchWriteItemOutput
		err := s.call(ctx, func() error {
			var err error
			out, err = s.client.BatchWriteItem(ctx, input)
			return err
		})
		if err != nil {
			return model.StoreError(fmt.Sprintf("batch write %d movies", len(requests)), err)
		}

		pending := out.UnprocessedItems[s.table]
		if len(pending) == 0 {
			return nil
		}
		s.logger.Debug("resubmitting unprocessed movies", slog.Int("count", len(pending)), slog.Int("attempt", attempt+1))
		input.RequestItems = map[string][]types.WriteRequest{s.table: pending}
		if !backoffWait(ctx, s.retryBase, attempt) {
			return model.StoreError("batch write movies", ctx.Err())
		}
	}
}
