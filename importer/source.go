package importer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gurre/moviecat/aws"
)

// sourceFile is one object to import.
type sourceFile struct {
	Key  string
	Size int64
}

// listSourceFiles returns every .jsonl or .json object under prefix, sorted by key.
func listSourceFiles(ctx context.Context, client aws.S3Client, bucket, prefix string) ([]sourceFile, error) {
	p := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: awssdk.String(bucket),
		Prefix: awssdk.String(prefix),
	})

	var files []sourceFile
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			key := awssdk.ToString(obj.Key)
			if strings.HasSuffix(key, ".jsonl") || strings.HasSuffix(key, ".json") {
				files = append(files, sourceFile{Key: key, Size: awssdk.ToInt64(obj.Size)})
			}
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Key < files[j].Key })
	return files, nil
}
