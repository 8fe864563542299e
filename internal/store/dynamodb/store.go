// Package dynamodb implements store.Store on an AWS DynamoDB table keyed by a
// string partition key named "key".
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/JakeFAU/linkmeta/internal/store"
)

// DefaultTable is used when Config.Table is empty.
const DefaultTable = "linkmeta_kv"

// maxScanPage caps the items evaluated per Scan request.
const maxScanPage = 1000

// quotaCodes are DynamoDB error codes reported as store.ErrQuotaExceeded.
var quotaCodes = map[string]bool{
	"ProvisionedThroughputExceededException":   true,
	"RequestLimitExceeded":                     true,
	"ItemCollectionSizeLimitExceededException": true,
}

// Config selects the table and, for DynamoDB Local, the endpoint.
type Config struct {
	Table    string
	Region   string
	Endpoint string
}

// client is the subset of *dynamodb.Client used by Store.
type client interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

type item struct {
	Key   string `dynamodbav:"key"`
	Value []byte `dynamodbav:"value"`
}

// Store persists values as items of a DynamoDB table.
type Store struct {
	client client
	table  string
}

// New loads the default AWS configuration, connects, and verifies that the
// table exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	c := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	s := NewWithClient(c, cfg.Table)
	if _, err := c.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}); err != nil {
		return nil, fmt.Errorf("describe table %s: %w", s.table, err)
	}
	return s, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(c client, table string) *Store {
	if table == "" {
		table = DefaultTable
	}
	return &Store{client: c, table: table}
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            keyAttr(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb get %q: %w", key, wrapErr(err))
	}
	if out.Item == nil {
		return nil, store.ErrNotFound
	}
	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("dynamodb decode %q: %w", key, err)
	}
	return it.Value, nil
}

// Set implements store.Store.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	av, err := attributevalue.MarshalMap(item{Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("dynamodb encode %q: %w", key, err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("dynamodb put %q: %w", key, wrapErr(err))
	}
	return nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       keyAttr(key),
	}); err != nil {
		return fmt.Errorf("dynamodb delete %q: %w", key, wrapErr(err))
	}
	return nil
}

// Keys implements store.Store. It scans the table with a begins_with filter
// and stops paging once limit keys are collected.
func (s *Store) Keys(ctx context.Context, prefix string, limit int) ([]string, error) {
	in := &dynamodb.ScanInput{
		TableName:                aws.String(s.table),
		ProjectionExpression:     aws.String("#k"),
		ExpressionAttributeNames: map[string]string{"#k": "key"},
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(min(limit, maxScanPage)))
	}
	if prefix != "" {
		in.FilterExpression = aws.String("begins_with(#k, :p)")
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":p": &types.AttributeValueMemberS{Value: prefix},
		}
	}

	var keys []string
	pages := dynamodb.NewScanPaginator(s.client, in)
	for pages.HasMorePages() && (limit <= 0 || len(keys) < limit) {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamodb scan: %w", wrapErr(err))
		}
		for _, raw := range page.Items {
			var it item
			if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
				return nil, fmt.Errorf("dynamodb decode key: %w", err)
			}
			keys = append(keys, it.Key)
			if limit > 0 && len(keys) >= limit {
				break
			}
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func keyAttr(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"key": &types.AttributeValueMemberS{Value: key}}
}

func wrapErr(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && quotaCodes[apiErr.ErrorCode()] {
		return fmt.Errorf("%w: %w", store.ErrQuotaExceeded, err)
	}
	return err
}
