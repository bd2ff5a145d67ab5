// Package directory answers identity-availability lookups against the
// portal's DynamoDB user table.
package directory

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ClientConfig carries the AWS connection settings.
type ClientConfig struct {
	Region      string
	EndpointURL string // empty in prod, set to a LocalStack URL in dev
	AccessKeyID string
	SecretKey   string
}

// NewClient creates a DynamoDB client. When cfg.EndpointURL is set
// (LocalStack), it overrides the endpoint so all traffic goes to the local
// instance.
func NewClient(ctx context.Context, cfg ClientConfig) (*dynamodb.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	clientOpts := []func(*dynamodb.Options){}
	if cfg.EndpointURL != "" {
		clientOpts = append(clientOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		})
	}

	return dynamodb.NewFromConfig(awsCfg, clientOpts...), nil
}

// Directory implements [verify.IdentityLookup] against the user table's
// email GSI. Only existence is queried; no user attributes leave this
// package.
type Directory struct {
	client    *dynamodb.Client
	tableName string
	indexName string
}

func New(client *dynamodb.Client, tableName string) *Directory {
	return &Directory{
		client:    client,
		tableName: tableName,
		indexName: "email-index",
	}
}

func (d *Directory) Exists(ctx context.Context, identityKey string) (bool, error) {
	keyValue, err := attributevalue.Marshal(identityKey)
	if err != nil {
		return false, fmt.Errorf("marshal identity key: %w", err)
	}

	out, err := d.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(d.tableName),
		IndexName:              aws.String(d.indexName),
		KeyConditionExpression: aws.String("email = :e"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":e": keyValue,
		},
		Select: types.SelectCount,
		Limit:  aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("query email index: %w", err)
	}

	return out.Count > 0, nil
}

// StaticDirectory is an in-memory [verify.IdentityLookup] for development
// and tests.
type StaticDirectory map[string]bool

func (d StaticDirectory) Exists(_ context.Context, identityKey string) (bool, error) {
	return d[identityKey], nil
}
