// Package storage archives finished KPI bundles for audit trails and
// dashboard warm starts. Writes happen after a reconciliation pass
// completes, never on the request path's critical section; an archive
// failure is logged, not surfaced.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/civicpulse/fundraise-monitor/internal/domain"
)

// SnapshotArchive stores full bundle JSON in S3 and a latest-bundle
// pointer item in DynamoDB.
type SnapshotArchive struct {
	dynamoDB  *dynamodb.Client
	s3Client  *s3.Client
	tableName string
	bucket    string
}

// snapshotItem is the DynamoDB pointer record.
type snapshotItem struct {
	PK        string `dynamodbav:"PK"` // ORG#<org_id>
	SK        string `dynamodbav:"SK"` // LATEST or SNAP#<generated_at>
	S3Key     string `dynamodbav:"S3Key"`
	Data      string `dynamodbav:"Data"`
	Timestamp string `dynamodbav:"Timestamp"`
	TTL       int64  `dynamodbav:"TTL,omitempty"`
}

// NewSnapshotArchive creates an archive over AWS. Pass an empty profile
// to use the default credential chain.
func NewSnapshotArchive(ctx context.Context, tableName, bucket, region, profile string) (*SnapshotArchive, error) {
	var cfg aws.Config
	var err error

	if profile != "" {
		cfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
			awsconfig.WithSharedConfigProfile(profile),
		)
	} else {
		cfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &SnapshotArchive{
		dynamoDB:  dynamodb.NewFromConfig(cfg),
		s3Client:  s3.NewFromConfig(cfg),
		tableName: tableName,
		bucket:    bucket,
	}, nil
}

// SaveBundle writes the full bundle JSON to S3 and updates the LATEST
// pointer in DynamoDB.
func (a *SnapshotArchive) SaveBundle(ctx context.Context, bundle *domain.KPIBundle) error {
	data, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("marshaling bundle: %w", err)
	}

	key := fmt.Sprintf("kpi-bundles/%s/%s_%s/%s.json",
		bundle.OrganizationID, bundle.StartDate, bundle.EndDate,
		bundle.GeneratedAt.UTC().Format("20060102T150405Z"))

	_, err = a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("putting bundle to S3: %w", err)
	}

	item := snapshotItem{
		PK:        fmt.Sprintf("ORG#%s", bundle.OrganizationID),
		SK:        "LATEST",
		S3Key:     key,
		Data:      string(data),
		Timestamp: bundle.GeneratedAt.UTC().Format(time.RFC3339),
		TTL:       time.Now().Add(90 * 24 * time.Hour).Unix(), // 90 day TTL
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshaling snapshot item: %w", err)
	}

	_, err = a.dynamoDB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(a.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting snapshot pointer to DynamoDB: %w", err)
	}

	return nil
}

// LoadLatest retrieves the most recent archived bundle for an
// organization, for dashboard warm starts before the first live
// reconciliation completes. Returns (nil, nil) when none exists.
func (a *SnapshotArchive) LoadLatest(ctx context.Context, orgID string) (*domain.KPIBundle, error) {
	result, err := a.dynamoDB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(a.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("ORG#%s", orgID)},
			"SK": &types.AttributeValueMemberS{Value: "LATEST"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting snapshot pointer: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var item snapshotItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot item: %w", err)
	}

	var bundle domain.KPIBundle
	if err := json.Unmarshal([]byte(item.Data), &bundle); err != nil {
		return nil, fmt.Errorf("unmarshaling bundle: %w", err)
	}
	return &bundle, nil
}

// LoadBundleFromS3 retrieves one archived bundle by its S3 key, for
// audit comparison against a recomputed bundle.
func (a *SnapshotArchive) LoadBundleFromS3(ctx context.Context, key string) (*domain.KPIBundle, error) {
	out, err := a.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting bundle from S3: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading bundle body: %w", err)
	}

	var bundle domain.KPIBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("unmarshaling bundle: %w", err)
	}
	return &bundle, nil
}
