package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/driftlock-systems/driftlock/pkg/types"
)

// PutPrediction stores a prediction using dual-write: truth item for ID
// lookup plus a list copy under the model's partition for window reads.
func (p *Provider) PutPrediction(ctx context.Context, rec types.PredictionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling prediction: %w", err)
	}

	ttl := fmt.Sprintf("%d", ttlEpoch(p.retentionTTL))

	_, err = p.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []ddbtypes.TransactWriteItem{
			{
				Put: &ddbtypes.Put{
					TableName: &p.tableName,
					Item: map[string]ddbtypes.AttributeValue{
						"PK":   &ddbtypes.AttributeValueMemberS{Value: predictionPK(rec.ID)},
						"SK":   &ddbtypes.AttributeValueMemberS{Value: skRecord},
						"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
						"ttl":  &ddbtypes.AttributeValueMemberN{Value: ttl},
					},
				},
			},
			{
				Put: &ddbtypes.Put{
					TableName: &p.tableName,
					Item: map[string]ddbtypes.AttributeValue{
						"PK":   &ddbtypes.AttributeValueMemberS{Value: modelPK(rec.ModelVersion)},
						"SK":   &ddbtypes.AttributeValueMemberS{Value: predictionListSK(rec.Timestamp, rec.ID)},
						"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
						"ttl":  &ddbtypes.AttributeValueMemberN{Value: ttl},
					},
				},
			},
		},
	})
	return err
}

// GetPrediction retrieves a prediction record by ID.
func (p *Provider) GetPrediction(ctx context.Context, id string) (*types.PredictionRecord, error) {
	out, err := p.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &p.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: predictionPK(id)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: skRecord},
		},
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}

	ttlVal, _ := attributeInt(out.Item, "ttl")
	if isExpired(ttlVal) {
		return nil, nil
	}

	data, err := attributeStr(out.Item, "data")
	if err != nil {
		return nil, err
	}
	var rec types.PredictionRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListPredictions returns recent predictions for a model version, newest first.
func (p *Provider) ListPredictions(ctx context.Context, modelVersion string, limit int) ([]types.PredictionRecord, error) {
	if limit <= 0 {
		limit = 1000
	}

	out, err := p.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              &p.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: modelPK(modelVersion)},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: prefixPrediction},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, err
	}

	var records []types.PredictionRecord
	for _, item := range out.Items {
		ttlVal, _ := attributeInt(item, "ttl")
		if isExpired(ttlVal) {
			continue
		}
		data, err := attributeStr(item, "data")
		if err != nil {
			p.logger.Warn("skipping corrupt prediction data", "error", err)
			continue
		}
		var rec types.PredictionRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			p.logger.Warn("skipping corrupt prediction data", "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// PutGroundTruth stores a ground-truth record with bounded retention.
func (p *Provider) PutGroundTruth(ctx context.Context, rec types.GroundTruthRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling ground truth: %w", err)
	}

	_, err = p.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &p.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":   &ddbtypes.AttributeValueMemberS{Value: groundTruthPK(rec.ID)},
			"SK":   &ddbtypes.AttributeValueMemberS{Value: skRecord},
			"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
			"ttl":  &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttlEpoch(p.retentionTTL))},
		},
	})
	return err
}

// GetGroundTruth retrieves a ground-truth record by ID.
func (p *Provider) GetGroundTruth(ctx context.Context, id string) (*types.GroundTruthRecord, error) {
	out, err := p.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &p.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: groundTruthPK(id)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: skRecord},
		},
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}

	ttlVal, _ := attributeInt(out.Item, "ttl")
	if isExpired(ttlVal) {
		return nil, nil
	}

	data, err := attributeStr(out.Item, "data")
	if err != nil {
		return nil, err
	}
	var rec types.GroundTruthRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
