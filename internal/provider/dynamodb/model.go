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

// PutModelVersion stores a model version record. Model items carry no TTL.
func (p *Provider) PutModelVersion(ctx context.Context, mv types.ModelVersion) error {
	data, err := json.Marshal(mv)
	if err != nil {
		return fmt.Errorf("marshaling model version: %w", err)
	}

	_, err = p.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &p.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":      &ddbtypes.AttributeValueMemberS{Value: modelPK(mv.ID)},
			"SK":      &ddbtypes.AttributeValueMemberS{Value: skMeta},
			"GSI1PK":  &ddbtypes.AttributeValueMemberS{Value: prefixType + "model"},
			"GSI1SK":  &ddbtypes.AttributeValueMemberS{Value: modelPK(mv.ID)},
			"data":    &ddbtypes.AttributeValueMemberS{Value: string(data)},
			"version": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", mv.Version)},
		},
	})
	return err
}

// GetModelVersion retrieves a model version record (strongly consistent).
func (p *Provider) GetModelVersion(ctx context.Context, id string) (*types.ModelVersion, error) {
	out, err := p.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &p.tableName,
		ConsistentRead: aws.Bool(true),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: modelPK(id)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: skMeta},
		},
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}

	data, err := attributeStr(out.Item, "data")
	if err != nil {
		return nil, err
	}
	var mv types.ModelVersion
	if err := json.Unmarshal([]byte(data), &mv); err != nil {
		return nil, err
	}
	return &mv, nil
}

// ListModelVersions returns all registered model versions via GSI1.
func (p *Provider) ListModelVersions(ctx context.Context) ([]types.ModelVersion, error) {
	out, err := p.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              &p.tableName,
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk": &ddbtypes.AttributeValueMemberS{Value: prefixType + "model"},
		},
	})
	if err != nil {
		return nil, err
	}

	var models []types.ModelVersion
	for _, item := range out.Items {
		data, err := attributeStr(item, "data")
		if err != nil {
			p.logger.Warn("skipping corrupt model entry", "error", err)
			continue
		}
		var mv types.ModelVersion
		if err := json.Unmarshal([]byte(data), &mv); err != nil {
			p.logger.Warn("skipping corrupt model data", "error", err)
			continue
		}
		models = append(models, mv)
	}
	return models, nil
}

// CompareAndSwapModelVersion atomically updates a model version if the
// stored version counter matches.
func (p *Provider) CompareAndSwapModelVersion(ctx context.Context, id string, expectedVersion int, next types.ModelVersion) (bool, error) {
	data, err := json.Marshal(next)
	if err != nil {
		return false, err
	}

	_, err = p.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &p.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: modelPK(id)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: skMeta},
		},
		UpdateExpression:    aws.String("SET #data = :data, #version = :newVersion"),
		ConditionExpression: aws.String("#version = :expectedVersion"),
		ExpressionAttributeNames: map[string]string{
			"#data":    "data",
			"#version": "version",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":data":            &ddbtypes.AttributeValueMemberS{Value: string(data)},
			":newVersion":      &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", next.Version)},
			":expectedVersion": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", expectedVersion)},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// PutFeatureSnapshot stores one feature's reference distribution under the
// model's partition.
func (p *Provider) PutFeatureSnapshot(ctx context.Context, snap types.FeatureSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling feature snapshot: %w", err)
	}

	_, err = p.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &p.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":   &ddbtypes.AttributeValueMemberS{Value: modelPK(snap.ModelVersion)},
			"SK":   &ddbtypes.AttributeValueMemberS{Value: snapshotSK(snap.FeatureName)},
			"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
		},
	})
	return err
}

// GetFeatureSnapshots retrieves all feature snapshots for a model version.
func (p *Provider) GetFeatureSnapshots(ctx context.Context, modelVersion string) ([]types.FeatureSnapshot, error) {
	out, err := p.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              &p.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: modelPK(modelVersion)},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: prefixSnapshot},
		},
	})
	if err != nil {
		return nil, err
	}

	var snaps []types.FeatureSnapshot
	for _, item := range out.Items {
		data, err := attributeStr(item, "data")
		if err != nil {
			p.logger.Warn("skipping corrupt snapshot entry", "model", modelVersion, "error", err)
			continue
		}
		var snap types.FeatureSnapshot
		if err := json.Unmarshal([]byte(data), &snap); err != nil {
			p.logger.Warn("skipping corrupt snapshot data", "model", modelVersion, "error", err)
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}
