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

// PutDriftReport stores a drift report under the model's partition, keyed by
// evaluation time so range queries return newest first.
func (p *Provider) PutDriftReport(ctx context.Context, report types.DriftReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshaling drift report: %w", err)
	}

	_, err = p.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &p.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":   &ddbtypes.AttributeValueMemberS{Value: modelPK(report.ModelVersion)},
			"SK":   &ddbtypes.AttributeValueMemberS{Value: driftReportSK(report.EvaluatedAt)},
			"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
			"ttl":  &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttlEpoch(p.retentionTTL))},
		},
	})
	return err
}

// GetLatestDriftReport returns the newest drift report for a model version.
func (p *Provider) GetLatestDriftReport(ctx context.Context, modelVersion string) (*types.DriftReport, error) {
	reports, err := p.ListDriftReports(ctx, modelVersion, 1)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, nil
	}
	return &reports[0], nil
}

// ListDriftReports returns recent drift reports, newest first.
func (p *Provider) ListDriftReports(ctx context.Context, modelVersion string, limit int) ([]types.DriftReport, error) {
	if limit <= 0 {
		limit = 50
	}

	out, err := p.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              &p.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: modelPK(modelVersion)},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: prefixDriftReport},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, err
	}

	var reports []types.DriftReport
	for _, item := range out.Items {
		ttlVal, _ := attributeInt(item, "ttl")
		if isExpired(ttlVal) {
			continue
		}
		data, err := attributeStr(item, "data")
		if err != nil {
			p.logger.Warn("skipping corrupt drift report", "model", modelVersion, "error", err)
			continue
		}
		var report types.DriftReport
		if err := json.Unmarshal([]byte(data), &report); err != nil {
			p.logger.Warn("skipping corrupt drift report", "model", modelVersion, "error", err)
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// PutPerformanceSummary stores the latest performance summary for a model.
func (p *Provider) PutPerformanceSummary(ctx context.Context, summary types.PerformanceSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshaling performance summary: %w", err)
	}

	_, err = p.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &p.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":   &ddbtypes.AttributeValueMemberS{Value: modelPK(summary.ModelVersion)},
			"SK":   &ddbtypes.AttributeValueMemberS{Value: skPerformance},
			"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
			"ttl":  &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttlEpoch(p.retentionTTL))},
		},
	})
	return err
}

// GetLatestPerformanceSummary retrieves the latest performance summary.
func (p *Provider) GetLatestPerformanceSummary(ctx context.Context, modelVersion string) (*types.PerformanceSummary, error) {
	out, err := p.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &p.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: modelPK(modelVersion)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: skPerformance},
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
	var summary types.PerformanceSummary
	if err := json.Unmarshal([]byte(data), &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// PutDecision stores a decision using dual-write: truth item for ID lookup
// plus a list copy under the model's partition.
func (p *Provider) PutDecision(ctx context.Context, decision types.RetrainDecision) error {
	data, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("marshaling decision: %w", err)
	}

	_, err = p.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []ddbtypes.TransactWriteItem{
			{
				Put: &ddbtypes.Put{
					TableName: &p.tableName,
					Item: map[string]ddbtypes.AttributeValue{
						"PK":   &ddbtypes.AttributeValueMemberS{Value: decisionPK(decision.DecisionID)},
						"SK":   &ddbtypes.AttributeValueMemberS{Value: skRecord},
						"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
					},
				},
			},
			{
				Put: &ddbtypes.Put{
					TableName: &p.tableName,
					Item: map[string]ddbtypes.AttributeValue{
						"PK":   &ddbtypes.AttributeValueMemberS{Value: modelPK(decision.ModelVersion)},
						"SK":   &ddbtypes.AttributeValueMemberS{Value: decisionListSK(decision.EvaluatedAt, decision.DecisionID)},
						"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
					},
				},
			},
		},
	})
	return err
}

// GetDecision retrieves a retrain decision by ID.
func (p *Provider) GetDecision(ctx context.Context, decisionID string) (*types.RetrainDecision, error) {
	out, err := p.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &p.tableName,
		ConsistentRead: aws.Bool(true),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: decisionPK(decisionID)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: skRecord},
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
	var decision types.RetrainDecision
	if err := json.Unmarshal([]byte(data), &decision); err != nil {
		return nil, err
	}
	return &decision, nil
}

// GetLatestDecision returns the newest decision for a model version.
func (p *Provider) GetLatestDecision(ctx context.Context, modelVersion string) (*types.RetrainDecision, error) {
	decisions, err := p.ListDecisions(ctx, modelVersion, 1)
	if err != nil {
		return nil, err
	}
	if len(decisions) == 0 {
		return nil, nil
	}
	return &decisions[0], nil
}

// ListDecisions returns recent decisions for a model version, newest first.
func (p *Provider) ListDecisions(ctx context.Context, modelVersion string, limit int) ([]types.RetrainDecision, error) {
	if limit <= 0 {
		limit = 50
	}

	out, err := p.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              &p.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: modelPK(modelVersion)},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: prefixDecision},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, err
	}

	var decisions []types.RetrainDecision
	for _, item := range out.Items {
		data, err := attributeStr(item, "data")
		if err != nil {
			p.logger.Warn("skipping corrupt decision data", "error", err)
			continue
		}
		var decision types.RetrainDecision
		if err := json.Unmarshal([]byte(data), &decision); err != nil {
			p.logger.Warn("skipping corrupt decision data", "error", err)
			continue
		}
		decisions = append(decisions, decision)
	}
	return decisions, nil
}

// SetStaleness records or clears a staleness marker for a component.
func (p *Provider) SetStaleness(ctx context.Context, modelVersion, component string, stale bool) error {
	key := map[string]ddbtypes.AttributeValue{
		"PK": &ddbtypes.AttributeValueMemberS{Value: modelPK(modelVersion)},
		"SK": &ddbtypes.AttributeValueMemberS{Value: staleSK(component)},
	}
	if !stale {
		_, err := p.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: &p.tableName,
			Key:       key,
		})
		return err
	}
	_, err := p.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &p.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":  key["PK"],
			"SK":  key["SK"],
			"ttl": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttlEpoch(p.retentionTTL))},
		},
	})
	return err
}

// GetStaleness reports whether a component's last cycle failed.
func (p *Provider) GetStaleness(ctx context.Context, modelVersion, component string) (bool, error) {
	out, err := p.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &p.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: modelPK(modelVersion)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: staleSK(component)},
		},
	})
	if err != nil {
		return false, err
	}
	if out.Item == nil {
		return false, nil
	}
	ttlVal, _ := attributeInt(out.Item, "ttl")
	return !isExpired(ttlVal), nil
}
