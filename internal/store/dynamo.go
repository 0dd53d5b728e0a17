package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/aws/aws-sdk-go/service/dynamodb/expression"

	"github.com/JonMunkholm/VehicleTaxonomy/internal/core"
)

// Single-table layout:
//
//	make     PK make#{makeId}                             SK {makeId}
//	model    PK make#{makeId}#models                      SK {modelId}
//	variant  PK make#{makeId}#model#{modelId}#variants    SK {variantId}
//	run      PK import#runs                               SK {startedAt}#{runId}
//
// Makes also carry MakeId, which feeds the sparse "Makes" GSI used to list
// them without a table scan.
const (
	makesIndex  = "Makes"
	importRunPK = "import#runs"

	// DynamoDB API limits.
	batchWriteLimit = 25
	batchGetLimit   = 100

	maxUnprocessedRetries = 8
)

type dynamoItem struct {
	PK             string    `dynamodbav:"PK"`
	SK             string    `dynamodbav:"SK"`
	Name           string    `dynamodbav:"Name"`
	MakeID         string    `dynamodbav:"MakeId,omitempty"`
	CreateDate     time.Time `dynamodbav:"CreateDate"`
	FuelCategory   string    `dynamodbav:"FuelCategory,omitempty"`
	EngineSizeInCC *int      `dynamodbav:"EngineSizeInCC,omitempty"`
}

type runItem struct {
	PK         string    `dynamodbav:"PK"`
	SK         string    `dynamodbav:"SK"`
	RunID      string    `dynamodbav:"RunId"`
	RequestID  string    `dynamodbav:"RequestId"`
	Mode       string    `dynamodbav:"Mode"`
	Status     string    `dynamodbav:"Status"`
	StartedAt  time.Time `dynamodbav:"StartedAt"`
	FinishedAt time.Time `dynamodbav:"FinishedAt"`
	Result     string    `dynamodbav:"Result,omitempty"`
	Error      string    `dynamodbav:"Error,omitempty"`
}

// Dynamo stores the taxonomy in a single DynamoDB table.
type Dynamo struct {
	client dynamodbiface.DynamoDBAPI
	table  string
}

var (
	_ core.Store         = (*Dynamo)(nil)
	_ core.ImportHistory = (*Dynamo)(nil)
)

// NewDynamo returns a store over table.
func NewDynamo(client dynamodbiface.DynamoDBAPI, table string) *Dynamo {
	return &Dynamo{client: client, table: table}
}

func partitionKey(kind core.EntityKind, id string, scope core.Scope) string {
	switch kind {
	case core.KindMake:
		return "make#" + id
	case core.KindModel:
		return "make#" + scope.MakeID + "#models"
	default:
		return "make#" + scope.MakeID + "#model#" + scope.ModelID + "#variants"
	}
}

func itemKey(pk, sk string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		"PK": {S: aws.String(pk)},
		"SK": {S: aws.String(sk)},
	}
}

func toItem(e core.Entity) dynamoItem {
	item := dynamoItem{
		PK:         partitionKey(e.Kind, e.ID, e.Scope),
		SK:         e.ID,
		Name:       e.Name,
		CreateDate: e.CreateDate.UTC(),
	}
	if e.Kind == core.KindMake {
		item.MakeID = e.ID
	}
	if e.Kind == core.KindVariant && e.Variant != nil {
		item.FuelCategory = string(e.Variant.FuelCategory)
		item.EngineSizeInCC = e.Variant.EngineSizeInCC
	}
	return item
}

func fromItem(kind core.EntityKind, scope core.Scope, item dynamoItem) core.Entity {
	e := core.Entity{
		Kind:       kind,
		ID:         item.SK,
		Scope:      scope,
		Name:       item.Name,
		CreateDate: item.CreateDate,
	}
	if kind == core.KindMake && e.ID == "" {
		e.ID = item.MakeID
	}
	if kind == core.KindVariant {
		e.Variant = &core.VariantData{EngineSizeInCC: item.EngineSizeInCC}
		if item.FuelCategory != "" {
			e.Variant.FuelCategory = core.ParseFuelCategory(item.FuelCategory)
		}
	}
	return e
}

func isConditionFailed(err error) bool {
	var aerr awserr.Error
	return errors.As(err, &aerr) && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException
}

// items returns every item of kind under scope.
func (d *Dynamo) items(ctx context.Context, kind core.EntityKind, scope core.Scope) ([]dynamoItem, error) {
	var (
		raw     []map[string]*dynamodb.AttributeValue
		pageErr error
	)
	collect := func(items []map[string]*dynamodb.AttributeValue) {
		raw = append(raw, items...)
	}

	if kind == core.KindMake {
		pageErr = d.client.ScanPagesWithContext(ctx, &dynamodb.ScanInput{
			TableName: aws.String(d.table),
			IndexName: aws.String(makesIndex),
		}, func(out *dynamodb.ScanOutput, _ bool) bool {
			collect(out.Items)
			return true
		})
	} else {
		expr, err := expression.NewBuilder().
			WithKeyCondition(expression.Key("PK").Equal(expression.Value(partitionKey(kind, "", scope)))).
			Build()
		if err != nil {
			return nil, fmt.Errorf("build %s query: %w", kind, err)
		}
		pageErr = d.client.QueryPagesWithContext(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(d.table),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		}, func(out *dynamodb.QueryOutput, _ bool) bool {
			collect(out.Items)
			return true
		})
	}
	if pageErr != nil {
		return nil, fmt.Errorf("read %s items: %w", kind, pageErr)
	}

	var items []dynamoItem
	if err := dynamodbattribute.UnmarshalListOfMaps(raw, &items); err != nil {
		return nil, fmt.Errorf("decode %s items: %w", kind, err)
	}
	return items, nil
}

func (d *Dynamo) ListIDs(ctx context.Context, kind core.EntityKind, scope core.Scope) (map[string]struct{}, error) {
	items, err := d.items(ctx, kind, scope)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]struct{}, len(items))
	for _, item := range items {
		ids[fromItem(kind, scope, item).ID] = struct{}{}
	}
	return ids, nil
}

func (d *Dynamo) Exists(ctx context.Context, kind core.EntityKind, id string, scope core.Scope) (bool, error) {
	out, err := d.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.table),
		Key:       itemKey(partitionKey(kind, id, scope), id),
	})
	if err != nil {
		return false, fmt.Errorf("get %s %q: %w", kind, id, err)
	}
	return len(out.Item) > 0, nil
}

// Create puts e unless an item with its key already exists.
func (d *Dynamo) Create(ctx context.Context, e core.Entity) error {
	av, err := dynamodbattribute.MarshalMap(toItem(e))
	if err != nil {
		return fmt.Errorf("encode %s %q: %w", e.Kind, e.ID, err)
	}

	cond, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name("PK"))).
		Build()
	if err != nil {
		return fmt.Errorf("build put condition: %w", err)
	}

	_, err = d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(d.table),
		Item:                     av,
		ConditionExpression:      cond.Condition(),
		ExpressionAttributeNames: cond.Names(),
	})
	if isConditionFailed(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("put %s %q: %w", e.Kind, e.ID, err)
	}
	return nil
}

// CreateBatch skips entities that already exist, then writes the rest with
// BatchWriteItem in chunks of 25, retrying unprocessed items.
func (d *Dynamo) CreateBatch(ctx context.Context, entities []core.Entity) error {
	if len(entities) == 0 {
		return nil
	}

	items := make([]dynamoItem, 0, len(entities))
	for _, e := range entities {
		items = append(items, toItem(e))
	}

	existing, err := d.existingKeys(ctx, items)
	if err != nil {
		return err
	}

	requests := make([]*dynamodb.WriteRequest, 0, len(items))
	for _, item := range items {
		if _, ok := existing[item.PK+"|"+item.SK]; ok {
			continue
		}
		av, err := dynamodbattribute.MarshalMap(item)
		if err != nil {
			return fmt.Errorf("encode %s: %w", item.PK, err)
		}
		requests = append(requests, &dynamodb.WriteRequest{PutRequest: &dynamodb.PutRequest{Item: av}})
	}

	return d.batchWrite(ctx, requests)
}

// existingKeys returns "PK|SK" for every item that is already stored.
func (d *Dynamo) existingKeys(ctx context.Context, items []dynamoItem) (map[string]struct{}, error) {
	found := make(map[string]struct{})

	for start := 0; start < len(items); start += batchGetLimit {
		end := min(start+batchGetLimit, len(items))

		keys := make([]map[string]*dynamodb.AttributeValue, 0, end-start)
		seen := make(map[string]struct{}, end-start)
		for _, item := range items[start:end] {
			k := item.PK + "|" + item.SK
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, itemKey(item.PK, item.SK))
		}

		request := map[string]*dynamodb.KeysAndAttributes{
			d.table: {Keys: keys, ProjectionExpression: aws.String("PK, SK")},
		}
		for attempt := 0; len(request) > 0; attempt++ {
			if attempt > maxUnprocessedRetries {
				return nil, fmt.Errorf("batch get: unprocessed keys remain after %d attempts", attempt)
			}
			if err := backoff(ctx, attempt); err != nil {
				return nil, err
			}

			out, err := d.client.BatchGetItemWithContext(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
			if err != nil {
				return nil, fmt.Errorf("batch get: %w", err)
			}
			for _, av := range out.Responses[d.table] {
				if av["PK"] != nil && av["SK"] != nil {
					found[aws.StringValue(av["PK"].S)+"|"+aws.StringValue(av["SK"].S)] = struct{}{}
				}
			}
			request = out.UnprocessedKeys
		}
	}
	return found, nil
}

func (d *Dynamo) batchWrite(ctx context.Context, requests []*dynamodb.WriteRequest) error {
	for start := 0; start < len(requests); start += batchWriteLimit {
		end := min(start+batchWriteLimit, len(requests))

		pending := map[string][]*dynamodb.WriteRequest{d.table: requests[start:end]}
		for attempt := 0; len(pending[d.table]) > 0; attempt++ {
			if attempt > maxUnprocessedRetries {
				return fmt.Errorf("batch write: %d items unprocessed after %d attempts", len(pending[d.table]), attempt)
			}
			if err := backoff(ctx, attempt); err != nil {
				return err
			}

			out, err := d.client.BatchWriteItemWithContext(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return fmt.Errorf("batch write: %w", err)
			}
			pending = out.UnprocessedItems
		}
	}
	return nil
}

// backoff sleeps before retry attempts; the first attempt runs at once.
func backoff(ctx context.Context, attempt int) error {
	if attempt == 0 {
		return nil
	}
	wait := time.Duration(1<<min(attempt, 6)) * 25 * time.Millisecond
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

func (d *Dynamo) Get(ctx context.Context, kind core.EntityKind, id string, scope core.Scope) (*core.Entity, error) {
	out, err := d.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.table),
		Key:       itemKey(partitionKey(kind, id, scope), id),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s %q: %w", kind, id, err)
	}
	if len(out.Item) == 0 {
		return nil, core.ErrNotFound
	}

	var item dynamoItem
	if err := dynamodbattribute.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("decode %s %q: %w", kind, id, err)
	}
	e := fromItem(kind, scope, item)
	return &e, nil
}

func (d *Dynamo) List(ctx context.Context, kind core.EntityKind, scope core.Scope) ([]core.Entity, error) {
	items, err := d.items(ctx, kind, scope)
	if err != nil {
		return nil, err
	}

	entities := make([]core.Entity, 0, len(items))
	for _, item := range items {
		entities = append(entities, fromItem(kind, scope, item))
	}
	sortByName(entities)
	return entities, nil
}

// Delete removes the entity, then its descendants partition by partition.
func (d *Dynamo) Delete(ctx context.Context, kind core.EntityKind, id string, scope core.Scope) error {
	cond, err := expression.NewBuilder().
		WithCondition(expression.AttributeExists(expression.Name("PK"))).
		Build()
	if err != nil {
		return fmt.Errorf("build delete condition: %w", err)
	}

	_, err = d.client.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(d.table),
		Key:                      itemKey(partitionKey(kind, id, scope), id),
		ConditionExpression:      cond.Condition(),
		ExpressionAttributeNames: cond.Names(),
	})
	if isConditionFailed(err) {
		return core.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete %s %q: %w", kind, id, err)
	}

	switch kind {
	case core.KindMake:
		models, err := d.items(ctx, core.KindModel, core.Scope{MakeID: id})
		if err != nil {
			return err
		}
		for _, m := range models {
			if err := d.deletePartition(ctx, core.KindVariant, core.Scope{MakeID: id, ModelID: m.SK}); err != nil {
				return err
			}
		}
		return d.deletePartition(ctx, core.KindModel, core.Scope{MakeID: id})
	case core.KindModel:
		return d.deletePartition(ctx, core.KindVariant, core.Scope{MakeID: scope.MakeID, ModelID: id})
	}
	return nil
}

func (d *Dynamo) deletePartition(ctx context.Context, kind core.EntityKind, scope core.Scope) error {
	items, err := d.items(ctx, kind, scope)
	if err != nil {
		return err
	}

	requests := make([]*dynamodb.WriteRequest, 0, len(items))
	for _, item := range items {
		requests = append(requests, &dynamodb.WriteRequest{
			DeleteRequest: &dynamodb.DeleteRequest{Key: itemKey(item.PK, item.SK)},
		})
	}
	if err := d.batchWrite(ctx, requests); err != nil {
		return fmt.Errorf("delete %s under %s: %w", kind, partitionKey(kind, "", scope), err)
	}
	return nil
}

func (d *Dynamo) RecordImportRun(ctx context.Context, run core.ImportRun) error {
	item := runItem{
		PK:         importRunPK,
		SK:         run.StartedAt.UTC().Format(time.RFC3339Nano) + "#" + run.ID,
		RunID:      run.ID,
		RequestID:  run.RequestID,
		Mode:       run.Mode,
		Status:     string(run.Status),
		StartedAt:  run.StartedAt.UTC(),
		FinishedAt: run.FinishedAt.UTC(),
		Error:      run.Error,
	}
	if run.Result != nil {
		b, err := json.Marshal(run.Result)
		if err != nil {
			return fmt.Errorf("encode import result: %w", err)
		}
		item.Result = string(b)
	}

	av, err := dynamodbattribute.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("encode import run: %w", err)
	}
	if _, err := d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("put import run %s: %w", run.ID, err)
	}
	return nil
}

// PruneImportRuns reads the run partition and batch-deletes runs started
// before cutoff.
func (d *Dynamo) PruneImportRuns(ctx context.Context, cutoff time.Time) (int, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key("PK").Equal(expression.Value(importRunPK))).
		WithProjection(expression.NamesList(expression.Name("PK"), expression.Name("SK"), expression.Name("StartedAt"))).
		Build()
	if err != nil {
		return 0, fmt.Errorf("build import run query: %w", err)
	}

	var requests []*dynamodb.WriteRequest
	var decodeErr error
	err = d.client.QueryPagesWithContext(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(d.table),
		KeyConditionExpression:    expr.KeyCondition(),
		ProjectionExpression:      expr.Projection(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, func(out *dynamodb.QueryOutput, _ bool) bool {
		var items []runItem
		if decodeErr = dynamodbattribute.UnmarshalListOfMaps(out.Items, &items); decodeErr != nil {
			return false
		}
		for _, item := range items {
			if item.StartedAt.Before(cutoff) {
				requests = append(requests, &dynamodb.WriteRequest{
					DeleteRequest: &dynamodb.DeleteRequest{Key: itemKey(item.PK, item.SK)},
				})
			}
		}
		return true
	})
	if err != nil {
		return 0, fmt.Errorf("read import runs: %w", err)
	}
	if decodeErr != nil {
		return 0, fmt.Errorf("decode import runs: %w", decodeErr)
	}

	if err := d.batchWrite(ctx, requests); err != nil {
		return 0, fmt.Errorf("delete import runs: %w", err)
	}
	return len(requests), nil
}

func (d *Dynamo) ListImportRuns(ctx context.Context, limit int) ([]core.ImportRun, error) {
	if limit <= 0 {
		limit = 50
	}

	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key("PK").Equal(expression.Value(importRunPK))).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build import run query: %w", err)
	}

	out, err := d.client.QueryWithContext(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(d.table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
		Limit:                     aws.Int64(int64(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("list import runs: %w", err)
	}

	var items []runItem
	if err := dynamodbattribute.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return nil, fmt.Errorf("decode import runs: %w", err)
	}

	runs := make([]core.ImportRun, 0, len(items))
	for _, item := range items {
		run := core.ImportRun{
			ID:         item.RunID,
			RequestID:  item.RequestID,
			Mode:       item.Mode,
			Status:     core.JobStatus(item.Status),
			StartedAt:  item.StartedAt,
			FinishedAt: item.FinishedAt,
			Error:      item.Error,
		}
		if item.Result != "" {
			run.Result = &core.ImportJobResult{}
			if err := json.NewDecoder(strings.NewReader(item.Result)).Decode(run.Result); err != nil {
				return nil, fmt.Errorf("decode import result %s: %w", item.RunID, err)
			}
		}
		runs = append(runs, run)
	}

	sort.SliceStable(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	return runs, nil
}
