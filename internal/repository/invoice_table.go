package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"ai-server/internal/domain"
)

const (
	pkInvoices  = "INVOICE"
	skPrefixRec = "REC#"
)

// dynamodbAPI is the minimal DynamoDB interface required by InvoiceTable.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// InvoiceTable is a DynamoDB-backed record store. It is an alternative to
// CSVStore behind the same append-only contract, selected by configuration.
type InvoiceTable struct {
	api       dynamodbAPI
	tableName string
}

// NewInvoiceTable creates a new InvoiceTable over the given table.
func NewInvoiceTable(api dynamodbAPI, tableName string) (*InvoiceTable, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &InvoiceTable{api: api, tableName: tableName}, nil
}

// recordSK returns a sort key that preserves append order and never collides.
func recordSK(ts time.Time) string {
	return skPrefixRec + ts.UTC().Format(time.RFC3339Nano) + "#" + uuid.NewString()
}

// AppendRecord writes one record item. The conditional put on the full key
// keeps the operation all-or-nothing.
func (t *InvoiceTable) AppendRecord(ctx context.Context, record domain.InvoiceRecord) error {
	now := time.Now().UTC()
	_, err := t.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(t.tableName),
		Item:                recordItem(record, now),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: AppendRecord: %w", err)
	}
	return nil
}

func recordItem(record domain.InvoiceRecord, ts time.Time) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":          &types.AttributeValueMemberS{Value: pkInvoices},
		"SK":          &types.AttributeValueMemberS{Value: recordSK(ts)},
		"amount":      &types.AttributeValueMemberS{Value: record.Amount},
		"currency":    &types.AttributeValueMemberS{Value: record.Currency},
		"dueDate":     &types.AttributeValueMemberS{Value: record.DueDate},
		"description": &types.AttributeValueMemberS{Value: record.Description},
		"company":     &types.AttributeValueMemberS{Value: record.Company},
		"contact":     &types.AttributeValueMemberS{Value: record.Contact},
		"createdAt":   &types.AttributeValueMemberS{Value: ts.Format(time.RFC3339)},
	}
}
