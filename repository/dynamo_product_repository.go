package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hkshop/storefront/models"
	"github.com/shopspring/decimal"
)

// DynamoItemStore is the slice of the DynamoDB client the catalog needs.
type DynamoItemStore interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoProductRepository reads products from a table keyed by the
// numeric attribute `pid`. Prices are stored as decimal strings so they
// survive the round trip exactly.
type DynamoProductRepository struct {
	client DynamoItemStore
	table  string
}

func NewDynamoProductRepository(client DynamoItemStore, table string) *DynamoProductRepository {
	return &DynamoProductRepository{client: client, table: table}
}

type ddbProduct struct {
	PID         int64  `dynamodbav:"pid"`
	CatID       int64  `dynamodbav:"catid"`
	Name        string `dynamodbav:"name"`
	Price       string `dynamodbav:"price"`
	Description string `dynamodbav:"description,omitempty"`
}

func (d *DynamoProductRepository) LookupProduct(ctx context.Context, pid int64) (*models.Product, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.table),
		Key: map[string]types.AttributeValue{
			"pid": &types.AttributeValueMemberN{Value: strconv.FormatInt(pid, 10)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb GetItem failed: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrProductNotFound
	}

	var dp ddbProduct
	if err := attributevalue.UnmarshalMap(out.Item, &dp); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	price, err := decimal.NewFromString(dp.Price)
	if err != nil {
		return nil, fmt.Errorf("product %d has malformed price %q: %w", pid, dp.Price, err)
	}
	return &models.Product{
		PID:         dp.PID,
		CatID:       dp.CatID,
		Name:        dp.Name,
		Price:       price,
		Description: dp.Description,
	}, nil
}

// PutProduct writes or replaces one catalog item.
func (d *DynamoProductRepository) PutProduct(ctx context.Context, p *models.Product) error {
	item, err := attributevalue.MarshalMap(ddbProduct{
		PID:         p.PID,
		CatID:       p.CatID,
		Name:        p.Name,
		Price:       p.Price.StringFixed(2),
		Description: p.Description,
	})
	if err != nil {
		return fmt.Errorf("marshal product %d: %w", p.PID, err)
	}
	if _, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("dynamodb PutItem failed: %w", err)
	}
	return nil
}
