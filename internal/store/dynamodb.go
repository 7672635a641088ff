// ABOUTME: DynamoDB implementation of the SessionStore interface using aws-sdk-go-v2
// ABOUTME: Conditional PutItem on the version attribute gives per-session serializability

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Attribute names in the sessions table. session_id is the partition key
// and expires_at is the table's TTL attribute.
const (
	attrSessionID = "session_id"
	attrVersion   = "version"
	attrStatus    = "status"
	attrBody      = "body"
	attrUpdatedAt = "updated_at"
	attrExpiresAt = "expires_at"
)

// DynamoDBStore implements SessionStore on a DynamoDB table.
type DynamoDBStore struct {
	client DynamoAPI
	table  string
	ttl    time.Duration
	logger *slog.Logger
}

// NewDynamoDBStore creates a store on the given table. A positive ttl sets
// expires_at on every write so idle sessions age out.
func NewDynamoDBStore(client DynamoAPI, table string, ttl time.Duration) *DynamoDBStore {
	return &DynamoDBStore{
		client: client,
		table:  table,
		ttl:    ttl,
		logger: slog.Default().With("component", "store", "backend", "dynamodb"),
	}
}

// Get retrieves a session by ID.
func (d *DynamoDBStore) Get(ctx context.Context, id string) (*Session, error) {
	return d.load(ctx, id)
}

// Update applies fn under optimistic versioning.
func (d *DynamoDBStore) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	return updateVersioned(ctx, d, id, fn)
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (d *DynamoDBStore) Close() error {
	return nil
}

func (d *DynamoDBStore) load(ctx context.Context, id string) (*Session, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.table),
		Key: map[string]types.AttributeValue{
			attrSessionID: &types.AttributeValueMemberS{Value: id},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting session item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	body, ok := out.Item[attrBody].(*types.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("session %s: body attribute missing", id)
	}
	var sess Session
	if err := json.Unmarshal([]byte(body.Value), &sess); err != nil {
		return nil, fmt.Errorf("decoding session body: %w", err)
	}

	if v, ok := out.Item[attrVersion].(*types.AttributeValueMemberN); ok {
		version, err := strconv.ParseInt(v.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing session version: %w", err)
		}
		sess.Version = version
	}
	return &sess, nil
}

func (d *DynamoDBStore) save(ctx context.Context, sess *Session, prev int64) error {
	body, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	item := map[string]types.AttributeValue{
		attrSessionID: &types.AttributeValueMemberS{Value: sess.ID},
		attrVersion:   &types.AttributeValueMemberN{Value: strconv.FormatInt(sess.Version, 10)},
		attrStatus:    &types.AttributeValueMemberS{Value: string(sess.Status)},
		attrBody:      &types.AttributeValueMemberS{Value: string(body)},
		attrUpdatedAt: &types.AttributeValueMemberS{Value: sess.UpdatedAt.UTC().Format(time.RFC3339Nano)},
	}
	if d.ttl > 0 {
		expires := sess.UpdatedAt.Add(d.ttl).Unix()
		item[attrExpiresAt] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expires, 10)}
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	}
	if prev == 0 {
		input.ConditionExpression = aws.String("attribute_not_exists(" + attrSessionID + ")")
	} else {
		input.ConditionExpression = aws.String("#v = :prev")
		input.ExpressionAttributeNames = map[string]string{"#v": attrVersion}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":prev": &types.AttributeValueMemberN{Value: strconv.FormatInt(prev, 10)},
		}
	}

	if _, err := d.client.PutItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			d.logger.Debug("conditional write lost", "session_id", sess.ID, "prev_version", prev)
			return ErrConflict
		}
		return fmt.Errorf("putting session item: %w", err)
	}
	return nil
}
