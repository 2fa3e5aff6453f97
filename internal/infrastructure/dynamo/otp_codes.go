package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/njala-api/internal/domain"
)

// OTPRepo stores issued one-time codes.
// PK: subject (purpose#type#target), SK: expires_at (unix nanos).
type OTPRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewOTPRepo(client *dynamodb.Client, tableName string) *OTPRepo {
	return &OTPRepo{client: client, tableName: tableName}
}

func (r *OTPRepo) Put(ctx context.Context, rec *domain.OTPRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal otp: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// Latest returns the most-recently-expiring record for subject, consumed or not.
func (r *OTPRepo) Latest(ctx context.Context, subject string) (*domain.OTPRecord, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("subject = :s"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s": &types.AttributeValueMemberS{Value: subject},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("otp not found: %w", domain.ErrNotFound)
	}
	var rec domain.OTPRecord
	if err := attributevalue.UnmarshalMap(out.Items[0], &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// LatestUnverified returns the most-recently-expiring record for subject that has not been consumed.
// Limit is applied before the filter in DynamoDB, so pages are walked until a match appears.
func (r *OTPRepo) LatestUnverified(ctx context.Context, subject string) (*domain.OTPRecord, error) {
	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("subject = :s"),
		FilterExpression:       aws.String("#v = :f"),
		ExpressionAttributeNames: map[string]string{
			"#v": fieldVerified,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s": &types.AttributeValueMemberS{Value: subject},
			":f": &types.AttributeValueMemberBOOL{Value: false},
		},
		ScanIndexForward: aws.Bool(false),
	})
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		if len(out.Items) > 0 {
			var rec domain.OTPRecord
			if err := attributevalue.UnmarshalMap(out.Items[0], &rec); err != nil {
				return nil, err
			}
			return &rec, nil
		}
	}
	return nil, fmt.Errorf("otp not found: %w", domain.ErrNotFound)
}

// MarkVerified consumes a record. The write only succeeds while verified is still false,
// so two concurrent verifications cannot both win.
func (r *OTPRepo) MarkVerified(ctx context.Context, subject string, expiresAt int64) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strNumKey("subject", subject, "expires_at", expiresAt),
		UpdateExpression:    aws.String("SET #v = :t"),
		ConditionExpression: aws.String("attribute_exists(subject) AND #v = :f"),
		ExpressionAttributeNames: map[string]string{
			"#v": fieldVerified,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberBOOL{Value: true},
			":f": &types.AttributeValueMemberBOOL{Value: false},
		},
	})
	if isConditionFailed(err) {
		return domain.ErrInvalidOrExpiredOtp
	}
	if err != nil {
		return fmt.Errorf("mark otp %s@%d verified: %w", subject, expiresAt, err)
	}
	return nil
}
