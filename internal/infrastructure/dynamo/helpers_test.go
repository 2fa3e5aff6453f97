package dynamo

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUpdateExpr_SingleField(t *testing.T) {
	ue, err := buildUpdateExpr(map[string]interface{}{fieldRole: "Admin"})
	require.NoError(t, err)
	assert.Equal(t, "SET #f0 = :v0", ue.Expr)
	assert.Equal(t, map[string]string{"#f0": "role"}, ue.Names)
	_, ok := ue.Values[":v0"]
	assert.True(t, ok)
}

func TestBuildUpdateExpr_MultipleFields_Deterministic(t *testing.T) {
	updates := map[string]interface{}{
		fieldPasswordHash:   "$2a$10$hash",
		fieldEmailConfirmed: true,
		fieldUpdatedAt:      time.Unix(0, 0).UTC(),
	}
	ue1, err := buildUpdateExpr(updates)
	require.NoError(t, err)
	ue2, err := buildUpdateExpr(updates)
	require.NoError(t, err)

	assert.Equal(t, ue1.Expr, ue2.Expr)
	assert.Equal(t, "email_confirmed", ue1.Names["#f0"])
	assert.Equal(t, "password_hash", ue1.Names["#f1"])
	assert.Equal(t, "updated_at", ue1.Names["#f2"])
	assert.Equal(t, "SET #f0 = :v0, #f1 = :v1, #f2 = :v2", ue1.Expr)
}

func TestBuildUpdateExpr_ValuesMarshalledCorrectly(t *testing.T) {
	ue, err := buildUpdateExpr(map[string]interface{}{fieldIsRevoked: true})
	require.NoError(t, err)
	av, ok := ue.Values[":v0"]
	require.True(t, ok)
	boolVal, isBool := av.(*types.AttributeValueMemberBOOL)
	require.True(t, isBool)
	assert.True(t, boolVal.Value)
}

func TestBuildUpdateExpr_EmptyMap_ReturnsError(t *testing.T) {
	_, err := buildUpdateExpr(map[string]interface{}{})
	assert.ErrorContains(t, err, "no fields to update")
}

func TestStrNumKey(t *testing.T) {
	key := strNumKey("subject", "verify#email#a@b.com", "expires_at", 1700000000000000000)
	pk, ok := key["subject"].(*types.AttributeValueMemberS)
	require.True(t, ok)
	assert.Equal(t, "verify#email#a@b.com", pk.Value)
	sk, ok := key["expires_at"].(*types.AttributeValueMemberN)
	require.True(t, ok)
	assert.Equal(t, "1700000000000000000", sk.Value)
}

func TestCursor_RoundTrip(t *testing.T) {
	c := encodeCursor("01HZY3K5T6")
	id, err := decodeCursor(c)
	require.NoError(t, err)
	assert.Equal(t, "01HZY3K5T6", id)

	_, err = decodeCursor("%%%")
	assert.Error(t, err)
}

func TestIsConditionFailed(t *testing.T) {
	wrapped := fmt.Errorf("update: %w", &types.ConditionalCheckFailedException{})
	assert.True(t, isConditionFailed(wrapped))
	assert.False(t, isConditionFailed(errors.New("throttled")))
	assert.False(t, isConditionFailed(nil))
}

func TestIsTxConditionFailed(t *testing.T) {
	cancelled := &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{
			{Code: aws.String("None")},
			{Code: aws.String("ConditionalCheckFailed")},
		},
	}
	assert.True(t, isTxConditionFailed(fmt.Errorf("tx: %w", cancelled)))

	conflict := &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: aws.String("TransactionConflict")}},
	}
	assert.False(t, isTxConditionFailed(conflict))
	assert.False(t, isTxConditionFailed(errors.New("boom")))
}

func TestIsGuardItem(t *testing.T) {
	guard := strKey("user_id", emailGuardPrefix+"a@b.com")
	guard["owner_id"] = &types.AttributeValueMemberS{Value: "01H"}
	assert.True(t, isGuardItem(guard))
	assert.False(t, isGuardItem(strKey("user_id", "01H")))
}
