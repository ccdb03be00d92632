package geo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisKey(t *testing.T) {
	assert.Equal(t, "riders:almaty:online", redisKey(" Almaty "))
}

func TestParseRiderMember(t *testing.T) {
	id, err := parseRiderMember(memberName("3f2a"))
	require.NoError(t, err)
	assert.Equal(t, "3f2a", id)

	_, err = parseRiderMember("courier:12")
	assert.Error(t, err)
	_, err = parseRiderMember("rider:")
	assert.Error(t, err)
}

func TestUpdateRiderRejectsBadInput(t *testing.T) {
	// validation fails before the client is touched
	l := NewRiderLocator(nil, nil)
	ctx := context.Background()
	assert.Error(t, l.UpdateRider(ctx, "r1", 76.9, 43.2, ""))
	assert.Error(t, l.UpdateRider(ctx, "r1", 181, 43.2, "almaty"))
	assert.Error(t, l.UpdateRider(ctx, "r1", 0, 0, "almaty"))
}
