package app

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestCollectionOf(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		cmd  redis.Cmder
		want string
	}{
		{redis.NewStringCmd(ctx, "get", "lock:driver:42"), "lock:driver"},
		{redis.NewStringCmd(ctx, "get", "cache:dispatch:d-1"), "cache:dispatch"},
		{redis.NewStringCmd(ctx, "get", "plainkey"), "redis"},
		{redis.NewStatusCmd(ctx, "ping"), "redis"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, collectionOf(tt.cmd))
	}
}

func TestStartSegmentWithoutTransaction(t *testing.T) {
	assert.Nil(t, startSegment(context.Background(), "get", "redis"))
}
