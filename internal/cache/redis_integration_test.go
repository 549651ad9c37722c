//go:build integration
// +build integration

package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

func redisAddr() string {
	if a := os.Getenv("REDIS_ADDR"); a != "" {
		return a
	}
	return "localhost:6379"
}

func TestRedisCache_GetSetSweep_Integration(t *testing.T) {
	ctx := context.Background()
	c, err := NewRedisCache(ctx, redisAddr(), "", 15, time.Second)
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	defer c.Close()

	oldKey := GenerateKey("v1", "current", "", "", 1, 2)
	newKey := GenerateKey("v2", "current", "", "", 1, 2)
	if err := c.Set(ctx, oldKey, []byte("old"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := c.Set(ctx, newKey, []byte("new"), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	n, err := c.Sweep(ctx, "v2")
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if n < 1 {
		t.Errorf("Sweep() = %d, want at least 1", n)
	}
	if _, ok, _ := c.Get(ctx, oldKey); ok {
		t.Error("v1 entry survived sweep")
	}
	got, ok, err := c.Get(ctx, newKey)
	if err != nil || !ok || string(got) != "new" {
		t.Errorf("Get(v2) = %s, %v, %v", got, ok, err)
	}
}
