package ristretto_test

import (
	"context"
	"testing"
	"time"

	"github.com/kyashrathore/formlink-sub001/internal/adapter/ristretto"
	"github.com/kyashrathore/formlink-sub001/internal/port/cache/cachetest"
)

func newCache(t *testing.T) *ristretto.Cache {
	t.Helper()
	c, err := ristretto.New(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestCompliance(t *testing.T) {
	cachetest.RunComplianceTests(t, newCache(t))
}

func TestTTLExpiry(t *testing.T) {
	cachetest.RunTTLTest(t, newCache(t), 200*time.Millisecond)
}

func TestGetReturnsCopy(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("abc"), time.Minute); err != nil {
		t.Fatal(err)
	}
	v, _, _ := c.Get(ctx, "k")
	v[0] = 'z'

	again, _, _ := c.Get(ctx, "k")
	if string(again) != "abc" {
		t.Fatalf("cached value was mutated through Get: %s", again)
	}
}
