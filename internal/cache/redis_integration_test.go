//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisCache(t *testing.T) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	remote, err := NewRedisCache(host+":"+port.Port(), "", 0)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { remote.Close() })

	const ns = "lookup"

	t.Run("TTL", func(t *testing.T) {
		if ttl, err := remote.TTL(ctx, ns, "missing"); err != nil || ttl != 0 {
			t.Errorf("expected zero for a missing key, got %v %v", ttl, err)
		}
		if err := remote.Set(ctx, ns, "k", []byte("v"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if ttl, _ := remote.TTL(ctx, ns, "k"); ttl <= 0 || ttl > time.Minute {
			t.Errorf("expected at most a minute left, got %v", ttl)
		}
	})

	t.Run("BackfillBoundedByL2", func(t *testing.T) {
		local, _ := newTestLRU(10)
		cache := NewTwoPhaseCache(local, remote, time.Hour)

		if err := remote.Set(ctx, ns, "short", []byte("v"), 5*time.Second); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if val, _ := cache.Get(ctx, ns, "short"); string(val) != "v" {
			t.Fatalf("expected 'v', got %q", val)
		}
		if ttl, _ := local.TTL(ctx, ns, "short"); ttl <= 0 || ttl > 5*time.Second {
			t.Errorf("expected L1 copy bounded by redis, got %v", ttl)
		}
	})
}
