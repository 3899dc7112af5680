package integration

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sandeepkv93/checkin-gateway/internal/domain"
	"github.com/sandeepkv93/checkin-gateway/internal/http/middleware"
	"github.com/sandeepkv93/checkin-gateway/internal/repository"
	"github.com/sandeepkv93/checkin-gateway/internal/service"
	"github.com/sandeepkv93/checkin-gateway/internal/store"
)

func TestRedisRateLimiterSequentialWindowHonorsLimit(t *testing.T) {
	client, cleanup := startRedisContainer(t)
	defer cleanup()

	limiter := middleware.NewKVFixedWindowLimiter(store.NewRedisKV(client))
	policy := middleware.RateLimitPolicy{Limit: 5, Window: 10 * time.Minute}

	for i := 0; i < policy.Limit; i++ {
		decision, err := limiter.Allow(context.Background(), "same-actor", policy)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !decision.Allowed || decision.Remaining != policy.Limit-i-1 {
			t.Fatalf("request %d: unexpected decision %+v", i+1, decision)
		}
	}
	decision, err := limiter.Allow(context.Background(), "same-actor", policy)
	if err != nil {
		t.Fatalf("final allow: %v", err)
	}
	if decision.Allowed || decision.RetryAfter <= 0 {
		t.Fatalf("expected the window to be exhausted, got %+v", decision)
	}
}

func TestRedisRateLimiterConcurrentBurstStaysNearLimit(t *testing.T) {
	client, cleanup := startRedisContainer(t)
	defer cleanup()

	limiter := middleware.NewKVFixedWindowLimiter(store.NewRedisKV(client))
	policy := middleware.RateLimitPolicy{Limit: 20, Window: 10 * time.Minute}

	const attempts = 100
	var allowed atomic.Int64
	errCh := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := limiter.Allow(context.Background(), "burst-actor", policy)
			if err != nil {
				errCh <- err
				return
			}
			if decision.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("limiter allow failed: %v", err)
	}

	// read-then-write counting admits extra requests only while racing
	if got := allowed.Load(); got < int64(policy.Limit) || got >= attempts {
		t.Fatalf("expected between %d and %d admissions, got %d", policy.Limit, attempts-1, got)
	}
	decision, err := limiter.Allow(context.Background(), "burst-actor", policy)
	if err != nil {
		t.Fatalf("final allow: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected the next sequential request to be limited")
	}
}

func TestRedisSessionExpiresWithStoreTTL(t *testing.T) {
	client, cleanup := startRedisContainer(t)
	defer cleanup()

	sessions := service.NewSessionService(repository.NewSessionRepository(store.NewRedisKV(client)), 2*time.Second)
	session, err := sessions.Create(context.Background(), domain.User{ID: "9", Login: "jane", Name: "Jane", Provider: domain.ProviderGitee})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := sessions.Resolve(context.Background(), session.ID); err != nil {
		t.Fatalf("resolve fresh session: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		_, err := sessions.Resolve(context.Background(), session.ID)
		if errors.Is(err, repository.ErrSessionNotFound) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("session did not expire, last error %v", err)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func startRedisContainer(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container integration test in short mode")
	}
	if !dockerAvailable() {
		t.Skip("docker is not available; skipping redis container integration test")
	}

	hostPort := reserveLocalPort(t)
	containerName := "checkin-redis-it-" + strconv.FormatInt(time.Now().UnixNano(), 10) + "-" + strconv.Itoa(rand.Intn(1000))

	runCmd := exec.Command("docker", "run", "-d", "--rm",
		"--name", containerName,
		"-p", fmt.Sprintf("127.0.0.1:%d:6379", hostPort),
		"redis:7-alpine",
		"redis-server", "--save", "", "--appendonly", "no",
	)
	out, err := runCmd.CombinedOutput()
	if err != nil {
		t.Skipf("unable to start redis container: %v output=%s", err, strings.TrimSpace(string(out)))
	}

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("127.0.0.1:%d", hostPort)})
	ctx := context.Background()
	deadline := time.Now().Add(20 * time.Second)
	for {
		if time.Now().After(deadline) {
			_ = client.Close()
			_ = exec.Command("docker", "rm", "-f", containerName).Run()
			t.Fatalf("timed out waiting for redis container %s to become ready", containerName)
		}
		if err := client.Ping(ctx).Err(); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	cleanup := func() {
		_ = client.Close()
		_ = exec.Command("docker", "rm", "-f", containerName).Run()
	}
	return client, cleanup
}

func dockerAvailable() bool {
	cmd := exec.Command("docker", "version", "--format", "{{.Server.Version}}")
	return cmd.Run() == nil
}

func reserveLocalPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve local port: %v", err)
	}
	defer func() { _ = l.Close() }()
	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok {
		t.Fatalf("unexpected addr type %T", l.Addr())
	}
	return addr.Port
}
