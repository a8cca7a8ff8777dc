package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/blagoySimandov/certmapper/internal/models"
)

func TestAgentHandleProviderCreatesOnce(t *testing.T) {
	backend := newFakeBackend()
	backend.createDelay = 20 * time.Millisecond
	provider := NewAgentHandleProvider(backend, AgentDefinition{Name: DefaultAgentName, Model: "gpt-4o"})

	const callers = 16
	handles := make([]models.AgentHandle, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := provider.Get(context.Background())
			if err != nil {
				t.Errorf("unexpected err: %v", err)
				return
			}
			handles[i] = h
		}(i)
	}
	wg.Wait()

	if got := backend.createCalls.Load(); got != 1 {
		t.Fatalf("expected exactly one create call, got %d", got)
	}
	for i := 1; i < callers; i++ {
		if handles[i] != handles[0] {
			t.Fatalf("handle %d differs: %+v vs %+v", i, handles[i], handles[0])
		}
	}
	if current, ok := provider.Current(); !ok || current != handles[0] {
		t.Fatalf("expected current handle to match")
	}
}

func TestAgentHandleProviderRetriesAfterFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.createErr = errors.New("quota exceeded")
	provider := NewAgentHandleProvider(backend, AgentDefinition{Name: DefaultAgentName})

	if _, err := provider.Get(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if _, ok := provider.Current(); ok {
		t.Fatalf("failed creation must not be cached")
	}

	backend.createErr = nil
	h, err := provider.Get(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if h.ID != "asst_2" {
		t.Fatalf("expected second creation attempt, got %q", h.ID)
	}
}

func TestAgentHandleProviderWaiterHonoursOwnContext(t *testing.T) {
	backend := newFakeBackend()
	backend.createDelay = 200 * time.Millisecond
	provider := NewAgentHandleProvider(backend, AgentDefinition{Name: DefaultAgentName})

	first := make(chan error, 1)
	go func() {
		_, err := provider.Get(context.Background())
		first <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	begin := time.Now()
	if _, err := provider.Get(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if waited := time.Since(begin); waited > 150*time.Millisecond {
		t.Fatalf("waiter was blocked by the creation for %s", waited)
	}

	if err := <-first; err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got := backend.createCalls.Load(); got != 1 {
		t.Fatalf("expected exactly one create call, got %d", got)
	}
}

func TestAgentHandleProviderCreationOutlivesCaller(t *testing.T) {
	backend := newFakeBackend()
	backend.createDelay = 50 * time.Millisecond
	provider := NewAgentHandleProvider(backend, AgentDefinition{Name: DefaultAgentName})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := provider.Get(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	h, err := provider.Get(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if h.ID != "asst_1" || backend.createCalls.Load() != 1 {
		t.Fatalf("expected the first creation to be reused, got %q after %d calls", h.ID, backend.createCalls.Load())
	}
	backend.mu.Lock()
	defer backend.mu.Unlock()
	if backend.createCtxErr != nil {
		t.Fatalf("creation ran on a cancelled context: %v", backend.createCtxErr)
	}
}
