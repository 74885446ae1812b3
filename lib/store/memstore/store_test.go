package memstore

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
)

// TestSetGetRoundTrip tests that a set followed by a get returns the value
func TestSetGetRoundTrip(t *testing.T) {
	s := NewInMemoryBackend()
	ctx := context.Background()

	if err := s.Set(ctx, "key", []byte("value")); err != nil {
		t.Fatalf("Set() returned error: %v", err)
	}

	value, found, err := s.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
	if !found {
		t.Fatal("Get() should find the key after Set()")
	}
	if !bytes.Equal(value, []byte("value")) {
		t.Errorf("Get() returned %q, expected %q", value, "value")
	}
}

// TestGetAbsentKey tests that a key never written returns absence, not an error
func TestGetAbsentKey(t *testing.T) {
	s := NewInMemoryBackend()

	value, found, err := s.Get(context.Background(), "never-written")
	if err != nil {
		t.Fatalf("Get() on absent key returned error: %v", err)
	}
	if found {
		t.Error("Get() on absent key should report not found")
	}
	if value != nil {
		t.Errorf("Get() on absent key should return nil value, got %q", value)
	}
}

// TestSetIdempotence tests that repeated identical sets converge to the same state
func TestSetIdempotence(t *testing.T) {
	s := NewInMemoryBackend()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := s.Set(ctx, "key", []byte("same")); err != nil {
			t.Fatalf("Set() #%d returned error: %v", i+1, err)
		}
	}

	value, found, _ := s.Get(ctx, "key")
	if !found || !bytes.Equal(value, []byte("same")) {
		t.Errorf("expected %q after double set, got %q (found=%t)", "same", value, found)
	}
}

// TestDelete tests deletion including the absent-key no-op and idempotence
func TestDelete(t *testing.T) {
	s := NewInMemoryBackend()
	ctx := context.Background()

	// Deleting an absent key is a no-op success
	if err := s.Delete(ctx, "absent"); err != nil {
		t.Fatalf("Delete() on absent key returned error: %v", err)
	}

	if err := s.Set(ctx, "key", []byte("value")); err != nil {
		t.Fatalf("Set() returned error: %v", err)
	}

	// Deleting twice yields the same state as deleting once
	for i := 0; i < 2; i++ {
		if err := s.Delete(ctx, "key"); err != nil {
			t.Fatalf("Delete() #%d returned error: %v", i+1, err)
		}
	}

	if _, found, _ := s.Get(ctx, "key"); found {
		t.Error("Get() should not find the key after Delete()")
	}
}

// TestValueIsolation tests that callers cannot mutate the stored value through aliasing
func TestValueIsolation(t *testing.T) {
	s := NewInMemoryBackend()
	ctx := context.Background()

	original := []byte("original")
	if err := s.Set(ctx, "key", original); err != nil {
		t.Fatalf("Set() returned error: %v", err)
	}

	// Mutating the slice passed to Set must not affect the stored value
	original[0] = 'X'

	value, _, _ := s.Get(ctx, "key")
	if !bytes.Equal(value, []byte("original")) {
		t.Errorf("stored value was mutated through the Set() argument: %q", value)
	}

	// Mutating the slice returned by Get must not affect the stored value
	value[0] = 'Y'

	again, _, _ := s.Get(ctx, "key")
	if !bytes.Equal(again, []byte("original")) {
		t.Errorf("stored value was mutated through the Get() result: %q", again)
	}
}

// TestConcurrentDistinctKeys tests that concurrent operations on distinct keys succeed
func TestConcurrentDistinctKeys(t *testing.T) {
	s := NewInMemoryBackend()
	ctx := context.Background()

	const (
		workers = 16
		keys    = 100
	)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < keys; i++ {
				key := fmt.Sprintf("worker-%d-key-%d", worker, i)
				value := []byte(fmt.Sprintf("value-%d", i))

				if err := s.Set(ctx, key, value); err != nil {
					t.Errorf("Set(%s) returned error: %v", key, err)
					return
				}
				got, found, err := s.Get(ctx, key)
				if err != nil || !found || !bytes.Equal(got, value) {
					t.Errorf("Get(%s) = %q, %t, %v; expected %q", key, got, found, err, value)
					return
				}
			}
		}(w)
	}
	wg.Wait()
}
