// ABOUTME: Tests for the replay filter
// ABOUTME: Validates keying, TTL expiry, capacity eviction, reset and concurrency safety

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "", Key("", "text"))
	assert.Equal(t, Key("e1", "hello"), Key("e1", "hello"))
	assert.NotEqual(t, Key("e1", "hello"), Key("e1", "hello world"))
	assert.NotEqual(t, Key("e1", "hello"), Key("e2", "hello"))
}

func TestFilter_CheckAndMark(t *testing.T) {
	f := New(5*time.Minute, 100)
	defer f.Close()

	k := Key("evt", "partial text")
	assert.False(t, f.CheckAndMark(k), "first sighting is new")
	assert.True(t, f.CheckAndMark(k), "second sighting is a replay")
	assert.True(t, f.contains(k))
}

func TestFilter_EmptyKeyNeverDuplicate(t *testing.T) {
	f := New(5*time.Minute, 100)
	defer f.Close()

	assert.False(t, f.CheckAndMark(""))
	assert.False(t, f.CheckAndMark(""))
	assert.Equal(t, 0, f.size())
}

func TestFilter_Expiry(t *testing.T) {
	f := New(10*time.Millisecond, 100)
	defer f.Close()

	f.CheckAndMark("k")
	time.Sleep(20 * time.Millisecond)

	assert.False(t, f.contains("k"))
	assert.False(t, f.CheckAndMark("k"), "expired key is new again")
}

func TestFilter_EvictsOldest(t *testing.T) {
	f := New(5*time.Minute, 3)
	defer f.Close()

	for i := 1; i <= 4; i++ {
		f.CheckAndMark(fmt.Sprintf("k%d", i))
	}

	assert.False(t, f.contains("k1"), "oldest key should be evicted")
	assert.True(t, f.contains("k2"))
	assert.True(t, f.contains("k3"))
	assert.True(t, f.contains("k4"))
	assert.Equal(t, 3, f.size())
}

func TestFilter_RemoveExpired(t *testing.T) {
	f := New(time.Minute, 100)
	defer f.Close()

	base := time.Now()
	f.now = func() time.Time { return base }
	f.CheckAndMark("old")
	f.now = func() time.Time { return base.Add(30 * time.Second) }
	f.CheckAndMark("new")

	f.now = func() time.Time { return base.Add(70 * time.Second) }
	f.removeExpired()

	assert.Equal(t, 1, f.size())
	assert.True(t, f.contains("new"))
}

func TestFilter_Reset(t *testing.T) {
	f := New(time.Minute, 10)
	defer f.Close()

	f.CheckAndMark("a")
	f.Reset()

	assert.Equal(t, 0, f.size())
	assert.False(t, f.CheckAndMark("a"))
}

func TestFilter_CloseTwice(t *testing.T) {
	f := New(time.Minute, 10)
	f.Close()
	assert.NotPanics(t, f.Close)
}

func TestFilter_Concurrent(t *testing.T) {
	f := New(time.Minute, 1000)
	defer f.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	fresh := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !f.CheckAndMark("shared") {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fresh, "exactly one goroutine should see the key as new")
}
