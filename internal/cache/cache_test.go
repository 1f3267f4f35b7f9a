package cache

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestKey_Deterministic(t *testing.T) {
	variants := []string{
		"What is the capital of France?",
		"  what   is the capital of FRANCE?  ",
		"What is the capital of France?\n",
		"What, is the \"capital\" of France?",
		"what is\tthe capital of france?",
	}

	want := Key(variants[0])
	assert.Equal(t, "what is the capital of france?", want)
	for _, v := range variants {
		assert.Equal(t, want, Key(v), "variant %q", v)
		assert.Equal(t, Key(v), Key(Normalize(v)))
	}
}

func TestKey_KeepsSentencePunctuationAndUnicode(t *testing.T) {
	assert.Equal(t, "wait... really?!", Key("Wait... really?!"))
	assert.NotEqual(t, Key("is it done?"), Key("is it done."))
	assert.Equal(t, "où est le café?", Key("Où est le café?"))
}

func TestKey_LongTextHashedToFixedWidth(t *testing.T) {
	long := strings.Repeat("why is this sentence so long ", 10) + "?"
	other := strings.Repeat("why is that sentence so long ", 10) + "?"

	k := Key(long)
	require.True(t, IsHashed(k))
	assert.True(t, strings.HasPrefix(k, "h:"))
	assert.Len(t, k, len("h:")+32)
	assert.Len(t, Key(other), len(k))
	assert.NotEqual(t, k, Key(other))
	assert.Equal(t, k, Key(strings.ToUpper(long)))

	short := Key("how are you?")
	assert.False(t, IsHashed(short))
	assert.False(t, IsHashed(Key("h: is this a key?")), "the prefix cannot survive normalization")
}

func TestCompress(t *testing.T) {
	assert.Equal(t, "what is capital of france?", Compress("what is the capital of france?"))
	assert.Equal(t, "um", Compress("um"))

	hashed := Key(strings.Repeat("abc ", 40))
	assert.Equal(t, hashed, Compress(hashed))
}

func TestCompress_FalseHitRateBounded(t *testing.T) {
	subjects := []string{"server", "database", "meeting", "invoice", "printer", "deploy", "backup", "router", "ticket", "release"}
	templates := []string{
		"what is the status of the %s?",
		"how do i restart the %s?",
		"why did the %s fail?",
		"is the %s ready?",
		"who owns the %s?",
		"when is a %s due?",
		"when is the %s due?",
		"can you check an %s?",
	}

	compressed := make(map[string][]string)
	total := 0
	for _, s := range subjects {
		for _, tpl := range templates {
			text := fmt.Sprintf(tpl, s)
			k := Compress(Key(text))
			compressed[k] = append(compressed[k], text)
			total++
		}
	}

	collisions := 0
	for _, texts := range compressed {
		collisions += len(texts) - 1
	}
	rate := float64(collisions) / float64(total)
	assert.LessOrEqual(t, rate, 0.15, "compression merged %d of %d distinct inputs", collisions, total)
	assert.Greater(t, collisions, 0, "the a/the template pair is expected to collide")
}

func TestLRU_CapacityAndEvictionOrder(t *testing.T) {
	c := NewLRU[int](3, 0)

	for i := 0; i < 3; i++ {
		_, evicted := c.Put(fmt.Sprintf("k%d", i), i)
		assert.False(t, evicted)
	}

	_, ok := c.Get("k0")
	require.True(t, ok)

	victim, evicted := c.Put("k3", 3)
	require.True(t, evicted)
	assert.Equal(t, "k1", victim)

	victim, evicted = c.Put("k4", 4)
	require.True(t, evicted)
	assert.Equal(t, "k2", victim)

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"k4", "k3", "k0"}, c.Keys())
}

func TestLRU_NeverExceedsCapacity(t *testing.T) {
	const capacity = 10
	c := NewLRU[string](capacity, time.Minute)

	for i := 0; i < capacity+25; i++ {
		c.Put(fmt.Sprintf("key-%d", i), "v")
		assert.LessOrEqual(t, c.Len(), capacity)
	}

	keys := c.Keys()
	require.Len(t, keys, capacity)
	assert.Equal(t, "key-34", keys[0])
	assert.Equal(t, "key-25", keys[capacity-1])
	assert.Equal(t, uint64(25), c.Stats().Evictions)
}

func TestLRU_ReplaceDoesNotEvict(t *testing.T) {
	c := NewLRU[int](2, 0)
	c.Put("a", 1)
	c.Put("b", 2)

	_, evicted := c.Put("a", 10)
	assert.False(t, evicted)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, v)
	assert.Equal(t, 2, c.Len())
}

func TestLRU_TTLExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := NewLRU[string](10, time.Minute, WithClock(clock.Now))

	c.Put("a", "1")
	clock.Advance(30 * time.Second)
	c.Put("b", "2")

	_, ok := c.Get("a")
	require.True(t, ok, "reads do not extend the ttl")

	clock.Advance(31 * time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)

	clock.Advance(time.Minute)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 0, c.Len())

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Expirations)
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestLRU_PeekDeletePurge(t *testing.T) {
	c := NewLRU[int](2, 0)
	c.Put("a", 1)
	c.Put("b", 2)

	v, ok := c.Peek("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, []string{"b", "a"}, c.Keys(), "peek must not refresh recency")

	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"))
	assert.Equal(t, 1, c.Stats().KeyBytes)

	c.Purge()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, c.Stats().KeyBytes)
}

func TestLRU_ConcurrentAccess(t *testing.T) {
	c := NewLRU[int](50, time.Minute)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("%d-%d", g, i%80)
				c.Put(key, i)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 50)
}
