package modcfg_test

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/randalmurphal/modcfg/pkg/modcfg"
	"github.com/randalmurphal/modcfg/pkg/modcfg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribe_BeforeNamespaceExists(t *testing.T) {
	s := modcfg.New(modcfg.WithLogger(nil))

	var got []modcfg.Change
	sub := s.Subscribe("mod", func(c modcfg.Change) {
		got = append(got, c)
	})
	require.NotNil(t, sub)
	assert.Equal(t, "mod", sub.Namespace())

	require.NoError(t, s.SetString("mod", "k", "v"))

	require.Len(t, got, 1)
	assert.Equal(t, modcfg.Change{Namespace: "mod", Key: "k", Kind: value.String, Value: "v"}, got[0])
	assert.Equal(t, value.OfString("v"), got[0].TypedValue())
}

func TestSubscribe_OnlyOwnNamespace(t *testing.T) {
	s := modcfg.New(modcfg.WithLogger(nil))

	calls := 0
	s.Subscribe("audio", func(modcfg.Change) { calls++ })

	require.NoError(t, s.SetInt("video", "fps", 60))
	assert.Equal(t, 0, calls)

	require.NoError(t, s.SetInt("audio", "volume", 5))
	assert.Equal(t, 1, calls)
}

func TestSubscribe_RegistrationOrder(t *testing.T) {
	s := modcfg.New(modcfg.WithLogger(nil))

	var order []string
	s.Subscribe("mod", func(modcfg.Change) { order = append(order, "first") })
	s.Subscribe("mod", func(modcfg.Change) { order = append(order, "second") })
	s.Subscribe("mod", func(modcfg.Change) { order = append(order, "third") })

	require.NoError(t, s.SetBool("mod", "k", true))
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestSubscribe_NilListener(t *testing.T) {
	s := modcfg.New(modcfg.WithLogger(nil))
	assert.Nil(t, s.Subscribe("mod", nil))
	assert.Equal(t, 0, s.Listeners("mod"))
}

func TestUnsubscribe(t *testing.T) {
	s := modcfg.New(modcfg.WithLogger(nil))

	calls := 0
	sub := s.Subscribe("mod", func(modcfg.Change) { calls++ })
	require.NoError(t, s.SetInt("mod", "k", 1))

	assert.True(t, s.Unsubscribe(sub))
	assert.False(t, sub.Active())
	assert.False(t, s.Unsubscribe(sub))
	sub.Unsubscribe()

	require.NoError(t, s.SetInt("mod", "k", 2))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, s.Listeners("mod"))

	assert.False(t, s.Unsubscribe(nil))
	other := modcfg.New(modcfg.WithLogger(nil))
	foreign := other.Subscribe("mod", func(modcfg.Change) {})
	assert.False(t, s.Unsubscribe(foreign))
	assert.True(t, foreign.Active())
}

func TestUnsubscribe_DuringDelivery(t *testing.T) {
	s := modcfg.New(modcfg.WithLogger(nil))

	var second *modcfg.Subscription
	secondCalls := 0
	s.Subscribe("mod", func(modcfg.Change) { second.Unsubscribe() })
	second = s.Subscribe("mod", func(modcfg.Change) { secondCalls++ })

	require.NoError(t, s.SetInt("mod", "k", 1))
	assert.Equal(t, 0, secondCalls)
}

func TestUnsubscribe_SelfStopsQueuedChanges(t *testing.T) {
	s := modcfg.New(modcfg.WithLogger(nil))

	var seen []string
	var sub *modcfg.Subscription
	sub = s.Subscribe("mod", func(c modcfg.Change) {
		seen = append(seen, c.Key)
		if c.Key == "first" {
			require.NoError(t, s.SetInt("mod", "second", 2))
			sub.Unsubscribe()
		}
	})

	require.NoError(t, s.SetInt("mod", "first", 1))

	assert.Equal(t, []string{"first"}, seen)
	assert.False(t, sub.Active())
}

func TestRemoveKey_DoesNotNotify(t *testing.T) {
	s := modcfg.New(modcfg.WithLogger(nil))

	calls := 0
	s.Subscribe("mod", func(modcfg.Change) { calls++ })
	require.NoError(t, s.SetInt("mod", "k", 1))
	require.True(t, s.RemoveKey("mod", "k"))

	assert.Equal(t, 1, calls)
}

func TestDelivery_ReentrantSetIsQueued(t *testing.T) {
	s := modcfg.New(modcfg.WithLogger(nil))

	var log []string
	s.Subscribe("mod", func(c modcfg.Change) {
		log = append(log, "a:"+c.Key)
		if c.Key == "trigger" {
			require.NoError(t, s.SetInt("mod", "derived", 2))

			// The write is visible before its notification.
			v, err := s.GetInt("mod", "derived", 0)
			require.NoError(t, err)
			assert.Equal(t, 2, v)
		}
	})
	s.Subscribe("mod", func(c modcfg.Change) {
		log = append(log, "b:"+c.Key)
	})

	require.NoError(t, s.SetInt("mod", "trigger", 1))

	assert.Equal(t, []string{"a:trigger", "b:trigger", "a:derived", "b:derived"}, log)
}

func TestDelivery_ListenerWritesOtherNamespace(t *testing.T) {
	s := modcfg.New(modcfg.WithLogger(nil))

	var mirrored []string
	s.Subscribe("source", func(c modcfg.Change) {
		require.NoError(t, s.SetString("mirror", c.Key, c.Value))
	})
	s.Subscribe("mirror", func(c modcfg.Change) {
		mirrored = append(mirrored, c.Key+"="+c.Value)
	})

	require.NoError(t, s.SetString("source", "theme", "dark"))
	assert.Equal(t, []string{"theme=dark"}, mirrored)
}

func TestDelivery_PanicIsRecovered(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := modcfg.New(modcfg.WithLogger(logger))

	after := 0
	s.Subscribe("mod", func(modcfg.Change) { panic("listener bug") })
	s.Subscribe("mod", func(modcfg.Change) { after++ })

	require.NotPanics(t, func() {
		require.NoError(t, s.SetInt("mod", "k", 1))
	})
	assert.Equal(t, 1, after)
	assert.Contains(t, buf.String(), "listener bug")

	// Delivery state is not left stuck after a panic.
	require.NoError(t, s.SetInt("mod", "k", 2))
	assert.Equal(t, 2, after)
}

func TestDelivery_ConcurrentWritersReachEveryListener(t *testing.T) {
	s := modcfg.New(modcfg.WithLogger(nil))

	var mu sync.Mutex
	seen := make(map[int]bool)
	s.Subscribe("mod", func(c modcfg.Change) {
		v, err := c.TypedValue().AsInt()
		assert.NoError(t, err)
		mu.Lock()
		seen[v] = true
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, s.SetInt("mod", "k", n))
		}(i)
	}
	wg.Wait()

	// Writers may return while another goroutine still delivers their change.
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 100
	}, time.Second, 5*time.Millisecond)
}
