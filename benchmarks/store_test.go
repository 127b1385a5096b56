package benchmarks

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/randalmurphal/modcfg/pkg/modcfg"
)

// keyID generates a key name from an index.
func keyID(i int) string {
	return fmt.Sprintf("key-%d", i)
}

// populatedStore returns a store holding n int values in ns.
func populatedStore(b *testing.B, ns string, n int) *modcfg.Store {
	b.Helper()
	store := modcfg.New(modcfg.WithLogger(nil))
	for i := 0; i < n; i++ {
		if err := store.SetInt(ns, keyID(i), i); err != nil {
			b.Fatal(err)
		}
	}
	return store
}

// BenchmarkStore_SetInt measures a typed write with no listeners.
func BenchmarkStore_SetInt(b *testing.B) {
	store := modcfg.New(modcfg.WithLogger(nil))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = store.SetInt("bench", keyID(i%100), i)
	}
}

// BenchmarkStore_SetInt_WithListeners measures a write fanned out to listeners.
func BenchmarkStore_SetInt_WithListeners(b *testing.B) {
	for _, n := range []int{1, 10, 100} {
		b.Run(fmt.Sprintf("listeners=%d", n), func(b *testing.B) {
			store := modcfg.New(modcfg.WithLogger(nil))
			var calls atomic.Int64
			for j := 0; j < n; j++ {
				store.Subscribe("bench", func(modcfg.Change) { calls.Add(1) })
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = store.SetInt("bench", keyID(i%100), i)
			}
		})
	}
}

// BenchmarkStore_GetInt measures a typed read of a present key.
func BenchmarkStore_GetInt(b *testing.B) {
	store := populatedStore(b, "bench", 100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.GetInt("bench", keyID(i%100), 0)
	}
}

// BenchmarkStore_GetInt_Missing measures a read that falls back to the default.
func BenchmarkStore_GetInt_Missing(b *testing.B) {
	store := populatedStore(b, "bench", 100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.GetInt("bench", "absent", 0)
	}
}

// BenchmarkStore_GetKeys measures listing keys for namespaces of varying size.
func BenchmarkStore_GetKeys(b *testing.B) {
	for _, n := range []int{10, 100, 1000} {
		b.Run(fmt.Sprintf("keys=%d", n), func(b *testing.B) {
			store := populatedStore(b, "bench", n)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = store.GetKeys("bench")
			}
		})
	}
}

// BenchmarkStore_ParallelGetSet measures mixed access across namespaces.
func BenchmarkStore_ParallelGetSet(b *testing.B) {
	store := modcfg.New(modcfg.WithLogger(nil))

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			ns := fmt.Sprintf("mod-%d", i%8)
			if i%4 == 0 {
				_ = store.SetInt(ns, keyID(i%50), i)
			} else {
				_, _ = store.GetInt(ns, keyID(i%50), 0)
			}
			i++
		}
	})
}
