package embedder

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

func benchmarkText(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "export function handleSubmit%d(event) { event.preventDefault(); setUser(await login(form)); }\n", i)
	}
	return b.String()
}

// BenchmarkHashingVector measures local embedding of a typical chunk
func BenchmarkHashingVector(b *testing.B) {
	text := benchmarkText(20)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = HashingVector(text, LocalDimension)
	}
}

// BenchmarkQueueEmbed measures queue overhead on top of the local embedder
func BenchmarkQueueEmbed(b *testing.B) {
	q := NewQueue(NewLocalProvider(), 2, 16)
	defer q.Close()

	ctx := context.Background()
	text := benchmarkText(5)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := q.Embed(ctx, PriorityBulk, text); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkCacheLookup measures a cache hit on a chunk-sized text
func BenchmarkCacheLookup(b *testing.B) {
	cache := NewCache(1000)
	text := benchmarkText(5)
	for i := 0; i < 100; i++ {
		cache.store(DefaultOpenAIModel, fmt.Sprint(text, i), make([]float32, LocalDimension))
	}
	key := fmt.Sprint(text, 42)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.lookup(DefaultOpenAIModel, key)
	}
}
