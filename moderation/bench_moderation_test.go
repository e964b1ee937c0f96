package moderation

import (
	"fmt"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func buildLargeFilter(b *testing.B, wordCount int) *Filter {
	req := require.New(b)
	log := logs.GetLoggerFromLevel(slog.LevelError)

	words := make([]string, 0, wordCount)
	for i := 0; i < wordCount; i++ {
		words = append(words, fmt.Sprintf("blacklisted%d", i))
	}
	filter, err := NewFilter(Dictionaries{"en": words, "fr": words[:wordCount/2]}, '*', log)
	req.NoError(err)
	return filter
}

func BenchmarkFilter_Build(b *testing.B) {
	for b.Loop() {
		buildLargeFilter(b, 10_000)
	}
}

func BenchmarkFilter_Moderate(b *testing.B) {
	filter := buildLargeFilter(b, 100_000)
	text := "Hello everyone, blacklisted42 is not welcome in this room but the rest of the sentence is fine"

	b.ResetTimer()
	for b.Loop() {
		filter.Moderate(text)
	}
}
