package processor_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/xhad/solar/internal/models"
	"github.com/xhad/solar/pkg/processor"
)

func TestSplitter_Split(t *testing.T) {
	text := "Jeju is an island.   It has many\nrestaurants. Black pork is famous."

	tests := []struct {
		name   string
		config processor.SplitterConfig
		want   []string
	}{
		{
			name:   "single chunk",
			config: processor.SplitterConfig{ChunkSize: 200},
			want:   []string{"Jeju is an island. It has many restaurants. Black pork is famous."},
		},
		{
			name:   "no overlap",
			config: processor.SplitterConfig{ChunkSize: 50},
			want: []string{
				"Jeju is an island. It has many restaurants.",
				"Black pork is famous.",
			},
		},
		{
			name:   "overlap cut at word boundary",
			config: processor.SplitterConfig{ChunkSize: 50, ChunkOverlap: 20},
			want: []string{
				"Jeju is an island. It has many restaurants.",
				"many restaurants. Black pork is famous.",
			},
		},
		{
			name:   "minimum length drops short chunks",
			config: processor.SplitterConfig{ChunkSize: 50, MinChunkLength: 30},
			want:   []string{"Jeju is an island. It has many restaurants."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := processor.NewSplitter(tt.config)
			assert.Equal(t, tt.want, s.Split(text))
		})
	}
}

func TestSplitter_PreservesCase(t *testing.T) {
	s := processor.NewSplitter(processor.SplitterConfig{ChunkSize: 100})
	assert.Equal(t, []string{"Seongsan Ilchulbong Peak."}, s.Split("Seongsan Ilchulbong Peak."))
}

func TestSplitter_Empty(t *testing.T) {
	s := processor.NewSplitter(processor.SplitterConfig{})
	assert.Nil(t, s.Split(" \n\t "))
}

func TestSplitter_LongSentenceAndRunes(t *testing.T) {
	s := processor.NewSplitter(processor.SplitterConfig{ChunkSize: 12, ChunkOverlap: 5})
	text := strings.Repeat("흑돼지 ", 10)

	chunks := s.Split(text)
	assert.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c))
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 12, c)
	}
}

func TestSplitter_Process(t *testing.T) {
	s := processor.NewSplitter(processor.SplitterConfig{ChunkSize: 50})
	pages := []models.Page{
		{URL: "https://example.com/a", Content: "Jeju is an island. It has many restaurants. Black pork is famous."},
		{URL: "https://example.com/empty", Content: "   "},
		{URL: "https://example.com/b", Content: "Tangerines grow here."},
	}

	passages := s.Process(pages)
	assert.Equal(t, []processor.Passage{
		{URL: "https://example.com/a", Index: 0, Text: "Jeju is an island. It has many restaurants."},
		{URL: "https://example.com/a", Index: 1, Text: "Black pork is famous."},
		{URL: "https://example.com/b", Index: 0, Text: "Tangerines grow here."},
	}, passages)
}
