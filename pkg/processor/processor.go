// Package processor splits scraped text into passages sized for embedding.
package processor

import (
	"strings"
	"unicode/utf8"

	"github.com/xhad/solar/internal/models"
)

type SplitterConfig struct {
	// Sizes are counted in runes.
	ChunkSize      int
	ChunkOverlap   int
	MinChunkLength int
}

type Splitter struct {
	config SplitterConfig
}

// Passage is one chunk of a page, numbered within that page.
type Passage struct {
	URL   string
	Index int
	Text  string
}

func NewSplitter(config SplitterConfig) *Splitter {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap < 0 {
		config.ChunkOverlap = 0
	}
	if config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize / 5
	}
	if config.MinChunkLength < 0 {
		config.MinChunkLength = 0
	}
	return &Splitter{config: config}
}

// Process splits every page, skipping pages that yield no passage.
func (s *Splitter) Process(pages []models.Page) []Passage {
	var passages []Passage
	for _, page := range pages {
		for i, text := range s.Split(page.Content) {
			passages = append(passages, Passage{URL: page.URL, Index: i, Text: text})
		}
	}
	return passages
}

// Split packs whole sentences into chunks of at most ChunkSize runes. Each new
// chunk starts with the last ChunkOverlap runes of the previous one, cut at a word
// boundary. Chunks shorter than MinChunkLength are dropped.
func (s *Splitter) Split(text string) []string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}

	var chunks []string
	emit := func(chunk string) {
		if utf8.RuneCountInString(chunk) >= s.config.MinChunkLength {
			chunks = append(chunks, chunk)
		}
	}

	var current string
	for _, sentence := range s.pieces(text) {
		if current != "" && !s.fits(current, sentence) {
			emit(current)
			current = s.overlap(current)
			if current != "" && !s.fits(current, sentence) {
				current = ""
			}
		}
		if current == "" {
			current = sentence
		} else {
			current += " " + sentence
		}
	}
	emit(current)
	return chunks
}

func (s *Splitter) fits(chunk, sentence string) bool {
	return utf8.RuneCountInString(chunk)+1+utf8.RuneCountInString(sentence) <= s.config.ChunkSize
}

// overlap returns the tail of chunk to carry into the next one.
func (s *Splitter) overlap(chunk string) string {
	if s.config.ChunkOverlap == 0 {
		return ""
	}
	runes := []rune(chunk)
	if len(runes) <= s.config.ChunkOverlap {
		return ""
	}
	tail := string(runes[len(runes)-s.config.ChunkOverlap:])
	i := strings.IndexByte(tail, ' ')
	if i < 0 {
		return ""
	}
	return tail[i+1:]
}

// pieces returns the sentences of text, with sentences longer than ChunkSize
// broken on word boundaries.
func (s *Splitter) pieces(text string) []string {
	var out []string
	for _, sentence := range splitSentences(text) {
		if utf8.RuneCountInString(sentence) <= s.config.ChunkSize {
			out = append(out, sentence)
			continue
		}
		var b strings.Builder
		n := 0
		for _, word := range strings.Fields(sentence) {
			wn := utf8.RuneCountInString(word)
			if n > 0 && n+1+wn > s.config.ChunkSize {
				out = append(out, b.String())
				b.Reset()
				n = 0
			}
			if n > 0 {
				b.WriteByte(' ')
				n++
			}
			b.WriteString(word)
			n += wn
		}
		if b.Len() > 0 {
			out = append(out, b.String())
		}
	}
	return out
}

// splitSentences splits whitespace-normalised text after '.', '!' or '?' followed by a space.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		switch text[i] {
		case '.', '!', '?':
			if text[i+1] == ' ' {
				sentences = append(sentences, text[start:i+1])
				start = i + 2
			}
		}
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}
