package store

import (
	"strings"
	"unicode"
)

// ChunkConfig defines chunking parameters.
type ChunkConfig struct {
	// Threshold: only chunk if content exceeds this length
	Threshold int
	// TargetSize: ideal chunk size
	TargetSize int
	// MinSize: minimum chunk size (smaller chunks merge with neighbors)
	MinSize int
	// MaxSize: maximum chunk size (larger chunks split at sentences)
	MaxSize int
	// Overlap: character overlap carried between chunks
	Overlap int
}

// DefaultChunkConfig returns sensible defaults.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		Threshold:  1500,
		TargetSize: 750,
		MinSize:    200,
		MaxSize:    1000,
		Overlap:    100,
	}
}

// Chunk splits page text into retrieval-sized pieces. Paragraph
// boundaries are preferred; oversized paragraphs split at sentences.
func Chunk(content string, cfg ChunkConfig) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if len(content) <= cfg.Threshold {
		return []string{content}
	}

	var chunks []string
	var cur strings.Builder

	flush := func() {
		text := strings.TrimSpace(cur.String())
		cur.Reset()
		if text == "" {
			return
		}
		chunks = append(chunks, text)
		// Carry a tail of the flushed chunk for context continuity.
		if cfg.Overlap > 0 && len(text) > cfg.Overlap {
			cur.WriteString(text[len(text)-cfg.Overlap:])
			cur.WriteString("\n")
		}
	}

	for _, para := range splitParagraphs(content) {
		if len(para) > cfg.MaxSize {
			flush()
			for _, piece := range splitBySentences(para, cfg.MaxSize) {
				cur.WriteString(piece)
				if cur.Len() >= cfg.TargetSize {
					flush()
				} else {
					cur.WriteString(" ")
				}
			}
			flush()
			continue
		}

		if cur.Len()+len(para) > cfg.MaxSize {
			flush()
		}
		cur.WriteString(para)
		cur.WriteString("\n\n")
		if cur.Len() >= cfg.TargetSize {
			flush()
		}
	}
	flush()

	// Merge a trailing runt into its predecessor.
	if n := len(chunks); n > 1 && len(chunks[n-1]) < cfg.MinSize {
		chunks[n-2] = chunks[n-2] + "\n\n" + chunks[n-1]
		chunks = chunks[:n-1]
	}

	return chunks
}

func splitParagraphs(content string) []string {
	var paras []string
	for _, p := range strings.Split(content, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paras = append(paras, p)
		}
	}
	return paras
}

// splitBySentences breaks text at sentence boundaries into pieces no
// larger than maxSize, hard-splitting only when a single sentence
// exceeds the cap.
func splitBySentences(text string, maxSize int) []string {
	var sentences []string
	start := 0
	for i, r := range text {
		if (r == '.' || r == '!' || r == '?') && i+1 < len(text) {
			next := rune(text[i+1])
			if unicode.IsSpace(next) {
				sentences = append(sentences, strings.TrimSpace(text[start:i+1]))
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		sentences = append(sentences, rest)
	}

	var pieces []string
	var cur strings.Builder
	for _, s := range sentences {
		for len(s) > maxSize {
			pieces = append(pieces, s[:maxSize])
			s = s[maxSize:]
		}
		if cur.Len()+len(s)+1 > maxSize {
			pieces = append(pieces, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
		cur.WriteString(s)
		cur.WriteString(" ")
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		pieces = append(pieces, rest)
	}
	return pieces
}
