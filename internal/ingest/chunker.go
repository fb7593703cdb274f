package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// Chunk is one unit of content pushed to the vector store.
type Chunk struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Source   string            `json:"source"`
	Page     string            `json:"page"`
	Index    int               `json:"chunk_index"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Chunker splits cleaned text into overlapping chunks sized for similarity
// search. Chunks below MinSize are folded into their predecessor.
type Chunker struct {
	Size    int
	Overlap int
	MinSize int
}

func NewChunker() *Chunker {
	return &Chunker{Size: 500, Overlap: 50, MinSize: 100}
}

var (
	htmlTagRe    = regexp.MustCompile(`(?s)<(script|style)\b.*?</(script|style)>|<[^>]+>`)
	mdHeadingRe  = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdLinkRe     = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Split cleans the raw text (HTML tags, markdown syntax) and cuts it into
// chunks on whitespace boundaries near the target size.
func (c *Chunker) Split(source, page, raw string) []Chunk {
	text := CleanText(raw)
	if len(text) == 0 {
		return nil
	}

	var pieces []string
	for start := 0; start < len(text); {
		end := start + c.Size
		if end >= len(text) {
			pieces = append(pieces, text[start:])
			break
		}
		// Cut at the last space inside the window to avoid splitting words.
		cut := strings.LastIndexByte(text[start:end], ' ')
		if cut <= 0 {
			cut = c.Size
		}
		pieces = append(pieces, text[start:start+cut])
		next := start + cut - c.Overlap
		if next <= start {
			next = start + cut
		}
		start = next
	}

	// Fold a trailing runt into the previous chunk.
	if n := len(pieces); n > 1 && len(pieces[n-1]) < c.MinSize {
		pieces[n-2] = pieces[n-2] + " " + pieces[n-1]
		pieces = pieces[:n-1]
	}

	chunks := make([]Chunk, 0, len(pieces))
	for i, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			ID:      chunkID(source, piece, i),
			Content: piece,
			Source:  source,
			Page:    page,
			Index:   i,
			Metadata: map[string]string{
				"source": source,
				"page":   page,
			},
		})
	}
	return chunks
}

// CleanText strips HTML tags and markdown decoration and collapses
// whitespace.
func CleanText(raw string) string {
	s := htmlTagRe.ReplaceAllString(raw, " ")
	s = mdHeadingRe.ReplaceAllString(s, "")
	s = mdLinkRe.ReplaceAllString(s, "$1")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func chunkID(source, content string, index int) string {
	sum := sha256.Sum256([]byte(source + content))
	return fmt.Sprintf("%s-%d", hex.EncodeToString(sum[:6]), index)
}
