package rag

import (
	"strings"
	"unicode/utf8"
)

// defaultSeparators are tried in order, from coarsest (paragraph) to
// finest (character).
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter breaks text into overlapping chunks for embedding.
// It splits on the coarsest separator that appears in the text and
// recurses with finer separators on pieces that still exceed the chunk
// size, then greedily merges pieces back into chunks, carrying the
// configured overlap between consecutive chunks.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// NewSplitter creates a Splitter. chunkSize must be positive and
// chunkOverlap must be smaller than chunkSize; config.Validate
// guarantees that for configured values.
func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   defaultSeparators,
	}
}

// Split breaks text into chunks of at most chunkSize runes.
// Blank chunks are dropped; the empty string yields no chunks.
func (s *Splitter) Split(text string) []string {
	pieces := s.split(text, s.separators)

	chunks := make([]string, 0, len(pieces))
	for _, c := range pieces {
		if strings.TrimSpace(c) != "" {
			chunks = append(chunks, c)
		}
	}
	return chunks
}

func (s *Splitter) split(text string, separators []string) []string {
	if utf8.RuneCountInString(text) <= s.chunkSize {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	// Pick the coarsest separator that appears in the text; the empty
	// separator always matches and splits rune by rune.
	sep := ""
	var finer []string
	for i, candidate := range separators {
		if candidate == "" || strings.Contains(text, candidate) {
			sep = candidate
			finer = separators[i+1:]
			break
		}
	}

	var pieces []string
	for _, piece := range splitKeepSeparator(text, sep) {
		if utf8.RuneCountInString(piece) > s.chunkSize {
			pieces = append(pieces, s.split(piece, finer)...)
		} else {
			pieces = append(pieces, piece)
		}
	}

	return s.merge(pieces)
}

// splitKeepSeparator splits text by sep, keeping the separator attached
// to the preceding piece so no characters are lost on re-join.
func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		runes := []rune(text)
		pieces := make([]string, 0, len(runes))
		for _, r := range runes {
			pieces = append(pieces, string(r))
		}
		return pieces
	}

	parts := strings.Split(text, sep)
	pieces := make([]string, 0, len(parts))
	for i, part := range parts {
		if i < len(parts)-1 {
			part += sep
		}
		if part != "" {
			pieces = append(pieces, part)
		}
	}
	return pieces
}

// merge greedily packs pieces into chunks of at most chunkSize runes,
// then seeds each following chunk with the trailing pieces of the
// previous one up to chunkOverlap runes.
func (s *Splitter) merge(pieces []string) []string {
	var chunks []string
	var current []string
	currentLen := 0

	for _, piece := range pieces {
		n := utf8.RuneCountInString(piece)
		if currentLen+n > s.chunkSize && currentLen > 0 {
			chunks = append(chunks, strings.Join(current, ""))
			// Drop leading pieces until only the overlap remains and
			// the incoming piece fits.
			for currentLen > s.chunkOverlap || (currentLen+n > s.chunkSize && currentLen > 0) {
				currentLen -= utf8.RuneCountInString(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		currentLen += n
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, ""))
	}

	return chunks
}
