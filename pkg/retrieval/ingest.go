package retrieval

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/teslashibe/go-edgeassist/pkg/inference"
)

// Chunking defaults, in characters.
const (
	ChunkSize    = 300
	ChunkOverlap = 30
)

// separators are tried in order; the empty separator splits anywhere.
var separators = []string{"\n\n", "\n", " ", ""}

// SongName derives the display name from a lyrics file name:
// "bohemian_rhapsody.txt" becomes "Bohemian Rhapsody".
func SongName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	words := strings.Fields(strings.ReplaceAll(base, "_", " "))
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// Split breaks text into chunks of at most size characters. It cuts at
// blank lines where it can, then at line ends, then at spaces, and only
// splits a word that is longer than size. Neighboring chunks share up to
// overlap characters.
func Split(text string, size, overlap int) []string {
	if size < 1 {
		size = ChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return splitter{size: size, overlap: overlap}.split(text, separators)
}

type splitter struct {
	size, overlap int
}

func (sp splitter) split(text string, seps []string) []string {
	sep, rest := "", []string(nil)
	for i, s := range seps {
		if s == "" || strings.Contains(text, s) {
			sep, rest = s, seps[i+1:]
			break
		}
	}

	var out, small []string
	for _, piece := range strings.Split(text, sep) {
		switch {
		case piece == "":
		case runeLen(piece) < sp.size:
			small = append(small, piece)
		default:
			out = append(out, sp.merge(small, sep)...)
			small = nil
			if len(rest) == 0 {
				out = appendChunk(out, piece)
			} else {
				out = append(out, sp.split(piece, rest)...)
			}
		}
	}
	return append(out, sp.merge(small, sep)...)
}

// merge packs pieces joined by sep into chunks, carrying the tail of each
// chunk into the next as overlap.
func (sp splitter) merge(pieces []string, sep string) []string {
	var (
		out    []string
		window []string
		total  int
	)
	sepLen := runeLen(sep)
	gap := func() int {
		if len(window) > 0 {
			return sepLen
		}
		return 0
	}

	for _, p := range pieces {
		n := runeLen(p)
		if len(window) > 0 && total+gap()+n > sp.size {
			out = appendChunk(out, strings.Join(window, sep))
			for total > sp.overlap || (total > 0 && total+gap()+n > sp.size) {
				total -= runeLen(window[0])
				window = window[1:]
				if len(window) > 0 {
					total -= sepLen
				}
			}
		}
		total += gap() + n
		window = append(window, p)
	}
	if len(window) > 0 {
		out = appendChunk(out, strings.Join(window, sep))
	}
	return out
}

func appendChunk(out []string, chunk string) []string {
	if chunk = strings.TrimSpace(chunk); chunk != "" {
		out = append(out, chunk)
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

// IngestStats summarizes an ingestion run.
type IngestStats struct {
	Songs  int `json:"songs"`
	Chunks int `json:"chunks"`
}

// Ingest embeds every .txt file under dir into s. A file's chunks are
// stored as "<path>#<n>" and replace whatever an earlier run stored for it.
func Ingest(ctx context.Context, s *Store, e Embedder, embedModel, dir string) (IngestStats, error) {
	var stats IngestStats
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".txt") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		source := filepath.ToSlash(rel)
		parts := Split(string(data), ChunkSize, ChunkOverlap)
		if len(parts) == 0 {
			return s.ReplaceSource(ctx, source)
		}

		resp, err := e.Embed(ctx, &inference.EmbedRequest{Input: parts, Model: embedModel})
		if err != nil {
			return fmt.Errorf("embed %s: %w", path, err)
		}
		if len(resp.Embeddings) != len(parts) {
			return fmt.Errorf("embed %s: got %d vectors for %d chunks", path, len(resp.Embeddings), len(parts))
		}

		song := SongName(path)
		chunks := make([]Chunk, len(parts))
		for i, p := range parts {
			chunks[i] = Chunk{
				ID:        fmt.Sprintf("%s#%d", source, i),
				Song:      song,
				Content:   p,
				Embedding: resp.Embeddings[i],
			}
		}
		if err := s.ReplaceSource(ctx, source, chunks...); err != nil {
			return err
		}
		stats.Songs++
		stats.Chunks += len(chunks)
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("retrieval: ingest %s: %w", dir, err)
	}
	return stats, nil
}
