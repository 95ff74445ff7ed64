package stages

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/fableworks/fableflow/pkg/orchestrator"
)

const defaultChunkSize = 2000

// TextPreprocessing normalizes the source text and splits it into chunks of
// the run's configured size. Later stages consume the chunks instead of the
// raw text.
type TextPreprocessing struct{}

func NewTextPreprocessing() *TextPreprocessing {
	return &TextPreprocessing{}
}

func (h *TextPreprocessing) Execute(_ context.Context, input orchestrator.StageInput) (map[string]any, error) {
	text := normalize(input.State.SourceText())

	chunkSize := input.State.Config.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	chunks := splitChunks(text, chunkSize)

	chunkList := make([]any, len(chunks))
	for i, chunk := range chunks {
		chunkList[i] = chunk
	}

	return map[string]any{
		"chunks":      chunkList,
		"chunk_count": len(chunks),
		"char_count":  utf8.RuneCountInString(text),
	}, nil
}

// normalize collapses runs of blank lines and trims trailing whitespace per
// line, preserving paragraph boundaries.
func normalize(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var (
		out       []string
		lastBlank bool
	)

	for _, line := range lines {
		line = strings.TrimRight(line, " \t")

		blank := line == ""
		if blank && lastBlank {
			continue
		}

		out = append(out, line)
		lastBlank = blank
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}

// splitChunks cuts the text into rune-bounded chunks, preferring paragraph
// breaks over hard cuts.
func splitChunks(text string, size int) []string {
	if text == "" {
		return nil
	}

	paragraphs := strings.Split(text, "\n\n")

	var (
		chunks  []string
		current strings.Builder
		count   int
	)

	flush := func() {
		if count > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			count = 0
		}
	}

	for _, para := range paragraphs {
		paraLen := utf8.RuneCountInString(para)

		if count > 0 && count+paraLen > size {
			flush()
		}

		// A single oversized paragraph is cut at the rune boundary.
		for paraLen > size {
			runes := []rune(para)
			chunks = append(chunks, string(runes[:size]))
			para = string(runes[size:])
			paraLen = utf8.RuneCountInString(para)
		}

		if para == "" {
			continue
		}

		if count > 0 {
			current.WriteString("\n\n")
			count += 2
		}

		current.WriteString(para)
		count += paraLen
	}

	flush()

	return chunks
}
