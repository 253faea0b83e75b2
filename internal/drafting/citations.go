package drafting

import (
	"sort"
	"strings"

	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/evidence"
)

const citationSnippetChars = 220

func citationSnippet(text string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	if len(normalized) <= citationSnippetChars {
		return normalized
	}
	return strings.TrimRight(normalized[:citationSnippetChars-3], " ") + "..."
}

// BuildCitations maps draft paragraphs back to the chunks they lean on by
// token overlap. Paragraphs with no overlap receive no citation. When the
// draft body is empty the first three chunks are cited as-is.
func BuildCitations(draftText string, chunks []evidence.SearchResult) []domain.Citation {
	var citations []domain.Citation
	paragraphs := splitParagraphs(draftText)
	if len(paragraphs) == 0 {
		for i, chunk := range chunks {
			if i >= 3 {
				break
			}
			citations = append(citations, citationFor(i+1, chunk))
		}
		return citations
	}

	for idx, paragraph := range paragraphs {
		paragraphTerms := termSet(paragraph, 3)
		if len(paragraphTerms) == 0 {
			continue
		}
		type scored struct {
			chunk   evidence.SearchResult
			overlap int
			rank    int
		}
		var matches []scored
		for rank, chunk := range chunks {
			overlap := 0
			chunkTerms := termSet(chunk.Text, 3)
			for term := range paragraphTerms {
				if _, ok := chunkTerms[term]; ok {
					overlap++
				}
			}
			if overlap > 0 {
				matches = append(matches, scored{chunk: chunk, overlap: overlap, rank: rank})
			}
		}
		sort.SliceStable(matches, func(i, j int) bool {
			if matches[i].overlap != matches[j].overlap {
				return matches[i].overlap > matches[j].overlap
			}
			return matches[i].rank < matches[j].rank
		})
		for i, match := range matches {
			if i >= 2 {
				break
			}
			citations = append(citations, citationFor(idx+1, match.chunk))
		}
	}
	return citations
}

func citationFor(paragraph int, chunk evidence.SearchResult) domain.Citation {
	return domain.Citation{
		Paragraph:     paragraph,
		InteractionID: chunk.InteractionID.String(),
		ChunkID:       chunk.ChunkID.String(),
		Span:          chunk.Span,
		Snippet:       citationSnippet(chunk.Text),
	}
}

func splitParagraphs(text string) []string {
	var out []string
	for _, block := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(block) != "" {
			out = append(out, block)
		}
	}
	return out
}
