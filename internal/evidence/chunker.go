package evidence

import (
	"strings"

	"github.com/luxcrm/relay/internal/domain"
)

const (
	emailChunkMaxChars      = 4200
	transcriptChunkMaxChars = 3200
)

// ChunkSpec is one chunk before persistence.
type ChunkSpec struct {
	ChunkType string
	Text      string
	Span      domain.ChunkSpan
}

func intp(v int) *int { return &v }

// ChunkEmailText groups non-empty paragraphs into chunks of at most maxChars,
// preserving order. Spans are paragraph index ranges.
func ChunkEmailText(text string, maxChars int) []ChunkSpec {
	if maxChars <= 0 {
		maxChars = emailChunkMaxChars
	}
	var paragraphs []string
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			kept = append(kept, line)
		}
	}
	for _, p := range strings.Split(strings.Join(kept, "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	if len(paragraphs) == 0 {
		return nil
	}

	var chunks []ChunkSpec
	current := ""
	startPara := 0
	for idx, para := range paragraphs {
		candidate := para
		if current != "" {
			candidate = current + "\n\n" + para
		}
		if len(candidate) <= maxChars {
			current = candidate
			continue
		}
		chunks = append(chunks, ChunkSpec{
			ChunkType: domain.ChunkTypeEmailBody,
			Text:      current,
			Span:      domain.ChunkSpan{ParagraphStart: intp(startPara), ParagraphEnd: intp(idx - 1)},
		})
		current = para
		startPara = idx
	}
	if current != "" {
		chunks = append(chunks, ChunkSpec{
			ChunkType: domain.ChunkTypeEmailBody,
			Text:      current,
			Span:      domain.ChunkSpan{ParagraphStart: intp(startPara), ParagraphEnd: intp(len(paragraphs) - 1)},
		})
	}
	return chunks
}

// ChunkTranscriptText groups non-empty lines into chunks of at most maxChars.
// Spans are line index ranges.
func ChunkTranscriptText(text string, maxChars int) []ChunkSpec {
	if maxChars <= 0 {
		maxChars = transcriptChunkMaxChars
	}
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil
	}

	var chunks []ChunkSpec
	var current []string
	currentLen := 0
	startLine := 0
	for idx, line := range lines {
		if len(current) > 0 && currentLen+len(line) > maxChars {
			chunks = append(chunks, ChunkSpec{
				ChunkType: domain.ChunkTypeTranscriptSegment,
				Text:      strings.Join(current, "\n"),
				Span:      domain.ChunkSpan{LineStart: intp(startLine), LineEnd: intp(idx - 1)},
			})
			current = []string{line}
			currentLen = len(line)
			startLine = idx
			continue
		}
		current = append(current, line)
		currentLen += len(line)
	}
	if len(current) > 0 {
		chunks = append(chunks, ChunkSpec{
			ChunkType: domain.ChunkTypeTranscriptSegment,
			Text:      strings.Join(current, "\n"),
			Span:      domain.ChunkSpan{LineStart: intp(startLine), LineEnd: intp(len(lines) - 1)},
		})
	}
	return chunks
}

// ChunkNewsText keeps news items whole: one chunk spanning the full text.
func ChunkNewsText(text string) []ChunkSpec {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return []ChunkSpec{{
		ChunkType: domain.ChunkTypeNewsParagraph,
		Text:      text,
		Span:      domain.ChunkSpan{Start: intp(0), End: intp(len(text))},
	}}
}

// ChunkInteractionText picks the chunker by interaction type.
func ChunkInteractionText(interactionType, text string) []ChunkSpec {
	switch interactionType {
	case domain.InteractionTypeMeeting:
		return ChunkTranscriptText(text, transcriptChunkMaxChars)
	case domain.InteractionTypeNews:
		return ChunkNewsText(text)
	default:
		return ChunkEmailText(text, emailChunkMaxChars)
	}
}
