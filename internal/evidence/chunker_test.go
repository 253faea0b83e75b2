package evidence

import (
	"strings"
	"testing"

	"github.com/luxcrm/relay/internal/domain"
)

func TestChunkEmailTextGroupsParagraphsUnderLimit(t *testing.T) {
	paraA := strings.Repeat("a", 60)
	paraB := strings.Repeat("b", 60)
	paraC := strings.Repeat("c", 60)
	text := paraA + "\n\n" + paraB + "\n\n" + paraC

	chunks := ChunkEmailText(text, 130)
	if len(chunks) != 2 {
		t.Fatalf("len = %d, want 2", len(chunks))
	}
	if chunks[0].Text != paraA+"\n\n"+paraB {
		t.Fatalf("first chunk = %q", chunks[0].Text)
	}
	if *chunks[0].Span.ParagraphStart != 0 || *chunks[0].Span.ParagraphEnd != 1 {
		t.Fatalf("first span = %+v", chunks[0].Span)
	}
	if *chunks[1].Span.ParagraphStart != 2 || *chunks[1].Span.ParagraphEnd != 2 {
		t.Fatalf("second span = %+v", chunks[1].Span)
	}
	if chunks[0].ChunkType != domain.ChunkTypeEmailBody {
		t.Fatalf("chunk type = %q", chunks[0].ChunkType)
	}
}

func TestChunkEmailTextEmptyInput(t *testing.T) {
	if got := ChunkEmailText("  \n\n \n", 100); got != nil {
		t.Fatalf("expected nil for blank input, got %v", got)
	}
}

func TestChunkTranscriptTextSplitsOnLineBudget(t *testing.T) {
	lines := []string{
		strings.Repeat("x", 50),
		strings.Repeat("y", 50),
		strings.Repeat("z", 50),
	}
	chunks := ChunkTranscriptText(strings.Join(lines, "\n"), 110)
	if len(chunks) != 2 {
		t.Fatalf("len = %d, want 2", len(chunks))
	}
	if *chunks[0].Span.LineStart != 0 || *chunks[0].Span.LineEnd != 1 {
		t.Fatalf("first span = %+v", chunks[0].Span)
	}
	if *chunks[1].Span.LineStart != 2 || *chunks[1].Span.LineEnd != 2 {
		t.Fatalf("second span = %+v", chunks[1].Span)
	}
	if chunks[1].ChunkType != domain.ChunkTypeTranscriptSegment {
		t.Fatalf("chunk type = %q", chunks[1].ChunkType)
	}
}

func TestChunkNewsTextSingleChunkWithCharSpan(t *testing.T) {
	chunks := ChunkNewsText("  Northwind raises a Series B.  ")
	if len(chunks) != 1 {
		t.Fatalf("len = %d", len(chunks))
	}
	c := chunks[0]
	if c.Text != "Northwind raises a Series B." {
		t.Fatalf("text = %q", c.Text)
	}
	if *c.Span.Start != 0 || *c.Span.End != len(c.Text) {
		t.Fatalf("span = %+v", c.Span)
	}
}

func TestChunkSpanLengthMatchesTextForNews(t *testing.T) {
	text := "short news item"
	c := ChunkNewsText(text)[0]
	if *c.Span.End-*c.Span.Start != len(c.Text) {
		t.Fatalf("char span length %d != text length %d", *c.Span.End-*c.Span.Start, len(c.Text))
	}
}

func TestChunkInteractionTextDispatch(t *testing.T) {
	if got := ChunkInteractionText(domain.InteractionTypeMeeting, "a\nb"); got[0].ChunkType != domain.ChunkTypeTranscriptSegment {
		t.Fatalf("meeting -> %q", got[0].ChunkType)
	}
	if got := ChunkInteractionText(domain.InteractionTypeNews, "n"); got[0].ChunkType != domain.ChunkTypeNewsParagraph {
		t.Fatalf("news -> %q", got[0].ChunkType)
	}
	if got := ChunkInteractionText(domain.InteractionTypeEmail, "e"); got[0].ChunkType != domain.ChunkTypeEmailBody {
		t.Fatalf("email -> %q", got[0].ChunkType)
	}
}

func TestHashVectorDeterministicAndDimensioned(t *testing.T) {
	a := HashVector("same text", 64)
	b := HashVector("same text", 64)
	c := HashVector("other text", 64)
	if len(a) != 64 {
		t.Fatalf("dim = %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vector not deterministic at %d", i)
		}
	}
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("different texts must produce different vectors")
	}
	for _, v := range a {
		if v < 0 || v > 1 {
			t.Fatalf("component out of range: %v", v)
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	if got := cosineSimilarity(a, a); got < 0.999 {
		t.Fatalf("self similarity = %v", got)
	}
	if got := cosineSimilarity(a, []float32{0, 1, 0}); got != 0 {
		t.Fatalf("orthogonal similarity = %v", got)
	}
	if got := cosineSimilarity(a, []float32{0, 0}); got != 0 {
		t.Fatalf("mismatched dims must score 0, got %v", got)
	}
}
