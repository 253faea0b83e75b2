package news

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/luxcrm/relay/internal/data/graph"
	"github.com/luxcrm/relay/internal/data/repos"
	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/evidence"
	"github.com/luxcrm/relay/internal/pkg/logger"
	"github.com/luxcrm/relay/internal/platform/neo4jdb"
)

// Summarize builds the one-line article summary stored on the interaction.
func Summarize(title, bodyPlain string) string {
	preview := strings.TrimSpace(bodyPlain)
	if len(preview) > 300 {
		preview = preview[:300]
	}
	return title + ": " + strings.TrimSpace(preview)
}

// DedupeKey identifies an article: the URL when present, else the title.
func DedupeKey(url, title string) string {
	if key := strings.TrimSpace(url); key != "" {
		return strings.ToLower(key)
	}
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}

var keywordPattern = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9_-]{2,}`)

var keywordStopwords = map[string]struct{}{
	"about": {}, "after": {}, "again": {}, "against": {}, "because": {},
	"being": {}, "below": {}, "between": {}, "could": {}, "doing": {},
	"during": {}, "from": {}, "have": {}, "into": {}, "over": {}, "such": {},
	"that": {}, "their": {}, "there": {}, "these": {}, "they": {}, "this": {},
	"under": {}, "very": {}, "what": {}, "when": {}, "where": {}, "which": {},
	"while": {}, "with": {}, "would": {},
}

// ExtractKeywords pulls up to max distinct lowercase tokens from article
// text, in document order.
func ExtractKeywords(articleText string, max int) []string {
	if max <= 0 {
		max = 12
	}
	seen := map[string]struct{}{}
	var out []string
	for _, token := range keywordPattern.FindAllString(strings.ToLower(articleText), -1) {
		if _, ok := keywordStopwords[token]; ok {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
		if len(out) >= max {
			break
		}
	}
	return out
}

// Match is one contact ranked against an article.
type Match struct {
	ContactID       string   `json:"contact_id"`
	DisplayName     string   `json:"display_name"`
	MatchScore      float64  `json:"match_score"`
	MatchedKeywords []string `json:"matched_keywords,omitempty"`
	CompanySignal   float64  `json:"company_signal"`
	LexicalSignal   float64  `json:"lexical_signal"`
	VectorSignal    float64  `json:"vector_signal"`
	RecencySignal   float64  `json:"recency_signal"`
}

// Matcher ranks contacts against news articles by blending name/company
// token overlap, interaction subjects, semantic similarity and recency.
type Matcher struct {
	log          *logger.Logger
	contacts     repos.ContactRepo
	interactions repos.InteractionRepo
	embedder     *evidence.Embedder
	neo          *neo4jdb.Client
}

func NewMatcher(log *logger.Logger, contacts repos.ContactRepo, interactions repos.InteractionRepo, embedder *evidence.Embedder, neo *neo4jdb.Client) (*Matcher, error) {
	if log == nil {
		return nil, fmt.Errorf("news: logger is required")
	}
	if contacts == nil || interactions == nil {
		return nil, fmt.Errorf("news: contact and interaction repos are required")
	}
	return &Matcher{
		log:          log.With("service", "news_matcher"),
		contacts:     contacts,
		interactions: interactions,
		embedder:     embedder,
		neo:          neo,
	}, nil
}

func tokenSet(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, token := range keywordPattern.FindAllString(strings.ToLower(s), -1) {
		out[token] = struct{}{}
	}
	return out
}

// overlapSignal is |keywords ∩ tokens| / |keywords|, capped at 1.
func overlapSignal(keywords []string, tokens map[string]struct{}) (float64, []string) {
	if len(keywords) == 0 {
		return 0, nil
	}
	var matched []string
	for _, kw := range keywords {
		if _, ok := tokens[kw]; ok {
			matched = append(matched, kw)
		}
	}
	return math.Min(1, float64(len(matched))/float64(len(keywords))), matched
}

func recencySignal(latest *time.Time, now time.Time) float64 {
	if latest == nil {
		return 0
	}
	age := math.Max(0, now.Sub(*latest).Hours()/24)
	return math.Max(0, 1-math.Min(age, 180)/180)
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func (m *Matcher) profileText(ctx context.Context, contact *domain.Contact, rows []*domain.Interaction) string {
	lines := []string{
		"Contact: " + contact.DisplayName,
		"Email: " + contact.PrimaryEmail,
	}
	if contact.Company != "" {
		lines = append(lines, "Company: "+contact.Company)
	}
	if m.neo.Enabled() {
		if claims, err := graph.GetContactClaims(ctx, m.neo, contact.ContactID, ""); err == nil {
			for i, claim := range claims {
				if i == 12 {
					break
				}
				lines = append(lines, claim.ClaimType+": "+claim.StringValue("object", "label", "company"))
			}
		}
	}
	for i, row := range rows {
		if i == 3 {
			break
		}
		lines = append(lines, row.Timestamp.UTC().Format(time.RFC3339)+" "+row.Type+" "+row.Subject)
	}
	return strings.Join(lines, "\n")
}

// MatchContacts ranks all known contacts against an article and returns the
// strongest matches, best first.
func (m *Matcher) MatchContacts(ctx context.Context, articleText string, maxResults int) ([]Match, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	contacts, err := m.contacts.ListAll(ctx, nil)
	if err != nil {
		return nil, err
	}
	if len(contacts) == 0 {
		return nil, nil
	}
	keywords := ExtractKeywords(articleText, 12)

	recent, err := m.interactions.ListRecent(ctx, nil, 500)
	if err != nil {
		return nil, err
	}
	byContact := map[string][]*domain.Interaction{}
	for _, row := range recent {
		for _, id := range repos.ContactIDsOf(row) {
			byContact[id] = append(byContact[id], row)
		}
	}

	var articleVec []float32
	if m.embedder != nil {
		if vecs := m.embedder.Embed(ctx, []string{articleText}); len(vecs) == 1 {
			articleVec = vecs[0]
		}
	}

	now := time.Now().UTC()
	ranked := make([]Match, 0, len(contacts))
	for _, contact := range contacts {
		rows := byContact[contact.ContactID]

		companySignal, companyMatched := overlapSignal(keywords, tokenSet(contact.Company+" "+contact.DisplayName))

		var lexical float64
		var latestMatch *time.Time
		matched := append([]string(nil), companyMatched...)
		matchedSet := map[string]struct{}{}
		for _, kw := range matched {
			matchedSet[kw] = struct{}{}
		}
		for i, row := range rows {
			if i == 20 {
				break
			}
			subject := strings.ToLower(row.Subject)
			hit := false
			for _, kw := range keywords {
				if strings.Contains(subject, kw) {
					hit = true
					if _, ok := matchedSet[kw]; !ok {
						matchedSet[kw] = struct{}{}
						matched = append(matched, kw)
					}
				}
			}
			if hit {
				ts := row.Timestamp
				if latestMatch == nil || ts.After(*latestMatch) {
					latestMatch = &ts
				}
			}
		}
		if len(keywords) > 0 {
			lexical = math.Min(1, float64(len(matched)-len(companyMatched))/float64(len(keywords)))
		}

		var vector float64
		if articleVec != nil {
			profile := m.profileText(ctx, contact, rows)
			if vecs := m.embedder.Embed(ctx, []string{profile}); len(vecs) == 1 {
				vector = math.Max(0, cosine(articleVec, vecs[0]))
			}
		}
		recency := recencySignal(latestMatch, now)

		score := 0.45*vector + 0.25*companySignal + 0.15*lexical + 0.15*recency
		if score == 0 {
			continue
		}
		ranked = append(ranked, Match{
			ContactID:       contact.ContactID,
			DisplayName:     contact.DisplayName,
			MatchScore:      math.Round(math.Min(score, 1)*10000) / 10000,
			MatchedKeywords: matched,
			CompanySignal:   companySignal,
			LexicalSignal:   lexical,
			VectorSignal:    vector,
			RecencySignal:   recency,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].MatchScore > ranked[j].MatchScore })
	if len(ranked) > maxResults {
		ranked = ranked[:maxResults]
	}
	return ranked, nil
}
