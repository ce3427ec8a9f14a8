package agent

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
)

// KnowledgeSearcher finds FAQ articles for a free-text query.
// An empty language searches every language.
type KnowledgeSearcher interface {
	SearchArticles(ctx context.Context, query, language string, limit int) ([]domain.FAQArticle, error)
}

var helpfulPrefix = map[string]string{
	domain.LanguageEnglish: "These articles may help:",
	domain.LanguageArabic:  "قد تساعدك هذه المقالات:",
}

// LocalKnowledge retrieves FAQ articles and appends their titles to the draft.
type LocalKnowledge struct {
	kb   KnowledgeSearcher
	topK int
}

func NewLocalKnowledge(kb KnowledgeSearcher, topK int) *LocalKnowledge {
	if topK <= 0 {
		topK = 3
	}
	return &LocalKnowledge{kb: kb, topK: topK}
}

func (a *LocalKnowledge) Invoke(ctx context.Context, in KnowledgeInput) (KnowledgeOutput, error) {
	out := KnowledgeOutput{EnrichedDraft: in.Draft}
	if a.kb == nil || strings.TrimSpace(in.Message) == "" {
		return out, nil
	}

	limit := in.TopK
	if limit <= 0 {
		limit = a.topK
	}

	query := in.Message
	if in.Intent != "" && in.Intent != domain.IntentUnknown {
		query = strings.ReplaceAll(string(in.Intent), "_", " ") + " " + in.Message
	}

	articles, err := a.kb.SearchArticles(ctx, query, in.Language, limit)
	if err != nil {
		return KnowledgeOutput{}, &AgentError{Agent: "knowledge", Message: err.Error()}
	}
	// Nothing in the customer's language: fall back to any language.
	if len(articles) == 0 && in.Language != "" {
		articles, err = a.kb.SearchArticles(ctx, query, "", limit)
		if err != nil {
			return KnowledgeOutput{}, &AgentError{Agent: "knowledge", Message: err.Error()}
		}
	}

	out.Articles = articles
	out.EnrichedDraft = enrichDraft(in.Draft, in.Language, articles)
	return out, nil
}

func enrichDraft(draft, lang string, articles []domain.FAQArticle) string {
	if len(articles) == 0 {
		return draft
	}
	prefix, ok := helpfulPrefix[lang]
	if !ok {
		prefix = helpfulPrefix[domain.LanguageEnglish]
	}

	var b strings.Builder
	b.WriteString(draft)
	b.WriteString("\n\n")
	b.WriteString(prefix)
	for _, art := range articles {
		fmt.Fprintf(&b, "\n- %s", art.Title)
	}
	return b.String()
}

// MemoryKnowledge is an in-process FAQ store ranked by term overlap.
type MemoryKnowledge struct {
	mu       sync.RWMutex
	articles []domain.FAQArticle
}

func NewMemoryKnowledge(articles ...domain.FAQArticle) *MemoryKnowledge {
	return &MemoryKnowledge{articles: slices.Clone(articles)}
}

// Add inserts or replaces articles by ID.
func (m *MemoryKnowledge) Add(articles ...domain.FAQArticle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, art := range articles {
		i := slices.IndexFunc(m.articles, func(a domain.FAQArticle) bool { return a.ID == art.ID })
		if i >= 0 {
			m.articles[i] = art
			continue
		}
		m.articles = append(m.articles, art)
	}
}

func (m *MemoryKnowledge) SearchArticles(_ context.Context, query, language string, limit int) ([]domain.FAQArticle, error) {
	terms := tokenize(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []domain.FAQArticle
	for _, art := range m.articles {
		if language != "" && art.Language != "" && art.Language != language {
			continue
		}
		body := tokenize(strings.ToLower(art.Title + " " + art.Content + " " + art.Category))
		var overlap int
		for t := range terms {
			if body[t] {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		art.Score = float64(overlap) / float64(len(terms))
		hits = append(hits, art)
	}

	slices.SortStableFunc(hits, func(a, b domain.FAQArticle) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}
