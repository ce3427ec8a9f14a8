package store

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
)

// KnowledgeBase stores FAQ articles with full-text search via SQLite FTS5.
type KnowledgeBase struct {
	db *DB
}

// NewKnowledgeBase creates a knowledge base using the given database.
func NewKnowledgeBase(db *DB) *KnowledgeBase {
	return &KnowledgeBase{db: db}
}

// Import inserts or replaces articles by ID in one transaction. Articles
// without an ID get a generated one.
func (k *KnowledgeBase) Import(ctx context.Context, articles []domain.FAQArticle) (int, error) {
	tx, err := k.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := formatTime(k.db.now())
	for i, art := range articles {
		if strings.TrimSpace(art.Title) == "" && strings.TrimSpace(art.Content) == "" {
			return 0, fmt.Errorf("article %d: title or content required", i)
		}
		if art.ID == "" {
			art.ID = uuid.New().String()
		}
		if art.Category == "" {
			art.Category = "general"
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO kb_articles (id, title, content, category, language, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   title = excluded.title,
			   content = excluded.content,
			   category = excluded.category,
			   language = excluded.language,
			   updated_at = excluded.updated_at`,
			art.ID, art.Title, art.Content, art.Category, art.Language, now,
		)
		if err != nil {
			return 0, fmt.Errorf("import article %s: %w", art.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	k.db.log.Info().Int("articles", len(articles)).Msg("knowledge base imported")
	return len(articles), nil
}

// SearchArticles ranks articles against the free-text query with bm25.
// An empty language matches every article; articles with no language match
// every query. Limit of 0 defaults to 5.
func (k *KnowledgeBase) SearchArticles(ctx context.Context, query, language string, limit int) ([]domain.FAQArticle, error) {
	match := matchExpr(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	rows, err := k.db.sql.QueryContext(ctx,
		`SELECT kb.id, kb.title, kb.content, kb.category, kb.language, bm25(kb_fts)
		 FROM kb_fts
		 JOIN kb_articles kb ON kb.rowid = kb_fts.rowid
		 WHERE kb_fts MATCH ?
		   AND (? = '' OR kb.language = '' OR kb.language = ?)
		 ORDER BY bm25(kb_fts)
		 LIMIT ?`,
		match, language, language, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search knowledge base: %w", err)
	}
	defer rows.Close()

	var out []domain.FAQArticle
	for rows.Next() {
		var (
			art  domain.FAQArticle
			rank float64
		)
		if err := rows.Scan(&art.ID, &art.Title, &art.Content, &art.Category, &art.Language, &rank); err != nil {
			return nil, err
		}
		// bm25 is negative, lower is better; map it into (0, 1).
		art.Score = -rank / (1 - rank)
		out = append(out, art)
	}
	return out, rows.Err()
}

// Count returns the number of stored articles.
func (k *KnowledgeBase) Count(ctx context.Context) (int, error) {
	var n int
	err := k.db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM kb_articles`).Scan(&n)
	return n, err
}

// Delete removes an article by ID.
func (k *KnowledgeBase) Delete(ctx context.Context, id string) error {
	_, err := k.db.sql.ExecContext(ctx, `DELETE FROM kb_articles WHERE id = ?`, id)
	return err
}

// matchExpr turns free text into an FTS5 OR-query of quoted terms so
// customer punctuation never reaches the FTS5 parser.
func matchExpr(query string) string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.Is(unicode.Mn, r)
	})
	seen := make(map[string]bool, len(words))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if len([]rune(w)) < 2 || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, `"`+w+`"`)
	}
	return strings.Join(terms, " OR ")
}
