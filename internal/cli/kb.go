package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
)

// kbArticle is the on-disk article format. JSON files parse too.
type kbArticle struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	Content  string `yaml:"content"`
	Category string `yaml:"category"`
	Language string `yaml:"language"`
}

func newKBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Manage the FAQ knowledge base",
	}
	cmd.AddCommand(newKBImportCmd())
	cmd.AddCommand(newKBSearchCmd())
	return cmd
}

// readArticles loads a YAML or JSON list of articles.
func readArticles(path string) ([]domain.FAQArticle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var in []kbArticle
	if err := yaml.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	out := make([]domain.FAQArticle, 0, len(in))
	for i, a := range in {
		if strings.TrimSpace(a.ID) == "" || strings.TrimSpace(a.Title) == "" {
			return nil, fmt.Errorf("article %d: id and title are required", i)
		}
		if a.Language == "" {
			a.Language = "en"
		}
		out = append(out, domain.FAQArticle{
			ID:       a.ID,
			Title:    a.Title,
			Content:  a.Content,
			Category: a.Category,
			Language: a.Language,
		})
	}
	return out, nil
}

func newKBImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import or replace articles from a YAML or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			articles, err := readArticles(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				kb, err := a.knowledgeBase()
				if err != nil {
					return err
				}
				n, err := kb.Import(ctx, articles)
				if err != nil {
					return err
				}
				total, err := kb.Count(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d article(s), %d in knowledge base\n", n, total)
				return nil
			})
		},
	}
}

func newKBSearchCmd() *cobra.Command {
	var (
		language string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge base the way the knowledge agent does",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				kb, err := a.knowledgeBase()
				if err != nil {
					return err
				}
				found, err := kb.SearchArticles(ctx, strings.Join(args, " "), language, limit)
				if err != nil {
					return err
				}
				if len(found) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No matching articles")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SCORE\tID\tLANG\tTITLE")
				for _, f := range found {
					fmt.Fprintf(tw, "%.3f\t%s\t%s\t%s\n", f.Score, f.ID, f.Language, f.Title)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&language, "language", "en", "article language")
	cmd.Flags().IntVar(&limit, "limit", 3, "maximum results")
	return cmd
}
