package storage

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"moneta/internal/core"
)

//go:embed defaults.yaml
var defaultCategoriesYAML []byte

type seedFile struct {
	Categories []struct {
		ID    string `yaml:"id"`
		Name  string `yaml:"name"`
		Icon  string `yaml:"icon"`
		Color string `yaml:"color"`
	} `yaml:"categories"`
}

// LoadDefaultCategories parses the default category list from path, or from
// the embedded list when path is empty.
func LoadDefaultCategories(path string) ([]core.Category, error) {
	data := defaultCategoriesYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read default categories: %w", err)
		}
		data = b
	}
	return parseDefaultCategories(data)
}

func parseDefaultCategories(data []byte) ([]core.Category, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse default categories: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Categories))
	out := make([]core.Category, 0, len(f.Categories))
	for i, c := range f.Categories {
		cat, err := core.NewCategory(c.ID, c.Name, c.Icon, c.Color, true)
		if err != nil {
			return nil, fmt.Errorf("default category %d: %w", i, err)
		}
		if _, dup := seen[cat.ID]; dup {
			return nil, fmt.Errorf("default category %d: duplicate id %q", i, cat.ID)
		}
		seen[cat.ID] = struct{}{}
		out = append(out, cat)
	}
	return out, nil
}

// EnsureSeed creates the placeholder user when none exists and inserts any
// missing default category. Existing rows are never modified.
func (r *SQLiteRepository) EnsureSeed(ctx context.Context, defaults []core.Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var userCreated bool
	var inserted int64
	err := r.inTx(ctx, func(q *Queries) error {
		n, err := q.CountUsers(ctx)
		if err != nil {
			return classify(err)
		}
		if n == 0 {
			if err := q.CreateUser(ctx, r.userRow(core.PlaceholderUser())); err != nil {
				return classify(err)
			}
			userCreated = true
		}

		for _, c := range defaults {
			if !c.IsDefault {
				return fmt.Errorf("seed category %s: not marked as default", c.ID)
			}
			k, err := q.InsertCategoryIfMissing(ctx, r.categoryRow(c))
			if err != nil {
				return classify(err)
			}
			inserted += k
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("seed database: %w", err)
	}

	if userCreated || inserted > 0 {
		slog.InfoContext(ctx, "Database seeded",
			"placeholder_user", userCreated,
			"default_categories", inserted)
	}
	return nil
}
