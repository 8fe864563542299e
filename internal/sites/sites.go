// Package sites loads the curated link directory and fills in names and
// descriptions that were left for the resolver to discover.
package sites

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/linkmeta/internal/metadata"
)

// DefaultConcurrency bounds concurrent resolutions during Enrich.
const DefaultConcurrency = 4

const faviconService = "https://www.google.com/s2/favicons"

// Site is one directory entry. A nil Description means it should be
// resolved; an empty one means the site shows no description.
type Site struct {
	Name        string  `yaml:"name,omitempty" json:"name,omitempty"`
	URL         string  `yaml:"url" json:"url"`
	Description *string `yaml:"description,omitempty" json:"description,omitempty"`
	Icon        string  `yaml:"icon,omitempty" json:"icon,omitempty"`
}

// Category groups related sites.
type Category struct {
	Category    string `yaml:"category" json:"category"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Sites       []Site `yaml:"sites" json:"sites"`
}

// Card is a site ready for display.
type Card struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon"`
	Resolved    bool   `json:"resolved"`
}

// Section is a category of display cards.
type Section struct {
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	Cards       []Card `json:"cards"`
}

// CreateSite fills the icon with a favicon URL derived from the site host
// when none is given.
func CreateSite(s Site) Site {
	s.URL = strings.TrimSpace(s.URL)
	if strings.TrimSpace(s.Icon) != "" {
		return s
	}
	u, err := url.Parse(s.URL)
	if err != nil || u.Hostname() == "" {
		return s
	}
	q := url.Values{}
	q.Set("domain", u.Hostname())
	q.Set("sz", "64")
	s.Icon = faviconService + "?" + q.Encode()
	return s
}

// NeedsName reports whether the name must be resolved.
func NeedsName(s Site) bool {
	return strings.TrimSpace(s.Name) == ""
}

// NeedsDescription reports whether the description must be resolved.
func NeedsDescription(s Site) bool {
	return s.Description == nil
}

// Parse decodes a YAML list of categories and normalizes every site.
func Parse(data []byte) ([]Category, error) {
	var categories []Category
	if err := yaml.Unmarshal(data, &categories); err != nil {
		return nil, fmt.Errorf("decode sites: %w", err)
	}
	var errs []error
	for ci := range categories {
		for si, s := range categories[ci].Sites {
			if err := metadata.ValidateURL(s.URL); err != nil {
				errs = append(errs, fmt.Errorf("category %q site %d (%q): %w", categories[ci].Category, si, s.URL, err))
				continue
			}
			categories[ci].Sites[si] = CreateSite(s)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return categories, nil
}

// Load reads and parses a sites file.
func Load(path string) ([]Category, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sites file: %w", err)
	}
	return Parse(data)
}

// Enricher resolves missing site metadata.
type Enricher struct {
	resolver    metadata.Resolver
	concurrency int
	logger      *zap.Logger
}

// NewEnricher creates an Enricher. A non-positive concurrency uses
// DefaultConcurrency.
func NewEnricher(r metadata.Resolver, concurrency int, logger *zap.Logger) *Enricher {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{resolver: r, concurrency: concurrency, logger: logger}
}

// Enrich turns categories into display sections, resolving only the sites
// that lack a name or a description. Manual values always win; a site whose
// name cannot be learned is shown by its URL. Enrich fails only when ctx is
// canceled.
func (e *Enricher) Enrich(ctx context.Context, categories []Category) ([]Section, error) {
	sections := make([]Section, len(categories))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	var mu sync.Mutex
	resolved := 0
	for ci, c := range categories {
		sections[ci] = Section{Category: c.Category, Description: c.Description, Cards: make([]Card, len(c.Sites))}
		for si, s := range c.Sites {
			if !NeedsName(s) && !NeedsDescription(s) {
				sections[ci].Cards[si] = card(s, metadata.WebsiteData{})
				continue
			}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				data := e.resolver.Resolve(gctx, s.URL)
				mu.Lock()
				sections[ci].Cards[si] = card(s, data)
				if !data.IsEmpty() {
					resolved++
				}
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("enrich sites: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("enrich sites: %w", err)
	}
	e.logger.Info("sites enriched", zap.Int("categories", len(sections)), zap.Int("resolved", resolved))
	return sections, nil
}

func card(s Site, data metadata.WebsiteData) Card {
	c := Card{Name: strings.TrimSpace(s.Name), URL: s.URL, Icon: s.Icon}
	if c.Name == "" {
		c.Name = strings.TrimSpace(data.Title)
		c.Resolved = c.Name != ""
	}
	if c.Name == "" {
		c.Name = s.URL
	}
	if s.Description != nil {
		c.Description = *s.Description
	} else if desc := strings.TrimSpace(data.Description); desc != "" {
		c.Description = desc
		c.Resolved = true
	}
	return c
}
