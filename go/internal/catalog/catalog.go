// Package catalog provides the static question and card data that sessions
// consume. A Catalog is immutable once loaded; every accessor hands out copies.
package catalog

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/rs/zerolog/log"
)

const (
	CategoriesFile = "categories.json"
	PacksFile      = "cah-packs.json"
)

//go:embed defaults/*.json
var defaults embed.FS

// Category is one voting-game category.
type Category struct {
	IsNSFW  bool     `json:"isNsfw"`
	Prompts []string `json:"prompts"`
}

// UnmarshalJSON also accepts the legacy {"flags":{"is_nsfw"},"questions":[]} layout.
func (c *Category) UnmarshalJSON(data []byte) error {
	var raw struct {
		IsNSFW    *bool    `json:"isNsfw"`
		Prompts   []string `json:"prompts"`
		Questions []string `json:"questions"`
		Flags     struct {
			IsNSFW bool `json:"is_nsfw"`
		} `json:"flags"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.IsNSFW = raw.Flags.IsNSFW
	if raw.IsNSFW != nil {
		c.IsNSFW = *raw.IsNSFW
	}
	c.Prompts = raw.Prompts
	if c.Prompts == nil {
		c.Prompts = raw.Questions
	}
	return nil
}

// Categories maps category name to its prompts.
type Categories map[string]Category

// Clone returns a deep copy.
func (c Categories) Clone() Categories {
	out := make(Categories, len(c))
	for name, cat := range c {
		out[name] = Category{IsNSFW: cat.IsNSFW, Prompts: slices.Clone(cat.Prompts)}
	}
	return out
}

type BlackCard struct {
	Text      string `json:"text"`
	PickCount int    `json:"pickCount"`
}

type WhiteCard struct {
	Text string `json:"text"`
}

// Pack is one card-judging pack.
type Pack struct {
	BlackCards []BlackCard `json:"blackCards"`
	WhiteCards []WhiteCard `json:"whiteCards"`
}

func (p Pack) Clone() Pack {
	return Pack{
		BlackCards: slices.Clone(p.BlackCards),
		WhiteCards: slices.Clone(p.WhiteCards),
	}
}

// Packs maps pack name to its cards.
type Packs map[string]Pack

type Catalog struct {
	categories Categories
	packs      Packs
}

// New builds a catalog from copies of the given data.
func New(categories Categories, packs Packs) *Catalog {
	c := &Catalog{categories: categories.Clone(), packs: make(Packs, len(packs))}
	for name, p := range packs {
		c.packs[name] = p.Clone()
	}
	return c
}

// Load reads categories and packs from dir. A missing file falls back to the
// embedded defaults; a malformed file is an error.
func Load(dir string) (*Catalog, error) {
	var categories Categories
	if err := readJSON(dir, CategoriesFile, &categories); err != nil {
		return nil, err
	}
	var packs Packs
	if err := readJSON(dir, PacksFile, &packs); err != nil {
		return nil, err
	}

	c := &Catalog{categories: categories, packs: packs}
	log.Info().
		Str("dir", dir).
		Int("categories", len(categories)).
		Int("packs", len(packs)).
		Msg("catalog loaded")
	return c, nil
}

func readJSON(dir, name string, v any) error {
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn().Str("path", path).Msg("catalog file not found, using built-in defaults")
		data, err = defaults.ReadFile("defaults/" + name)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

// Categories returns a deep copy safe for a session to consume.
func (c *Catalog) Categories() Categories {
	return c.categories.Clone()
}

// Pack returns a copy of the named pack.
func (c *Catalog) Pack(name string) (Pack, bool) {
	p, ok := c.packs[name]
	if !ok {
		return Pack{}, false
	}
	return p.Clone(), true
}

type CategorySummary struct {
	Name    string `json:"name"`
	IsNSFW  bool   `json:"isNsfw"`
	Prompts int    `json:"prompts"`
}

type PackSummary struct {
	Name       string `json:"name"`
	BlackCards int    `json:"blackCards"`
	WhiteCards int    `json:"whiteCards"`
}

func (c *Catalog) CategorySummaries() []CategorySummary {
	out := make([]CategorySummary, 0, len(c.categories))
	for name, cat := range c.categories {
		out = append(out, CategorySummary{Name: name, IsNSFW: cat.IsNSFW, Prompts: len(cat.Prompts)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *Catalog) PackSummaries() []PackSummary {
	out := make([]PackSummary, 0, len(c.packs))
	for name, p := range c.packs {
		out = append(out, PackSummary{Name: name, BlackCards: len(p.BlackCards), WhiteCards: len(p.WhiteCards)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
