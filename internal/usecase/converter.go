package usecase

import (
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"

	"KnowledgeSync/internal/domain"
	"KnowledgeSync/internal/identity"
)

const (
	// LanguageAuto asks the converter to detect each page's language.
	LanguageAuto      = "auto"
	fallbackLanguage  = "en"
	externalTimestamp = "2006-01-02T15:04:05.000000Z"
	detectionSample   = 2000
)

// ConverterConfig describes how pages become articles.
type ConverterConfig struct {
	Language          string
	KnowledgeSourceID string
	// URLTitles derives names from URLs instead of page titles.
	URLTitles bool
	Now       func() time.Time
}

// Converter turns crawled pages into knowledge-base articles.
type Converter struct {
	cfg ConverterConfig
}

// NewConverter builds a converter; Now defaults to time.Now.
func NewConverter(cfg ConverterConfig) *Converter {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Language == "" {
		cfg.Language = fallbackLanguage
	}
	return &Converter{cfg: cfg}
}

// Convert maps every page, in order, to an article record.
func (c *Converter) Convert(pages []domain.PageRecord) []domain.ArticleRecord {
	updated := c.cfg.Now().UTC().Format(externalTimestamp)

	articles := make([]domain.ArticleRecord, 0, len(pages))
	for i, page := range pages {
		articles = append(articles, domain.ArticleRecord{
			ID:                identity.GenerateID(page.SourceURL),
			Name:              c.name(i, page),
			Content:           page.MarkdownContent,
			URL:               page.SourceURL,
			Language:          c.language(page),
			KnowledgeSourceID: c.cfg.KnowledgeSourceID,
			ExternalUpdated:   updated,
		})
	}
	return articles
}

func (c *Converter) name(index int, page domain.PageRecord) string {
	fallback := identity.FallbackTitle(index)
	if c.cfg.URLTitles {
		return identity.GenerateTitle(page.SourceURL, fallback)
	}
	if title := strings.TrimSpace(page.Title); title != "" {
		return title
	}
	return fallback
}

func (c *Converter) language(page domain.PageRecord) string {
	if !strings.EqualFold(c.cfg.Language, LanguageAuto) {
		return c.cfg.Language
	}

	sample := page.Title + " " + page.MarkdownContent
	if runes := []rune(sample); len(runes) > detectionSample {
		sample = string(runes[:detectionSample])
	}
	if strings.TrimSpace(sample) == "" {
		return fallbackLanguage
	}

	info := whatlanggo.Detect(sample)
	if code := info.Lang.Iso6391(); code != "" && info.IsReliable() {
		return code
	}
	return fallbackLanguage
}

// FilterArticles keeps articles whose name or URL contains term, case-insensitively.
// An empty term keeps everything.
func FilterArticles(articles []domain.ArticleRecord, term string) []domain.ArticleRecord {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return articles
	}

	out := make([]domain.ArticleRecord, 0, len(articles))
	for _, a := range articles {
		if strings.Contains(strings.ToLower(a.Name), term) || strings.Contains(strings.ToLower(a.URL), term) {
			out = append(out, a)
		}
	}
	return out
}
