// Package slides synthesizes slide decks from extracted documents.
package slides

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/spherical/slide-deck/internal/domain"
	"github.com/spherical/slide-deck/internal/images"
	"github.com/spherical/slide-deck/internal/markup"
)

// Fixed slide identifiers.
const (
	CoverID   = "title-slide"
	SummaryID = "summary-slide"
)

// Config controls fixed slide text and image placement.
type Config struct {
	CoverTitle    string
	CoverSubtitle string
	SummaryTitle  string
	Placeholder   domain.Rect // fallback image placement
}

// DefaultConfig returns the stock cover text and a 400x300 placeholder at 100,100.
func DefaultConfig() Config {
	return Config{
		CoverTitle:    "Document Presentation",
		CoverSubtitle: "Generated from the uploaded document",
		SummaryTitle:  "Summary",
		Placeholder:   images.DefaultPlaceholder,
	}
}

// Synthesizer turns documents into decks. It holds no mutable state and is
// safe for concurrent use.
type Synthesizer struct {
	cfg Config
}

// NewSynthesizer creates a Synthesizer. Zero fields fall back to DefaultConfig.
func NewSynthesizer(cfg Config) *Synthesizer {
	def := DefaultConfig()
	if cfg.CoverTitle == "" {
		cfg.CoverTitle = def.CoverTitle
	}
	if cfg.SummaryTitle == "" {
		cfg.SummaryTitle = def.SummaryTitle
	}
	if cfg.Placeholder.Width <= 0 || cfg.Placeholder.Height <= 0 {
		cfg.Placeholder = def.Placeholder
	}
	return &Synthesizer{cfg: cfg}
}

// Synthesize builds the deck for doc. manual may be nil.
func (s *Synthesizer) Synthesize(doc domain.Document, manual domain.ManualImageSource) []domain.SlideRecord {
	switch {
	case doc.Kind == domain.DocumentLegacy:
		return s.FromSections(doc.Sections)
	case doc.Kind == domain.DocumentStructured, len(doc.Pages) > 0:
		return s.FromPages(doc.Pages, manual)
	case len(doc.Sections) > 0:
		return s.FromSections(doc.Sections)
	default:
		return []domain.SlideRecord{s.Cover()}
	}
}

// Cover returns the fixed first slide.
func (s *Synthesizer) Cover() domain.SlideRecord {
	body := "<h1>" + html.EscapeString(s.cfg.CoverTitle) + "</h1>"
	if s.cfg.CoverSubtitle != "" {
		body += "<p>" + html.EscapeString(s.cfg.CoverSubtitle) + "</p>"
	}
	return domain.SlideRecord{
		ID:    CoverID,
		Role:  domain.RoleCover,
		Title: s.cfg.CoverTitle,
		Body:  body,
	}
}

// FromPages emits the cover and one content slide per page, each carrying
// the page's merged image list. A page is skipped only when it has no title,
// text, table or image at all.
func (s *Synthesizer) FromPages(pages []domain.PageContent, manual domain.ManualImageSource) []domain.SlideRecord {
	deck := make([]domain.SlideRecord, 0, len(pages)+1)
	deck = append(deck, s.Cover())

	for i, page := range pages {
		number := page.Number
		if number <= 0 {
			number = i + 1
		}

		title, text := splitTitle(page.Title, page.Text)
		merged := images.Merge(number, page.Images, manual)

		if title == "" && strings.TrimSpace(text) == "" && len(page.Tables) == 0 && len(merged) == 0 {
			continue
		}

		deck = append(deck, domain.SlideRecord{
			ID:         "slide-" + strconv.Itoa(number),
			Role:       domain.RoleContent,
			Title:      title,
			PageNumber: number,
			Body:       s.contentBody(title, text, page.Tables),
			Images:     s.place(merged),
		})
	}
	return deck
}

// FromSections emits the cover, then for each section a content slide
// followed by one standalone slide per image, then a summary slide.
func (s *Synthesizer) FromSections(sections []domain.Section) []domain.SlideRecord {
	deck := []domain.SlideRecord{s.Cover()}
	var titles []string

	for i, sec := range sections {
		if sec.Title == "" && strings.TrimSpace(sec.Content) == "" {
			continue
		}
		id := "slide-" + strconv.Itoa(i+1)
		if sec.Title != "" {
			titles = append(titles, sec.Title)
		}

		deck = append(deck, domain.SlideRecord{
			ID:    id,
			Role:  domain.RoleContent,
			Title: sec.Title,
			Body:  s.contentBody(sec.Title, sec.Content, nil),
		})

		for j, img := range sec.Images {
			region := images.FromLegacy(img)
			deck = append(deck, domain.SlideRecord{
				ID:     fmt.Sprintf("%s-image-%d", id, j+1),
				Role:   domain.RoleImage,
				Title:  imageTitle(sec.Title, j+1),
				Body:   s.imageBody(region),
				Images: s.place([]domain.ImageRegion{region}),
			})
		}
	}

	return append(deck, s.summary(titles))
}

// splitTitle takes a leading "# " line of text as the title when none is set.
func splitTitle(title, text string) (string, string) {
	if title != "" {
		return title, text
	}
	trimmed := strings.TrimLeft(text, " \t\r\n")
	if !strings.HasPrefix(trimmed, "# ") {
		return "", text
	}
	line, rest, _ := strings.Cut(trimmed, "\n")
	return strings.TrimSpace(strings.TrimPrefix(line, "# ")), rest
}

func (s *Synthesizer) contentBody(title, text string, tables []domain.Table) string {
	var b strings.Builder
	if title != "" {
		b.WriteString("<h2>" + markup.Inline(title) + "</h2>")
	}
	b.WriteString(markup.ToHTML(text))
	for _, t := range tables {
		b.WriteString(markup.RenderTable(t))
	}
	return b.String()
}

func (s *Synthesizer) imageBody(region domain.ImageRegion) string {
	r := images.Resolve(region, s.cfg.Placeholder)
	return fmt.Sprintf(
		`<div class="image-placeholder"><p>Image: %s</p><p>Position: (%s, %s) - (%s, %s)</p></div>`,
		html.EscapeString(region.ID),
		coord(r.Left), coord(r.Top), coord(r.Left+r.Width), coord(r.Top+r.Height),
	)
}

func (s *Synthesizer) summary(titles []string) domain.SlideRecord {
	var b strings.Builder
	b.WriteString("<h2>" + html.EscapeString(s.cfg.SummaryTitle) + "</h2>")
	if len(titles) > 0 {
		b.WriteString("<ul>")
		for _, t := range titles {
			b.WriteString("<li>" + markup.Inline(t) + "</li>")
		}
		b.WriteString("</ul>")
	}
	return domain.SlideRecord{
		ID:    SummaryID,
		Role:  domain.RoleSummary,
		Title: s.cfg.SummaryTitle,
		Body:  b.String(),
	}
}

// place copies regions with their resolved rect set as the explicit position.
func (s *Synthesizer) place(regions []domain.ImageRegion) []domain.ImageRegion {
	if len(regions) == 0 {
		return nil
	}
	out := make([]domain.ImageRegion, len(regions))
	for i, r := range regions {
		r.Position = images.PositionOf(images.Resolve(r, s.cfg.Placeholder))
		out[i] = r
	}
	return out
}

func imageTitle(sectionTitle string, n int) string {
	if sectionTitle == "" {
		return "Image " + strconv.Itoa(n)
	}
	return sectionTitle + " - Image " + strconv.Itoa(n)
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
