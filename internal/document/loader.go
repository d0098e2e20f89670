// Package document loads extracted documents and detects which of the
// supported input shapes they use.
package document

import (
	"bytes"
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/spherical/slide-deck/internal/domain"
	"github.com/spherical/slide-deck/internal/markup"
	"github.com/spherical/slide-deck/internal/observability"
)

// Loader decodes documents after validating their shape.
type Loader struct {
	schemas map[Shape]*jsonschema.Schema
	logger  *observability.Logger
}

// NewLoader compiles the shape schemas.
func NewLoader(logger *observability.Logger) (*Loader, error) {
	schemas, err := compileSchemas()
	if err != nil {
		return nil, domain.ConfigError("failed to compile document schemas", err)
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Loader{schemas: schemas, logger: logger.WithComponent("document_loader")}, nil
}

// Detect returns the first shape data validates against.
func (l *Loader) Detect(data []byte) (Shape, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return "", domain.ValidationError("document is not valid JSON", err)
	}

	var firstErr error
	for _, shape := range detectionOrder {
		err := l.schemas[shape].Validate(v)
		if err == nil {
			return shape, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return "", domain.ValidationError("unrecognised document shape", firstErr)
}

// Decode detects the shape of data and converts it to a Document.
func (l *Loader) Decode(data []byte) (*domain.Document, error) {
	shape, err := l.Detect(data)
	if err != nil {
		return nil, err
	}

	var doc *domain.Document
	switch shape {
	case ShapeStructured:
		doc, err = decodeStructured(data)
	case ShapeExtraction:
		doc, err = decodeExtraction(data)
	default:
		doc, err = decodeLegacy(data)
	}
	if err != nil {
		return nil, domain.ValidationError("failed to decode "+string(shape)+" document", err)
	}

	l.logger.Debug().Str("shape", string(shape)).Int("pages", len(doc.Pages)).Int("sections", len(doc.Sections)).Msg("document decoded")
	return doc, nil
}

// LoadFile reads and decodes a document file.
func (l *Loader) LoadFile(path string) (*domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.IOError("failed to read document", err)
	}
	return l.Decode(data)
}

type wireStructured struct {
	Source      string     `json:"source"`
	ProcessedAt string     `json:"processed_at"`
	Pages       []wirePage `json:"pages"`
}

type wirePage struct {
	Number int               `json:"number"`
	Title  string            `json:"title"`
	Text   string            `json:"text"`
	Tables []json.RawMessage `json:"tables"`
	Images []wireImage       `json:"images"`
}

type wireExtraction struct {
	File        string               `json:"arquivo"`
	ProcessedAt string               `json:"data_processamento"`
	Pages       []wireExtractionPage `json:"paginas"`
}

type wireExtractionPage struct {
	Number int         `json:"numero"`
	Text   string      `json:"texto"`
	Images []wireImage `json:"imagens"`
}

type wireSection struct {
	Title   string      `json:"title"`
	Content string      `json:"content"`
	Images  []wireImage `json:"images"`
}

// wireImage accepts both the explicit rect and the corner form, either
// flattened or nested under "position" or "posicao".
type wireImage struct {
	ID       string     `json:"id"`
	Source   string     `json:"source"`
	URL      string     `json:"url"`
	DataRef  string     `json:"data_ref"`
	FilePath string     `json:"caminho_arquivo"`
	Position *wirePlace `json:"position"`
	Posicao  *wirePlace `json:"posicao"`
	wirePlace
}

type wirePlace struct {
	Top          looseFloat `json:"top"`
	Left         looseFloat `json:"left"`
	Width        looseFloat `json:"width"`
	Height       looseFloat `json:"height"`
	TopLeftX     looseFloat `json:"top_left_x"`
	TopLeftY     looseFloat `json:"top_left_y"`
	BottomRightX looseFloat `json:"bottom_right_x"`
	BottomRightY looseFloat `json:"bottom_right_y"`
}

// looseFloat takes a number or a numeric string; anything else is unset.
type looseFloat struct {
	v   float64
	set bool
}

func (f *looseFloat) UnmarshalJSON(b []byte) error {
	*f = looseFloat{}
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*f = looseFloat{v: n, set: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*f = looseFloat{v: n, set: true}
		}
	}
	return nil
}

func (f looseFloat) ptr() *float64 {
	if !f.set {
		return nil
	}
	v := f.v
	return &v
}

// merge overlays the set fields of o onto p.
func (p wirePlace) merge(o *wirePlace) wirePlace {
	if o == nil {
		return p
	}
	pick := func(a, b looseFloat) looseFloat {
		if b.set {
			return b
		}
		return a
	}
	return wirePlace{
		Top:          pick(p.Top, o.Top),
		Left:         pick(p.Left, o.Left),
		Width:        pick(p.Width, o.Width),
		Height:       pick(p.Height, o.Height),
		TopLeftX:     pick(p.TopLeftX, o.TopLeftX),
		TopLeftY:     pick(p.TopLeftY, o.TopLeftY),
		BottomRightX: pick(p.BottomRightX, o.BottomRightX),
		BottomRightY: pick(p.BottomRightY, o.BottomRightY),
	}
}

func (w wireImage) region(fallbackID string) domain.ImageRegion {
	place := w.wirePlace.merge(w.Posicao).merge(w.Position)

	region := domain.ImageRegion{
		ID:      w.ID,
		Source:  domain.ImageSource(w.Source),
		URL:     w.URL,
		DataRef: w.DataRef,
		BoundingBox: domain.BoundingBox{
			TopLeftX:     place.TopLeftX.ptr(),
			TopLeftY:     place.TopLeftY.ptr(),
			BottomRightX: place.BottomRightX.ptr(),
			BottomRightY: place.BottomRightY.ptr(),
		},
	}
	if region.ID == "" {
		region.ID = fallbackID
	}
	if region.Source != domain.ImageSourceManual {
		region.Source = domain.ImageSourceAuto
	}
	if region.DataRef == "" {
		region.DataRef = w.FilePath
	}
	if place.Top.set || place.Left.set || place.Width.set || place.Height.set {
		region.Position = &domain.Position{
			Top:    place.Top.ptr(),
			Left:   place.Left.ptr(),
			Width:  place.Width.ptr(),
			Height: place.Height.ptr(),
		}
	}
	return region
}

func (w wireImage) legacy(fallbackID string) domain.LegacyImage {
	r := w.region(fallbackID)
	return domain.LegacyImage{ID: r.ID, URL: r.Src(), Position: r.BoundingBox}
}

func convertImages(page int, in []wireImage) []domain.ImageRegion {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.ImageRegion, len(in))
	for i, img := range in {
		out[i] = img.region(imageID(page, i))
	}
	return out
}

func imageID(page, index int) string {
	return "img_" + strconv.Itoa(page) + "_" + strconv.Itoa(index+1)
}

func pageNumber(declared, index int) int {
	if declared > 0 {
		return declared
	}
	return index + 1
}

func decodeStructured(data []byte) (*domain.Document, error) {
	var w wireStructured
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}

	doc := &domain.Document{Kind: domain.DocumentStructured, Source: w.Source, ProcessedAt: w.ProcessedAt}
	for i, p := range w.Pages {
		number := pageNumber(p.Number, i)
		page := domain.PageContent{
			Number: number,
			Title:  p.Title,
			Text:   p.Text,
			Images: convertImages(number, p.Images),
		}
		for _, raw := range p.Tables {
			page.Tables = append(page.Tables, markup.DecodeTable(raw))
		}
		doc.Pages = append(doc.Pages, page)
	}
	return doc, nil
}

func decodeExtraction(data []byte) (*domain.Document, error) {
	var w wireExtraction
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}

	doc := &domain.Document{Kind: domain.DocumentStructured, Source: w.File, ProcessedAt: w.ProcessedAt}
	for i, p := range w.Pages {
		number := pageNumber(p.Number, i)
		doc.Pages = append(doc.Pages, domain.PageContent{
			Number: number,
			Text:   p.Text,
			Images: convertImages(number, p.Images),
		})
	}
	return doc, nil
}

func decodeLegacy(data []byte) (*domain.Document, error) {
	var sections []wireSection
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &sections); err != nil {
			return nil, err
		}
	} else {
		var w struct {
			Sections []wireSection `json:"sections"`
		}
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, err
		}
		sections = w.Sections
	}

	doc := &domain.Document{Kind: domain.DocumentLegacy}
	for i, s := range sections {
		sec := domain.Section{Title: s.Title, Content: s.Content}
		for j, img := range s.Images {
			sec.Images = append(sec.Images, img.legacy(imageID(i+1, j)))
		}
		doc.Sections = append(doc.Sections, sec)
	}
	return doc, nil
}
