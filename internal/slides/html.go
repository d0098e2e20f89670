package slides

import (
	"html/template"
	"io"
	"strconv"

	"github.com/spherical/slide-deck/internal/domain"
	"github.com/spherical/slide-deck/internal/images"
)

var deckTemplate = template.Must(template.New("deck").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { margin: 0; background: #1e1e1e; font-family: sans-serif; }
.slide { position: relative; width: {{.Width}}px; height: {{.Height}}px; margin: 24px auto; background: #fff; overflow: hidden; box-sizing: border-box; padding: 64px; }
.slide img { position: absolute; object-fit: contain; }
.slide-table { border-collapse: collapse; margin-top: 16px; }
.slide-table th, .slide-table td { border: 1px solid #999; padding: 6px 12px; }
.formula { font-family: serif; font-style: italic; }
.image-placeholder { border: 2px dashed #999; padding: 24px; }
</style>
</head>
<body>
{{range .Slides}}<section class="slide slide-{{.Role}}" id="{{.ID}}">
{{.Body}}
{{range .Images}}<img src="{{.Src}}" alt="{{.ID}}" style="{{.Style}}">
{{end}}</section>
{{end}}</body>
</html>
`))

type htmlDeck struct {
	Title  string
	Width  int
	Height int
	Slides []htmlSlide
}

type htmlSlide struct {
	ID     string
	Role   domain.SlideRole
	Body   template.HTML
	Images []htmlImage
}

type htmlImage struct {
	ID    string
	Src   template.URL
	Style template.CSS
}

// RenderHTML writes deck as a standalone page with every slide drawn on the
// 1920x1080 canvas. Slide bodies are trusted markup from the synthesizer.
func RenderHTML(w io.Writer, title string, deck []domain.SlideRecord) error {
	page := htmlDeck{
		Title:  title,
		Width:  domain.CanvasWidth,
		Height: domain.CanvasHeight,
		Slides: make([]htmlSlide, 0, len(deck)),
	}

	for _, slide := range deck {
		hs := htmlSlide{
			ID:   slide.ID,
			Role: slide.Role,
			Body: template.HTML(slide.Body),
		}
		for _, img := range slide.Images {
			src := img.Src()
			if src == "" {
				continue
			}
			r := images.Resolve(img, images.DefaultPlaceholder)
			hs.Images = append(hs.Images, htmlImage{
				ID:    img.ID,
				Src:   template.URL(src),
				Style: template.CSS("top:" + px(r.Top) + ";left:" + px(r.Left) + ";width:" + px(r.Width) + ";height:" + px(r.Height)),
			})
		}
		page.Slides = append(page.Slides, hs)
	}

	return deckTemplate.Execute(w, page)
}

func px(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "px"
}
