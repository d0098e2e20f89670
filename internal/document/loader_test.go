package document

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/slide-deck/internal/domain"
	"github.com/spherical/slide-deck/internal/images"
)

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	l, err := NewLoader(nil)
	require.NoError(t, err)
	return l
}

func TestLoader_Detect(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Shape
		wantErr bool
	}{
		{name: "structured", input: `{"pages":[{"number":1,"text":"x"}]}`, want: ShapeStructured},
		{name: "structured empty", input: `{"pages":[]}`, want: ShapeStructured},
		{name: "extraction", input: `{"arquivo":"a.pdf","paginas":[{"numero":1,"texto":"x","imagens":[]}]}`, want: ShapeExtraction},
		{name: "legacy object", input: `{"sections":[{"title":"a","content":"b"}]}`, want: ShapeLegacy},
		{name: "legacy array", input: `[{"title":"a"},{"content":"b"}]`, want: ShapeLegacy},
		{name: "page text must be a string", input: `{"pages":[{"text":5}]}`, wantErr: true},
		{name: "negative page number", input: `{"pages":[{"number":-1}]}`, wantErr: true},
		{name: "section without title or content", input: `[{"images":[]}]`, wantErr: true},
		{name: "unknown object", input: `{"slides":[]}`, wantErr: true},
		{name: "scalar", input: `42`, wantErr: true},
		{name: "not json", input: `{`, wantErr: true},
	}

	l := newTestLoader(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shape, err := l.Detect([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, shape)
		})
	}
}

func TestLoader_DecodeStructured(t *testing.T) {
	input := `{
		"source": "deck.pdf",
		"pages": [
			{"number": 1, "title": "Intro", "text": "Hello",
			 "tables": [{"headers": ["k", "v"], "rows": [["a", 1]]}, [["h"], ["r"]]],
			 "images": [
				{"id": "i1", "url": "https://img/1.png", "top_left_x": 10, "top_left_y": 20, "bottom_right_x": 110, "bottom_right_y": 220},
				{"url": "https://img/2.png", "position": {"width": 640, "top": "15"}},
				{"id": "i3", "top_left_x": "oops", "top_left_y": null}
			 ]},
			{"text": "# Second\nbody"}
		]
	}`

	doc, err := newTestLoader(t).Decode([]byte(input))
	require.NoError(t, err)

	assert.Equal(t, domain.DocumentStructured, doc.Kind)
	assert.Equal(t, "deck.pdf", doc.Source)
	require.Len(t, doc.Pages, 2)

	first := doc.Pages[0]
	require.Len(t, first.Tables, 2)
	assert.Equal(t, domain.Table{Headers: []string{"k", "v"}, Rows: [][]string{{"a", "1"}}}, first.Tables[0])
	assert.Equal(t, []string{"h"}, first.Tables[1].Headers)

	require.Len(t, first.Images, 3)
	assert.Equal(t, domain.ImageSourceAuto, first.Images[0].Source)
	assert.Equal(t, domain.Rect{Top: 20, Left: 10, Width: 100, Height: 200}, images.Resolve(first.Images[0], images.DefaultPlaceholder))

	assert.Equal(t, "img_1_2", first.Images[1].ID, "missing id derived from page and index")
	assert.Equal(t, domain.Rect{Top: 15, Left: 100, Width: 640, Height: 300}, images.Resolve(first.Images[1], images.DefaultPlaceholder))

	assert.Nil(t, first.Images[2].TopLeftX, "unparseable coordinate is dropped")
	assert.Nil(t, first.Images[2].TopLeftY)
	assert.Equal(t, images.DefaultPlaceholder, images.Resolve(first.Images[2], images.DefaultPlaceholder))

	assert.Equal(t, 2, doc.Pages[1].Number, "page number defaults to position")
}

func TestLoader_DecodeExtraction(t *testing.T) {
	input := `{
		"arquivo": "relatorio.pdf",
		"data_processamento": "2025-03-01 10:00:00",
		"paginas": [
			{"numero": 1, "texto": "# Resumo\nTexto", "imagens": [
				{"id": "img_1_1", "posicao": {"top_left_x": 0, "top_left_y": 0, "bottom_right_x": 300, "bottom_right_y": 150},
				 "caminho_arquivo": "imagens/relatorio/p1_1.png"}
			]},
			{"numero": 2, "texto": "", "imagens": []}
		]
	}`

	doc, err := newTestLoader(t).Decode([]byte(input))
	require.NoError(t, err)

	assert.Equal(t, domain.DocumentStructured, doc.Kind)
	assert.Equal(t, "relatorio.pdf", doc.Source)
	assert.Equal(t, "2025-03-01 10:00:00", doc.ProcessedAt)
	require.Len(t, doc.Pages, 2)

	img := doc.Pages[0].Images[0]
	assert.Equal(t, "imagens/relatorio/p1_1.png", img.Src())
	assert.Equal(t, domain.Rect{Top: 0, Left: 0, Width: 300, Height: 150}, images.Resolve(img, images.DefaultPlaceholder))
}

func TestLoader_DecodeLegacy(t *testing.T) {
	input := `{"sections": [
		{"title": "One", "content": "text", "images": [
			{"id": "a", "posicao": {"top_left_x": 1, "top_left_y": 2, "bottom_right_x": 3, "bottom_right_y": 4}},
			{"position": {"top_left_x": 5}}
		]},
		{"title": "Two", "content": ""}
	]}`

	doc, err := newTestLoader(t).Decode([]byte(input))
	require.NoError(t, err)

	assert.Equal(t, domain.DocumentLegacy, doc.Kind)
	require.Len(t, doc.Sections, 2)
	require.Len(t, doc.Sections[0].Images, 2)
	first := doc.Sections[0].Images[0]
	assert.Equal(t, "a", first.ID)
	require.NotNil(t, first.Position.BottomRightY)
	assert.Equal(t, 4.0, *first.Position.BottomRightY)
	assert.Equal(t, "img_1_2", doc.Sections[0].Images[1].ID)
	assert.Equal(t, 5.0, *doc.Sections[0].Images[1].Position.TopLeftX)
}

func TestLoader_LoadFile(t *testing.T) {
	l := newTestLoader(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"title":"Only"}]`), 0o644))

	doc, err := l.LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, doc.Sections, 1)

	_, err = l.LoadFile(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeIO))
}
