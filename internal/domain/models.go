package domain

// Slide canvas dimensions image positions are expressed against.
const (
	CanvasWidth  = 1920
	CanvasHeight = 1080
)

// ImageSource tells where an image region came from
type ImageSource string

const (
	ImageSourceAuto   ImageSource = "auto"   // detected by upstream extraction
	ImageSourceManual ImageSource = "manual" // appended by a user
)

// Rect is a fully resolved placement on the slide canvas, in pixels
type Rect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Position is an explicit placement where any field may be missing
type Position struct {
	Top    *float64 `json:"top,omitempty"`
	Left   *float64 `json:"left,omitempty"`
	Width  *float64 `json:"width,omitempty"`
	Height *float64 `json:"height,omitempty"`
}

// BoundingBox is the corner form emitted by OCR extraction
type BoundingBox struct {
	TopLeftX     *float64 `json:"top_left_x,omitempty"`
	TopLeftY     *float64 `json:"top_left_y,omitempty"`
	BottomRightX *float64 `json:"bottom_right_x,omitempty"`
	BottomRightY *float64 `json:"bottom_right_y,omitempty"`
}

// ImageRegion is one image placed (or to be placed) on a slide.
// The corner fields are flattened so OCR output decodes directly.
type ImageRegion struct {
	ID       string      `json:"id"`
	Source   ImageSource `json:"source,omitempty"`
	URL      string      `json:"url,omitempty"`
	DataRef  string      `json:"data_ref,omitempty"` // data URI or storage reference for raw bytes
	Position *Position   `json:"position,omitempty"`
	BoundingBox
}

// Src returns the reference a renderer should load the image from.
func (r ImageRegion) Src() string {
	if r.URL != "" {
		return r.URL
	}
	return r.DataRef
}

// Table is an ordered header row plus ordered data rows
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// PageContent is one page of a structured document
type PageContent struct {
	Number int           `json:"number"` // 1-based, stable merge key
	Title  string        `json:"title,omitempty"`
	Text   string        `json:"text"`
	Tables []Table       `json:"tables,omitempty"`
	Images []ImageRegion `json:"images,omitempty"`
}

// LegacyImage is an image of the older flat-section input shape
type LegacyImage struct {
	ID       string      `json:"id"`
	URL      string      `json:"url,omitempty"`
	Position BoundingBox `json:"position"`
}

// Section is one entry of the older flat-section input shape
type Section struct {
	Title   string        `json:"title"`
	Content string        `json:"content"`
	Images  []LegacyImage `json:"images,omitempty"`
}

// DocumentKind identifies which input shape a document uses
type DocumentKind string

const (
	DocumentStructured DocumentKind = "structured"
	DocumentLegacy     DocumentKind = "legacy"
)

// Document is the synthesized input: either pages or legacy sections
type Document struct {
	Kind        DocumentKind  `json:"kind,omitempty"`
	Source      string        `json:"source,omitempty"`       // original file name
	ProcessedAt string        `json:"processed_at,omitempty"` // as reported by extraction
	Pages       []PageContent `json:"pages,omitempty"`
	Sections    []Section     `json:"sections,omitempty"`
}

// SlideRole tags what a slide record represents
type SlideRole string

const (
	RoleCover   SlideRole = "cover"
	RoleContent SlideRole = "content"
	RoleImage   SlideRole = "image"
	RoleSummary SlideRole = "summary"
)

// SlideRecord is one renderable unit of the output deck
type SlideRecord struct {
	ID         string        `json:"id"`
	Role       SlideRole     `json:"type"`
	Title      string        `json:"title,omitempty"`
	PageNumber int           `json:"page_number,omitempty"`
	Body       string        `json:"content"`
	Images     []ImageRegion `json:"images,omitempty"`
}
