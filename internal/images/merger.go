// Package images merges detected and manually added images per page and
// resolves their placement on the slide canvas.
package images

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/spherical/slide-deck/internal/domain"
)

// ManualStore holds manually added images keyed by page number. It is owned
// by the caller and read on every synthesis, so later appends are always seen.
type ManualStore struct {
	mu     sync.RWMutex
	byPage map[int][]domain.ImageRegion
	newID  func() string
}

// NewManualStore creates an empty store.
func NewManualStore() *ManualStore {
	return &ManualStore{
		byPage: make(map[int][]domain.ImageRegion),
		newID:  manualID,
	}
}

// manualID is time-ordered, so ids sort by insertion time and never collide.
func manualID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return "manual-" + id.String()
}

// Append adds an image to a page. src is a URL or a data URI. A nil rect
// leaves placement to Resolve's placeholder.
func (s *ManualStore) Append(page int, src string, rect *domain.Rect) domain.ImageRegion {
	region := domain.ImageRegion{
		ID:     s.newID(),
		Source: domain.ImageSourceManual,
	}
	if strings.HasPrefix(src, "data:") {
		region.DataRef = src
	} else {
		region.URL = src
	}
	if rect != nil {
		region.Position = PositionOf(*rect)
	}

	s.mu.Lock()
	s.byPage[page] = append(s.byPage[page], region)
	s.mu.Unlock()

	return region
}

// ImagesFor implements domain.ManualImageSource. The result is a copy.
func (s *ManualStore) ImagesFor(page int) []domain.ImageRegion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ImageRegion(nil), s.byPage[page]...)
}

// Len returns the number of manual images across all pages.
func (s *ManualStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, imgs := range s.byPage {
		n += len(imgs)
	}
	return n
}

// Merge returns the page's auto images in detection order followed by its
// manual images in insertion order. Nothing is deduplicated and neither input
// is modified.
func Merge(page int, auto []domain.ImageRegion, manual domain.ManualImageSource) []domain.ImageRegion {
	var extra []domain.ImageRegion
	if manual != nil {
		extra = manual.ImagesFor(page)
	}
	if len(auto) == 0 && len(extra) == 0 {
		return nil
	}

	out := make([]domain.ImageRegion, 0, len(auto)+len(extra))
	for _, img := range auto {
		if img.Source == "" {
			img.Source = domain.ImageSourceAuto
		}
		out = append(out, img)
	}
	return append(out, extra...)
}

// FromLegacy converts an image of the flat-section shape.
func FromLegacy(img domain.LegacyImage) domain.ImageRegion {
	return domain.ImageRegion{
		ID:          img.ID,
		Source:      domain.ImageSourceAuto,
		URL:         img.URL,
		BoundingBox: img.Position,
	}
}
