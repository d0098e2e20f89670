package images

import "github.com/spherical/slide-deck/internal/domain"

// DefaultPlaceholder is used for fields neither an explicit position nor a
// bounding box can supply.
var DefaultPlaceholder = domain.Rect{Top: 100, Left: 100, Width: 400, Height: 300}

// PositionOf wraps a full rect as an explicit position.
func PositionOf(r domain.Rect) *domain.Position {
	return &domain.Position{Top: &r.Top, Left: &r.Left, Width: &r.Width, Height: &r.Height}
}

// Resolve computes a region's placement field by field: the explicit position
// first, then the bounding box, then the placeholder. Sizes must be positive
// to count.
func Resolve(region domain.ImageRegion, placeholder domain.Rect) domain.Rect {
	var pos domain.Position
	if region.Position != nil {
		pos = *region.Position
	}
	box := region.BoundingBox

	return domain.Rect{
		Top:    first(placeholder.Top, pos.Top, box.TopLeftY),
		Left:   first(placeholder.Left, pos.Left, box.TopLeftX),
		Width:  firstPositive(placeholder.Width, pos.Width, span(box.TopLeftX, box.BottomRightX)),
		Height: firstPositive(placeholder.Height, pos.Height, span(box.TopLeftY, box.BottomRightY)),
	}
}

func span(from, to *float64) *float64 {
	if from == nil || to == nil {
		return nil
	}
	d := *to - *from
	return &d
}

func first(fallback float64, candidates ...*float64) float64 {
	for _, c := range candidates {
		if c != nil {
			return *c
		}
	}
	return fallback
}

func firstPositive(fallback float64, candidates ...*float64) float64 {
	for _, c := range candidates {
		if c != nil && *c > 0 {
			return *c
		}
	}
	return fallback
}
