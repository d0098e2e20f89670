package images

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/slide-deck/internal/domain"
)

func f(v float64) *float64 { return &v }

func ids(regions []domain.ImageRegion) []string {
	out := make([]string, len(regions))
	for i, r := range regions {
		out[i] = r.ID
	}
	return out
}

func TestMerge_AutoThenManual(t *testing.T) {
	store := NewManualStore()
	seq := 0
	store.newID = func() string {
		seq++
		return "M" + string(rune('0'+seq))
	}
	store.Append(2, "https://img/m1.png", nil)
	store.Append(3, "https://img/other.png", nil)

	auto := []domain.ImageRegion{{ID: "A1"}, {ID: "A2"}}

	merged := Merge(2, auto, store)
	assert.Equal(t, []string{"A1", "A2", "M1"}, ids(merged))
	assert.Equal(t, domain.ImageSourceAuto, merged[0].Source)
	assert.Equal(t, domain.ImageSourceManual, merged[2].Source)

	// Merging another page does not affect page 2.
	_ = Merge(3, nil, store)
	assert.Equal(t, []string{"A1", "A2", "M1"}, ids(Merge(2, auto, store)))

	// Inputs are untouched.
	assert.Empty(t, auto[0].Source)
}

func TestMerge_NoDeduplication(t *testing.T) {
	store := NewManualStore()
	store.Append(1, "https://img/a.png", nil)
	auto := []domain.ImageRegion{{ID: "a", URL: "https://img/a.png"}}

	merged := Merge(1, auto, store)
	require.Len(t, merged, 2)
	assert.Equal(t, merged[0].URL, merged[1].URL)
}

func TestMerge_Empty(t *testing.T) {
	assert.Nil(t, Merge(1, nil, nil))
	assert.Nil(t, Merge(1, nil, NewManualStore()))
	assert.Len(t, Merge(1, []domain.ImageRegion{{ID: "x"}}, nil), 1)
}

func TestManualStore_Append(t *testing.T) {
	store := NewManualStore()

	byURL := store.Append(1, "https://img/x.png", &domain.Rect{Top: 10, Left: 20, Width: 300, Height: 200})
	byData := store.Append(1, "data:image/png;base64,AAAA", nil)

	assert.True(t, strings.HasPrefix(byURL.ID, "manual-"))
	assert.NotEqual(t, byURL.ID, byData.ID)
	assert.Less(t, byURL.ID, byData.ID, "ids sort by insertion time")

	assert.Equal(t, "https://img/x.png", byURL.Src())
	assert.Empty(t, byData.URL)
	assert.Equal(t, "data:image/png;base64,AAAA", byData.Src())

	require.NotNil(t, byURL.Position)
	assert.Equal(t, domain.Rect{Top: 10, Left: 20, Width: 300, Height: 200}, Resolve(byURL, DefaultPlaceholder))
	assert.Nil(t, byData.Position)
	assert.Equal(t, 2, store.Len())
}

func TestManualStore_ImagesForReturnsCopy(t *testing.T) {
	store := NewManualStore()
	store.Append(1, "u", nil)

	got := store.ImagesFor(1)
	got[0].ID = "changed"
	assert.NotEqual(t, "changed", store.ImagesFor(1)[0].ID)
}

func TestManualStore_ConcurrentAppend(t *testing.T) {
	store := NewManualStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Append(1, "u", nil)
			_ = store.ImagesFor(1)
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, img := range store.ImagesFor(1) {
		assert.False(t, seen[img.ID], "duplicate id %s", img.ID)
		seen[img.ID] = true
	}
	assert.Len(t, seen, 50)
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		region domain.ImageRegion
		want   domain.Rect
	}{
		{
			name:   "nothing known uses placeholder",
			region: domain.ImageRegion{ID: "x"},
			want:   DefaultPlaceholder,
		},
		{
			name: "explicit position",
			region: domain.ImageRegion{Position: &domain.Position{
				Top: f(1), Left: f(2), Width: f(3), Height: f(4),
			}},
			want: domain.Rect{Top: 1, Left: 2, Width: 3, Height: 4},
		},
		{
			name: "bounding box",
			region: domain.ImageRegion{BoundingBox: domain.BoundingBox{
				TopLeftX: f(100), TopLeftY: f(50), BottomRightX: f(500), BottomRightY: f(350),
			}},
			want: domain.Rect{Top: 50, Left: 100, Width: 400, Height: 300},
		},
		{
			name: "explicit width with derived height",
			region: domain.ImageRegion{
				Position:    &domain.Position{Width: f(640)},
				BoundingBox: domain.BoundingBox{TopLeftY: f(10), BottomRightY: f(130)},
			},
			want: domain.Rect{Top: 10, Left: 100, Width: 640, Height: 120},
		},
		{
			name: "inverted box falls back per field",
			region: domain.ImageRegion{BoundingBox: domain.BoundingBox{
				TopLeftX: f(500), TopLeftY: f(0), BottomRightX: f(100), BottomRightY: f(80),
			}},
			want: domain.Rect{Top: 0, Left: 500, Width: 400, Height: 80},
		},
		{
			name: "half a box only gives the origin",
			region: domain.ImageRegion{BoundingBox: domain.BoundingBox{
				TopLeftX: f(7), TopLeftY: f(8),
			}},
			want: domain.Rect{Top: 8, Left: 7, Width: 400, Height: 300},
		},
		{
			name:   "zero explicit size is ignored",
			region: domain.ImageRegion{Position: &domain.Position{Width: f(0), Height: f(-5), Top: f(0)}},
			want:   domain.Rect{Top: 0, Left: 100, Width: 400, Height: 300},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.region, DefaultPlaceholder))
		})
	}
}

func TestFromLegacy(t *testing.T) {
	img := FromLegacy(domain.LegacyImage{
		ID:       "img-1",
		URL:      "https://img/1.png",
		Position: domain.BoundingBox{TopLeftX: f(0), TopLeftY: f(0), BottomRightX: f(200), BottomRightY: f(100)},
	})

	assert.Equal(t, domain.ImageSourceAuto, img.Source)
	assert.Equal(t, domain.Rect{Top: 0, Left: 0, Width: 200, Height: 100}, Resolve(img, DefaultPlaceholder))
}
