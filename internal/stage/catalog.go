// Package stage holds the fixed catalog of remote processing stages.
package stage

// ID identifies a processing stage. It drives control flow only; display
// text is resolved separately through MessageFor.
type ID string

const (
	Uploading            ID = "UPLOADING"
	ProcessingSource     ID = "PROCESSING_SOURCE"
	ExtractingText       ID = "EXTRACTING_TEXT"
	CreatingPresentation ID = "CREATING_PRESENTATION"
	CreatingSlides       ID = "CREATING_SLIDES"
	PopulatingSlides     ID = "POPULATING_SLIDES"
	FormattingContent    ID = "FORMATTING_CONTENT"
	Finalizing           ID = "FINALIZING"
	Complete             ID = "COMPLETE"
)

// Error is the failure outcome. It is not a stage and has no catalog entry.
const Error ID = "ERROR"

// FallbackMessage is shown when neither the catalog nor the event has text.
const FallbackMessage = "Processing..."

// Stage is one immutable catalog entry.
type Stage struct {
	ID      ID
	Step    int // ordinal, 1-based
	Percent int // default progress, 0-100
	Message string
}

var catalog = []Stage{
	{Uploading, 1, 5, "Uploading document..."},
	{ProcessingSource, 2, 15, "Processing source document..."},
	{ExtractingText, 3, 30, "Extracting text and images..."},
	{CreatingPresentation, 4, 45, "Creating presentation..."},
	{CreatingSlides, 5, 60, "Creating slides..."},
	{PopulatingSlides, 6, 75, "Populating slides with content..."},
	{FormattingContent, 7, 85, "Formatting content..."},
	{Finalizing, 8, 95, "Finalizing presentation..."},
	{Complete, 9, 100, "Presentation ready!"},
}

var byID = func() map[ID]Stage {
	m := make(map[ID]Stage, len(catalog))
	for _, s := range catalog {
		m[s.ID] = s
	}
	return m
}()

// Lookup returns the catalog entry for name. Unknown names report false.
func Lookup(name string) (Stage, bool) {
	s, ok := byID[ID(name)]
	return s, ok
}

// All returns the catalog in step order. The slice is a copy.
func All() []Stage {
	out := make([]Stage, len(catalog))
	copy(out, catalog)
	return out
}

// Initial is the stage every job starts in.
func Initial() Stage {
	return catalog[0]
}

// Ordinal returns the step of id, or 0 when id is not a catalog stage.
func Ordinal(id ID) int {
	return byID[id].Step
}

// IsKnown reports whether id names a catalog stage.
func IsKnown(id ID) bool {
	_, ok := byID[id]
	return ok
}

// MessageFor resolves display text for a stage. A non-empty override wins,
// then the catalog default, then FallbackMessage.
func MessageFor(id ID, override string) string {
	if override != "" {
		return override
	}
	if s, ok := byID[id]; ok {
		return s.Message
	}
	return FallbackMessage
}
