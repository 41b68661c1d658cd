// Package geo wraps the external geo-search collaborator used to find points
// of interest near a submission.
package geo

import "context"

// Category is a searchable point-of-interest category.
type Category string

const (
	CategorySchool     Category = "school"
	CategoryHospital   Category = "hospital"
	CategoryUniversity Category = "university"
)

// Label returns the human-readable label used in report POI lists.
func (c Category) Label() string {
	switch c {
	case CategorySchool:
		return "School"
	case CategoryHospital:
		return "Hospital"
	case CategoryUniversity:
		return "University"
	}
	return string(c)
}

// Place is a single ranked search result.
type Place struct {
	Name      string
	DistanceM float64
}

// Searcher finds points of interest of one category near a coordinate,
// ranked by distance ascending. Implementations must only return results
// within radiusM meters of the center.
type Searcher interface {
	Search(ctx context.Context, lat, lon float64, radiusM int, category Category) ([]Place, error)
}
