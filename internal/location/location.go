// Package location derives contextual intelligence about a submission's
// surroundings: whether it was filed during rush hour and whether sensitive
// points of interest (schools, hospitals, universities) sit nearby.
package location

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nancybwi/DrainGuardHCM-sub000/internal/geo"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/metrics"
)

// Rush hour in Ho Chi Minh City is the half-open interval [17:00, 19:00):
// 18:59 counts, 19:00 does not.
const (
	rushHourStart = 17
	rushHourEnd   = 19
)

// hcmLocation is the civil time zone rush hour is evaluated in, regardless
// of the server's local zone.
var hcmLocation = loadHCMLocation()

func loadHCMLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	if err != nil {
		return time.FixedZone("ICT", 7*60*60)
	}
	return loc
}

// Intelligence is the ephemeral result of analyzing a submission's location.
// Its fields are copied onto the report; it is never persisted on its own.
type Intelligence struct {
	NearSchool        bool
	NearHospital      bool
	SchoolDistanceM   *float64
	HospitalDistanceM *float64
	DuringRushHour    bool
	NearbyPOIs        []string
}

// Analyzer runs location analysis against a geo-search collaborator.
type Analyzer struct {
	searcher geo.Searcher
	radiusM  int
	logger   *slog.Logger
}

// NewAnalyzer creates a location analyzer. radiusM bounds the POI search.
func NewAnalyzer(searcher geo.Searcher, radiusM int, logger *slog.Logger) *Analyzer {
	if radiusM <= 0 {
		radiusM = 500
	}
	return &Analyzer{
		searcher: searcher,
		radiusM:  radiusM,
		logger:   logger,
	}
}

// Analyze computes location intelligence for one submission.
//
// Each category is searched independently and any per-category error is
// swallowed as "no result": location intelligence is context, not a gate,
// so it never fails a submission.
func (a *Analyzer) Analyze(ctx context.Context, lat, lon float64, submittedAt time.Time) Intelligence {
	intel := Intelligence{
		DuringRushHour: IsRushHour(submittedAt),
	}

	school := a.nearest(ctx, lat, lon, geo.CategorySchool)
	hospital := a.nearest(ctx, lat, lon, geo.CategoryHospital)
	university := a.nearest(ctx, lat, lon, geo.CategoryUniversity)

	for _, hit := range []struct {
		category geo.Category
		place    *geo.Place
	}{
		{geo.CategorySchool, school},
		{geo.CategoryHospital, hospital},
		{geo.CategoryUniversity, university},
	} {
		if hit.place != nil {
			intel.NearbyPOIs = append(intel.NearbyPOIs, fmt.Sprintf("%s: %s (%.0fm)",
				hit.category.Label(), hit.place.Name, hit.place.DistanceM))
		}
	}

	// Universities count as schools for proximity purposes: the flag takes
	// the nearer of the two.
	if school != nil || university != nil {
		intel.NearSchool = true
		d := nearerDistance(school, university)
		intel.SchoolDistanceM = &d
	}
	if hospital != nil {
		intel.NearHospital = true
		d := hospital.DistanceM
		intel.HospitalDistanceM = &d
	}

	return intel
}

// nearest returns the closest place of one category, or nil on miss or error.
func (a *Analyzer) nearest(ctx context.Context, lat, lon float64, category geo.Category) *geo.Place {
	places, err := a.searcher.Search(ctx, lat, lon, a.radiusM, category)
	if err != nil {
		metrics.POISearchErrors.Inc()
		a.logger.Warn("POI search failed, treating as no result",
			"category", category,
			"error", err,
		)
		return nil
	}
	if len(places) == 0 {
		return nil
	}
	return &places[0]
}

func nearerDistance(a, b *geo.Place) float64 {
	switch {
	case a == nil:
		return b.DistanceM
	case b == nil:
		return a.DistanceM
	case a.DistanceM < b.DistanceM:
		return a.DistanceM
	default:
		return b.DistanceM
	}
}

// IsRushHour reports whether the instant falls inside Ho Chi Minh City's
// evening rush window.
func IsRushHour(t time.Time) bool {
	hour := t.In(hcmLocation).Hour()
	return hour >= rushHourStart && hour < rushHourEnd
}
