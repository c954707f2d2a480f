// Package location implements the cascading location selector. Four levels
// form a strict parent chain, country through area; selecting a level
// validates the choice against the backend's options for that level and
// clears every deeper level in the same operation.
package location

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/backend"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/config"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/lookup"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/model"
)

// Cascading levels, shallowest first.
const (
	LevelCountry  = "country"
	LevelProvince = "province"
	LevelCity     = "city"
	LevelArea     = "area"
)

var levelOrder = []string{LevelCountry, LevelProvince, LevelCity, LevelArea}

// OptionFetcher retrieves the options of one level scoped to its parent.
type OptionFetcher interface {
	GetLocationOptions(ctx context.Context, level, parentSlug string) ([]backend.LocationOption, error)
}

// Resolver validates level selections and maintains the parent chain
// invariant on a draft's location. Option lists are cached per level and
// parent.
type Resolver struct {
	fetcher OptionFetcher
	cache   *lookup.Cache[[]backend.LocationOption]
	logger  *zap.Logger
}

// NewResolver creates a resolver backed by the given option fetcher.
func NewResolver(fetcher OptionFetcher, cacheCfg config.CacheConfig, logger *zap.Logger) *Resolver {
	return &Resolver{
		fetcher: fetcher,
		cache:   lookup.NewCache[[]backend.LocationOption](cacheCfg.TTL, cacheCfg.MaxEntries),
		logger:  logger,
	}
}

// Options returns the selectable options for a level under the current
// location state. Every level except country requires its parent to be
// selected first.
func (r *Resolver) Options(ctx context.Context, loc model.Location, level string) ([]backend.LocationOption, error) {
	depth, ok := levelDepth(level)
	if !ok {
		return nil, model.NewBadRequestError("unknown location level " + strconv.Quote(level))
	}

	parentSlug := ""
	if depth > 0 {
		parentSlug = levelValue(loc, levelOrder[depth-1])
		if parentSlug == "" {
			return nil, model.NewBadRequestError(levelOrder[depth-1] + " must be selected first")
		}
	}

	key := level + "/" + parentSlug
	if cached, ok := r.cache.Get(key); ok {
		return cached, nil
	}

	opts, err := r.fetcher.GetLocationOptions(ctx, level, parentSlug)
	if err != nil {
		return nil, err
	}
	r.cache.Put(key, opts)
	return opts, nil
}

// Select validates the slug against the level's options and returns the
// location with the level set and every deeper level cleared. Re-selecting
// the current value leaves the deeper levels alone; an empty slug unsets
// the level together with its descendants.
func (r *Resolver) Select(ctx context.Context, loc model.Location, level, slug string) (model.Location, error) {
	depth, ok := levelDepth(level)
	if !ok {
		return loc, model.NewBadRequestError("unknown location level " + strconv.Quote(level))
	}
	if slug == "" {
		// Unsetting a level clears it and everything beneath it.
		for _, cleared := range levelOrder[depth:] {
			setLevelValue(&loc, cleared, "")
		}
		return loc, nil
	}
	if levelValue(loc, level) == slug {
		return loc, nil
	}

	opts, err := r.Options(ctx, loc, level)
	if err != nil {
		return loc, err
	}
	if !containsSlug(opts, slug) {
		return loc, model.NewValidationError([]model.FieldError{{
			Field:   level,
			Code:    model.ErrValidationError,
			Message: strconv.Quote(slug) + " is not a valid " + level,
		}})
	}

	setLevelValue(&loc, level, slug)
	for _, deeper := range levelOrder[depth+1:] {
		setLevelValue(&loc, deeper, "")
	}
	r.logger.Debug("location: level selected",
		zap.String("level", level),
		zap.String("slug", slug),
	)
	return loc, nil
}

// SetAddress sets the freeform street address.
func (r *Resolver) SetAddress(loc model.Location, address string) model.Location {
	loc.Address = address
	return loc
}

// SetCoordinates validates and sets the map pin. Empty strings clear it.
func (r *Resolver) SetCoordinates(loc model.Location, latitude, longitude string) (model.Location, error) {
	if latitude == "" && longitude == "" {
		loc.Latitude, loc.Longitude = "", ""
		return loc, nil
	}

	var details []model.FieldError
	if lat, err := strconv.ParseFloat(latitude, 64); err != nil || lat < -90 || lat > 90 {
		details = append(details, model.FieldError{
			Field: "latitude", Code: model.ErrValidationError,
			Message: "latitude must be a number between -90 and 90",
		})
	}
	if lng, err := strconv.ParseFloat(longitude, 64); err != nil || lng < -180 || lng > 180 {
		details = append(details, model.FieldError{
			Field: "longitude", Code: model.ErrValidationError,
			Message: "longitude must be a number between -180 and 180",
		})
	}
	if len(details) > 0 {
		return loc, model.NewValidationError(details)
	}

	loc.Latitude, loc.Longitude = latitude, longitude
	return loc, nil
}

// ValidateForCommit checks that the location is complete enough for the
// phase 3 commit: the first three cascade levels and the street address.
// The area level is optional because not every city is subdivided.
func ValidateForCommit(loc model.Location) error {
	var details []model.FieldError
	for _, level := range []string{LevelCountry, LevelProvince, LevelCity} {
		if levelValue(loc, level) == "" {
			details = append(details, model.FieldError{
				Field: level, Code: model.ErrValidationError,
				Message: level + " is required",
			})
		}
	}
	if loc.Address == "" {
		details = append(details, model.FieldError{
			Field: "address", Code: model.ErrValidationError,
			Message: "address is required",
		})
	}
	if len(details) > 0 {
		return model.NewValidationError(details)
	}
	return nil
}

// CoordinatePair converts the stored coordinate strings into the wire
// representation, nil when unset.
func CoordinatePair(loc model.Location) (x, y *float64) {
	if loc.Latitude == "" || loc.Longitude == "" {
		return nil, nil
	}
	lat, err1 := strconv.ParseFloat(loc.Latitude, 64)
	lng, err2 := strconv.ParseFloat(loc.Longitude, 64)
	if err1 != nil || err2 != nil {
		return nil, nil
	}
	return &lat, &lng
}

func levelDepth(level string) (int, bool) {
	for i, l := range levelOrder {
		if l == level {
			return i, true
		}
	}
	return 0, false
}

func levelValue(loc model.Location, level string) string {
	switch level {
	case LevelCountry:
		return loc.Country
	case LevelProvince:
		return loc.Province
	case LevelCity:
		return loc.City
	case LevelArea:
		return loc.Area
	}
	return ""
}

func setLevelValue(loc *model.Location, level, slug string) {
	switch level {
	case LevelCountry:
		loc.Country = slug
	case LevelProvince:
		loc.Province = slug
	case LevelCity:
		loc.City = slug
	case LevelArea:
		loc.Area = slug
	}
}

func containsSlug(opts []backend.LocationOption, slug string) bool {
	for _, o := range opts {
		if o.Slug == slug {
			return true
		}
	}
	return false
}
