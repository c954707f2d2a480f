package location

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/backend"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/config"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/model"
)

type stubFetcher struct {
	options map[string][]backend.LocationOption
	calls   int
}

func (s *stubFetcher) GetLocationOptions(ctx context.Context, level, parentSlug string) ([]backend.LocationOption, error) {
	s.calls++
	return s.options[level+"/"+parentSlug], nil
}

func newTestResolver() (*Resolver, *stubFetcher) {
	fetcher := &stubFetcher{options: map[string][]backend.LocationOption{
		"country/": {
			{Name: "Türkiye", Slug: "turkiye"},
		},
		"province/turkiye": {
			{Name: "Istanbul", Slug: "istanbul"},
			{Name: "Ankara", Slug: "ankara"},
		},
		"city/istanbul": {
			{Name: "Istanbul", Slug: "istanbul-city"},
		},
		"area/istanbul-city": {
			{Name: "Kadıköy", Slug: "kadikoy"},
			{Name: "Beşiktaş", Slug: "besiktas"},
		},
	}}
	r := NewResolver(fetcher, config.CacheConfig{TTL: time.Minute, MaxEntries: 100}, zap.NewNop())
	return r, fetcher
}

func fullLocation() model.Location {
	return model.Location{
		Country:  "turkiye",
		Province: "istanbul",
		City:     "istanbul-city",
		Area:     "kadikoy",
		Address:  "Moda Cd. 12",
	}
}

func TestOptions_RequiresParentSelection(t *testing.T) {
	r, _ := newTestResolver()

	if _, err := r.Options(context.Background(), model.Location{}, LevelCountry); err != nil {
		t.Fatalf("country options must not need a parent: %v", err)
	}

	_, err := r.Options(context.Background(), model.Location{}, LevelProvince)
	var ee *model.ErrorEnvelope
	if !errors.As(err, &ee) || ee.Code != model.ErrBadRequest {
		t.Fatalf("expected %s without parent, got %v", model.ErrBadRequest, err)
	}
}

func TestOptions_ScopedToParentAndCached(t *testing.T) {
	r, fetcher := newTestResolver()
	loc := model.Location{Country: "turkiye", Province: "istanbul", City: "istanbul-city"}

	for i := 0; i < 3; i++ {
		opts, err := r.Options(context.Background(), loc, LevelArea)
		if err != nil {
			t.Fatalf("Options: %v", err)
		}
		if len(opts) != 2 || opts[0].Slug != "kadikoy" {
			t.Fatalf("unexpected options %+v", opts)
		}
	}
	if fetcher.calls != 1 {
		t.Errorf("expected 1 backend call, got %d", fetcher.calls)
	}
}

func TestSelect_ChangingLevelClearsDescendants(t *testing.T) {
	r, _ := newTestResolver()
	loc := fullLocation()

	got, err := r.Select(context.Background(), loc, LevelProvince, "ankara")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got.Province != "ankara" {
		t.Errorf("expected province ankara, got %q", got.Province)
	}
	if got.City != "" || got.Area != "" {
		t.Errorf("descendant levels must be cleared, got city=%q area=%q", got.City, got.Area)
	}
	if got.Country != "turkiye" {
		t.Errorf("ancestor level must be untouched, got %q", got.Country)
	}
	if got.Address != loc.Address {
		t.Errorf("address must be untouched, got %q", got.Address)
	}
}

func TestSelect_EmptySlugClearsLevelAndDescendants(t *testing.T) {
	r, fetcher := newTestResolver()
	loc := fullLocation()

	got, err := r.Select(context.Background(), loc, LevelProvince, "")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got.Province != "" || got.City != "" || got.Area != "" {
		t.Errorf("level and descendants must be cleared, got province=%q city=%q area=%q",
			got.Province, got.City, got.Area)
	}
	if got.Country != "turkiye" {
		t.Errorf("ancestor level must be untouched, got %q", got.Country)
	}
	if fetcher.calls != 0 {
		t.Errorf("clearing a level must not hit the backend, got %d calls", fetcher.calls)
	}
}

func TestSelect_SameValueKeepsDescendants(t *testing.T) {
	r, fetcher := newTestResolver()
	loc := fullLocation()

	got, err := r.Select(context.Background(), loc, LevelProvince, "istanbul")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got.City != "istanbul-city" || got.Area != "kadikoy" {
		t.Errorf("re-selecting the current value must not clear descendants: %+v", got)
	}
	if fetcher.calls != 0 {
		t.Errorf("expected no backend call for a no-op selection, got %d", fetcher.calls)
	}
}

func TestSelect_RejectsSlugOutsideOptions(t *testing.T) {
	r, _ := newTestResolver()
	loc := model.Location{Country: "turkiye"}

	_, err := r.Select(context.Background(), loc, LevelProvince, "izmir")
	var ee *model.ErrorEnvelope
	if !errors.As(err, &ee) || ee.Code != model.ErrValidationError {
		t.Fatalf("expected %s, got %v", model.ErrValidationError, err)
	}
	if len(ee.Details) != 1 || ee.Details[0].Field != LevelProvince {
		t.Errorf("unexpected details %+v", ee.Details)
	}
}

func TestSetCoordinates(t *testing.T) {
	r, _ := newTestResolver()

	tests := []struct {
		name     string
		lat, lng string
		wantErr  bool
	}{
		{"valid pin", "35.7", "51.4", false},
		{"cleared", "", "", false},
		{"latitude out of range", "120", "51.4", true},
		{"longitude not numeric", "35.7", "east", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.SetCoordinates(model.Location{}, tc.lat, tc.lng)
			if tc.wantErr {
				if err == nil {
					t.Error("expected validation error")
				}
				return
			}
			if err != nil {
				t.Fatalf("SetCoordinates: %v", err)
			}
			if got.Latitude != tc.lat || got.Longitude != tc.lng {
				t.Errorf("got %q/%q", got.Latitude, got.Longitude)
			}
		})
	}
}

func TestValidateForCommit(t *testing.T) {
	if err := ValidateForCommit(fullLocation()); err != nil {
		t.Fatalf("complete location must pass: %v", err)
	}

	loc := fullLocation()
	loc.Area = ""
	if err := ValidateForCommit(loc); err != nil {
		t.Errorf("area is optional: %v", err)
	}

	loc = fullLocation()
	loc.City = ""
	loc.Address = ""
	err := ValidateForCommit(loc)
	var ee *model.ErrorEnvelope
	if !errors.As(err, &ee) || len(ee.Details) != 2 {
		t.Fatalf("expected 2 field errors, got %v", err)
	}
}

func TestCoordinatePair(t *testing.T) {
	loc := fullLocation()
	loc.Latitude, loc.Longitude = "35.7", "51.4"
	x, y := CoordinatePair(loc)
	if x == nil || y == nil || *x != 35.7 || *y != 51.4 {
		t.Errorf("unexpected pair %v %v", x, y)
	}

	x, y = CoordinatePair(fullLocation())
	if x != nil || y != nil {
		t.Error("unset coordinates must map to nil")
	}
}
