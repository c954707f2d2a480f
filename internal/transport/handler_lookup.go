package transport

import (
	"net/http"

	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/attribute"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/backend"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/location"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/model"
)

// LookupHandler serves public reference data: attribute schemas per
// property type and the location hierarchy. Both are read-through
// caches over the upstream, so no authentication is required.
type LookupHandler struct {
	attributes *attribute.Engine
	options    location.OptionFetcher
}

// NewLookupHandler creates a lookup handler.
func NewLookupHandler(attributes *attribute.Engine, options location.OptionFetcher) *LookupHandler {
	return &LookupHandler{attributes: attributes, options: options}
}

// FeatureFields returns the attribute schema for a property type.
func (h *LookupHandler) FeatureFields(w http.ResponseWriter, r *http.Request) {
	propertyType := r.URL.Query().Get("property_type")
	schema, err := h.attributes.Schema(r.Context(), propertyType)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"fields": schema})
}

// Locations returns the options at one level of the location hierarchy.
// Levels below country require a parent slug.
func (h *LookupHandler) Locations(w http.ResponseWriter, r *http.Request) {
	level := r.URL.Query().Get("level")
	parent := r.URL.Query().Get("parent")
	if level == "" {
		WriteError(w, model.NewBadRequestError("Query parameter 'level' is required"))
		return
	}
	if level != location.LevelCountry && parent == "" {
		WriteError(w, model.NewBadRequestError("Query parameter 'parent' is required below country level"))
		return
	}

	opts, err := h.options.GetLocationOptions(r.Context(), level, parent)
	if err != nil {
		WriteError(w, err)
		return
	}
	if opts == nil {
		opts = []backend.LocationOption{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"options": opts})
}
