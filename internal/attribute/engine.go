// Package attribute implements the dynamic attribute form engine. The
// backend supplies a field schema per property type; this package validates
// raw user input against it, normalizes every entry into the value/slug
// shape, and serializes the committed map into the phase 2 wire payload.
package attribute

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/config"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/lookup"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/model"
)

// SchemaFetcher retrieves the attribute field schema for a property type.
type SchemaFetcher interface {
	GetFeatureFields(ctx context.Context, propertyTypeSlug string) ([]model.FieldSchema, error)
}

// Engine resolves schemas and normalizes attribute input. Schemas are
// cached per property type; changing a draft's property type invalidates
// nothing here because the cache key is the slug itself.
type Engine struct {
	fetcher SchemaFetcher
	cache   *lookup.Cache[[]model.FieldSchema]
	logger  *zap.Logger
}

// NewEngine creates an attribute engine backed by the given fetcher.
func NewEngine(fetcher SchemaFetcher, cacheCfg config.CacheConfig, logger *zap.Logger) *Engine {
	return &Engine{
		fetcher: fetcher,
		cache:   lookup.NewCache[[]model.FieldSchema](cacheCfg.TTL, cacheCfg.MaxEntries),
		logger:  logger,
	}
}

// Schema returns the field schema for a property type, serving repeated
// requests from the cache.
func (e *Engine) Schema(ctx context.Context, propertyTypeSlug string) ([]model.FieldSchema, error) {
	if propertyTypeSlug == "" {
		return nil, model.NewBadRequestError("property type slug is required")
	}
	if cached, ok := e.cache.Get(propertyTypeSlug); ok {
		return cached, nil
	}

	fields, err := e.fetcher.GetFeatureFields(ctx, propertyTypeSlug)
	if err != nil {
		return nil, err
	}
	e.cache.Put(propertyTypeSlug, fields)
	e.logger.Debug("attribute: schema fetched",
		zap.String("property_type", propertyTypeSlug),
		zap.Int("fields", len(fields)),
	)
	return fields, nil
}

// Normalize validates raw input against the schema and produces the
// canonical attribute map. Keys absent from the input are left untouched;
// keys present with an empty value clear the field. Unknown keys and
// choices outside the option list are field-level validation errors, all
// collected before returning.
func (e *Engine) Normalize(schema []model.FieldSchema, input map[string]any) (map[string]model.FieldValue, error) {
	bySlug := make(map[string]model.FieldSchema, len(schema))
	for _, f := range schema {
		bySlug[f.Slug] = f
	}

	out := make(map[string]model.FieldValue, len(input))
	var details []model.FieldError

	// Deterministic error ordering for repeatable responses.
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, slug := range keys {
		field, ok := bySlug[slug]
		if !ok {
			details = append(details, model.FieldError{
				Field:   slug,
				Code:    model.ErrValidationError,
				Message: "unknown attribute field",
			})
			continue
		}

		value, err := normalizeField(field, input[slug])
		if err != nil {
			details = append(details, model.FieldError{
				Field:   slug,
				Code:    model.ErrValidationError,
				Message: err.Error(),
			})
			continue
		}
		out[slug] = value
	}

	if len(details) > 0 {
		return nil, model.NewValidationError(details)
	}
	return out, nil
}

// Serialize produces the phase 2 wire payload: one entry per non-empty
// attribute with the slug-preferred wire value, plus the linking field.
func (e *Engine) Serialize(attrs map[string]model.FieldValue, elanID string) map[string]any {
	payload := make(map[string]any, len(attrs)+1)
	for slug, value := range attrs {
		if value.IsEmpty() {
			continue
		}
		payload[slug] = value.WireValue()
	}
	payload["elan"] = elanID
	return payload
}

// normalizeField converts one raw input value per the field's widget kind.
func normalizeField(field model.FieldSchema, raw any) (model.FieldValue, error) {
	switch field.WidgetKind {
	case model.WidgetSelect, model.WidgetRadio:
		return normalizeChoice(field, raw)
	case model.WidgetCheckbox, model.WidgetMultiSelect:
		return normalizeChoiceList(field, raw)
	case model.WidgetRange:
		return normalizeRange(field, raw)
	case model.WidgetText:
		return normalizeText(field, raw)
	default:
		return model.FieldValue{}, fmt.Errorf("unsupported widget kind %q", field.WidgetKind)
	}
}

func normalizeChoice(field model.FieldSchema, raw any) (model.FieldValue, error) {
	s, err := coerceString(raw)
	if err != nil {
		return model.FieldValue{}, err
	}
	if s == "" {
		return model.FieldValue{}, nil
	}
	opt, err := resolveOption(field, s)
	if err != nil {
		return model.FieldValue{}, err
	}
	return model.NewScalarValue(opt.ValueTitle, opt.Slug), nil
}

func normalizeChoiceList(field model.FieldSchema, raw any) (model.FieldValue, error) {
	items, ok := raw.([]any)
	if !ok {
		if s, err := coerceString(raw); err == nil && s == "" {
			return model.FieldValue{}, nil
		}
		return model.FieldValue{}, fmt.Errorf("expected a list of selections")
	}

	seen := make(map[string]bool, len(items))
	pairs := make([]model.ValuePair, 0, len(items))
	for _, item := range items {
		s, err := coerceString(item)
		if err != nil {
			return model.FieldValue{}, err
		}
		opt, err := resolveOption(field, s)
		if err != nil {
			return model.FieldValue{}, err
		}
		if seen[opt.Slug] {
			continue
		}
		seen[opt.Slug] = true
		pairs = append(pairs, model.ValuePair{Value: opt.ValueTitle, Slug: opt.Slug})
	}
	if len(pairs) == 0 {
		return model.FieldValue{}, nil
	}
	return model.NewListValue(pairs), nil
}

func normalizeRange(field model.FieldSchema, raw any) (model.FieldValue, error) {
	s, err := coerceString(raw)
	if err != nil {
		return model.FieldValue{}, err
	}
	if s == "" {
		return model.FieldValue{}, nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return model.FieldValue{}, fmt.Errorf("expected a numeric value")
	}
	if field.Min != nil && n < *field.Min {
		return model.FieldValue{}, fmt.Errorf("value must be at least %s", formatBound(*field.Min))
	}
	if field.Max != nil && n > *field.Max {
		return model.FieldValue{}, fmt.Errorf("value must be at most %s", formatBound(*field.Max))
	}
	return model.NewScalarValue(s, matchedSlug(field, s)), nil
}

func normalizeText(field model.FieldSchema, raw any) (model.FieldValue, error) {
	s, err := coerceString(raw)
	if err != nil {
		return model.FieldValue{}, err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return model.FieldValue{}, nil
	}
	return model.NewScalarValue(s, matchedSlug(field, s)), nil
}

// matchedSlug returns the option slug when a freeform value happens to equal
// an enumerated option, so the wire payload can carry the slug instead of
// the raw text. Unmatched values keep an empty slug.
func matchedSlug(field model.FieldSchema, s string) string {
	if opt, ok := field.OptionBySlug(s); ok {
		return opt.Slug
	}
	if opt, ok := field.OptionByTitle(s); ok {
		return opt.Slug
	}
	return ""
}

// resolveOption matches input against the option list by slug first, then
// by display title.
func resolveOption(field model.FieldSchema, input string) (model.FieldOption, error) {
	if opt, ok := field.OptionBySlug(input); ok {
		return opt, nil
	}
	if opt, ok := field.OptionByTitle(input); ok {
		return opt, nil
	}
	return model.FieldOption{}, fmt.Errorf("%q is not a valid choice", input)
}

func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func coerceString(raw any) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case json.Number:
		return v.String(), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", raw)
	}
}
