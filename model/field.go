package model

// Widget kinds supplied by the backend field schema.
const (
	WidgetSelect      = "select"
	WidgetRadio       = "radio"
	WidgetCheckbox    = "checkbox"
	WidgetMultiSelect = "multiSelect"
	WidgetRange       = "range"
	WidgetText        = "text"
)

// IsMultiValued returns true for widget kinds that produce an ordered list
// of selections rather than a single value.
func IsMultiValued(widgetKind string) bool {
	return widgetKind == WidgetCheckbox || widgetKind == WidgetMultiSelect
}

// IsFreeform returns true for widget kinds whose value is typed by the user
// rather than chosen from the option list.
func IsFreeform(widgetKind string) bool {
	return widgetKind == WidgetRange || widgetKind == WidgetText
}

// FieldSchema is a server-supplied attribute field description. It is
// read-only to this service; the backend owns the schema per property type.
type FieldSchema struct {
	Slug       string        `json:"slug"`
	Title      string        `json:"title"`
	WidgetKind string        `json:"widget_kind"`
	Options    []FieldOption `json:"options,omitempty"`
	Min        *float64      `json:"min,omitempty"`
	Max        *float64      `json:"max,omitempty"`
}

// FieldOption is one enumerated choice of a field schema.
type FieldOption struct {
	ValueTitle string `json:"value_title"`
	Slug       string `json:"slug"`
}

// OptionBySlug returns the option with the given slug, or false.
func (s FieldSchema) OptionBySlug(slug string) (FieldOption, bool) {
	for _, opt := range s.Options {
		if opt.Slug == slug {
			return opt, true
		}
	}
	return FieldOption{}, false
}

// OptionByTitle returns the option whose display title matches, or false.
func (s FieldSchema) OptionByTitle(title string) (FieldOption, bool) {
	for _, opt := range s.Options {
		if opt.ValueTitle == title {
			return opt, true
		}
	}
	return FieldOption{}, false
}

// ValuePair is a display label paired with its backend-stable slug. Slug is
// empty only for freeform range/text values where no enumerated option
// matched the raw input.
type ValuePair struct {
	Value string `json:"value"`
	Slug  string `json:"slug,omitempty"`
}

// FieldValue is the canonical value of one attribute field. It is a tagged
// union: exactly one of Scalar or List is populated, determined by the
// field's widget kind at normalization time. The zero FieldValue is empty.
type FieldValue struct {
	Scalar *ValuePair  `json:"scalar,omitempty"`
	List   []ValuePair `json:"list,omitempty"`
}

// NewScalarValue returns a single-valued FieldValue.
func NewScalarValue(value, slug string) FieldValue {
	return FieldValue{Scalar: &ValuePair{Value: value, Slug: slug}}
}

// NewListValue returns a multi-valued FieldValue preserving order.
func NewListValue(pairs []ValuePair) FieldValue {
	return FieldValue{List: pairs}
}

// IsEmpty returns true when neither variant carries a value.
func (v FieldValue) IsEmpty() bool {
	return v.Scalar == nil && len(v.List) == 0
}

// WireValue serializes the value the way the backend expects: the slug is
// preferred over the display value whenever present, and multi-valued
// entries become an array of primitives.
func (v FieldValue) WireValue() any {
	if v.Scalar != nil {
		return v.Scalar.wire()
	}
	if len(v.List) > 0 {
		out := make([]any, 0, len(v.List))
		for _, p := range v.List {
			out = append(out, p.wire())
		}
		return out
	}
	return nil
}

func (p ValuePair) wire() any {
	if p.Slug != "" {
		return p.Slug
	}
	return p.Value
}
