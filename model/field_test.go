package model

import (
	"reflect"
	"testing"
)

func TestFieldSchema_OptionByTitle(t *testing.T) {
	schema := FieldSchema{
		Slug:       "rooms",
		WidgetKind: WidgetSelect,
		Options: []FieldOption{
			{ValueTitle: "1", Slug: "rooms-1"},
			{ValueTitle: "2", Slug: "rooms-2"},
		},
	}

	opt, ok := schema.OptionByTitle("2")
	if !ok {
		t.Fatal("OptionByTitle(2) not found")
	}
	if opt.Slug != "rooms-2" {
		t.Errorf("Slug = %q, want rooms-2", opt.Slug)
	}

	if _, ok := schema.OptionByTitle("3"); ok {
		t.Error("OptionByTitle(3) = found, want not found")
	}
}

func TestFieldValue_WireValue(t *testing.T) {
	tests := []struct {
		name  string
		value FieldValue
		want  any
	}{
		{
			name:  "scalar prefers slug",
			value: NewScalarValue("2", "rooms-2"),
			want:  "rooms-2",
		},
		{
			name:  "scalar falls back to raw value",
			value: NewScalarValue("145", ""),
			want:  "145",
		},
		{
			name: "list preserves order and prefers slugs",
			value: NewListValue([]ValuePair{
				{Value: "Elevator", Slug: "elevator"},
				{Value: "Parking", Slug: "parking"},
			}),
			want: []any{"elevator", "parking"},
		},
		{
			name: "list mixes slugs and raw values",
			value: NewListValue([]ValuePair{
				{Value: "Elevator", Slug: "elevator"},
				{Value: "custom feature"},
			}),
			want: []any{"elevator", "custom feature"},
		},
		{
			name:  "empty value serializes to nil",
			value: FieldValue{},
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.value.WireValue()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("WireValue() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestFieldValue_IsEmpty(t *testing.T) {
	if !(FieldValue{}).IsEmpty() {
		t.Error("zero FieldValue should be empty")
	}
	if NewScalarValue("x", "").IsEmpty() {
		t.Error("scalar value should not be empty")
	}
	if NewListValue([]ValuePair{{Value: "a"}}).IsEmpty() {
		t.Error("list value should not be empty")
	}
}

func TestIsMultiValued(t *testing.T) {
	for _, kind := range []string{WidgetCheckbox, WidgetMultiSelect} {
		if !IsMultiValued(kind) {
			t.Errorf("IsMultiValued(%q) = false, want true", kind)
		}
	}
	for _, kind := range []string{WidgetSelect, WidgetRadio, WidgetRange, WidgetText} {
		if IsMultiValued(kind) {
			t.Errorf("IsMultiValued(%q) = true, want false", kind)
		}
	}
}

func TestDraft_CommittedThrough(t *testing.T) {
	tests := []struct {
		phase string
		want  int
	}{
		{PhaseUninitialized, 0},
		{PhaseStep1Committed, Step1},
		{PhaseStep2Committed, Step2},
		{PhaseStep3Committed, Step3},
		{PhasePublished, Step4},
		{PhaseExpired, 0},
	}
	for _, tt := range tests {
		d := &Draft{Phase: tt.phase}
		if got := d.CommittedThrough(); got != tt.want {
			t.Errorf("CommittedThrough(%s) = %d, want %d", tt.phase, got, tt.want)
		}
	}
}
