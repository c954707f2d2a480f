package model

import "time"

// Workflow steps, linear. Step1 is the classification and pricing form,
// Step2 the dynamic attribute form, Step3 the location form, Step4 the
// media batch and final publish.
const (
	Step1 = 1
	Step2 = 2
	Step3 = 3
	Step4 = 4
)

// Draft lifecycle phases. A draft is always in exactly one of these; fields
// belonging to a later phase are meaningless until every earlier phase has
// committed server-side.
const (
	PhaseUninitialized   = "uninitialized"
	PhaseStep1Committed  = "step1_committed"
	PhaseStep2Committed  = "step2_committed"
	PhaseStep3Committed  = "step3_committed"
	PhasePublished       = "published"
	PhaseExpired         = "expired"
)

// Draft step display statuses used in descriptors.
const (
	StepStatusInProgress = "in_progress"
	StepStatusCompleted  = "completed"
	StepStatusFuture     = "future"
)

// LabeledValue is a display label paired with the backend wire identifier.
type LabeledValue struct {
	Value string `json:"value"`
	Slug  string `json:"slug"`
}

// Location holds phase 3 data. Country through Area are slugs resolved by
// the cascading lookup; Address and the coordinate strings are independent
// leaf fields (a map picker may set coordinates directly).
type Location struct {
	Country   string `json:"country"`
	Province  string `json:"province"`
	City      string `json:"city"`
	Area      string `json:"area"`
	Address   string `json:"address"`
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

// Draft is the in-progress composite listing. ListingID is empty until the
// phase 1 commit returns the backend identifier; phases 2-4 thread it into
// every payload. The workflow engine exclusively owns the Draft; the
// attribute, location, and media collaborators mutate only the sub-objects
// addressed to them through the engine.
type Draft struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	ListingID   string `json:"listing_id,omitempty"`
	PublishedID string `json:"published_id,omitempty"`

	DealType     LabeledValue `json:"deal_type"`
	PropertyType LabeledValue `json:"property_type"`
	Category     LabeledValue `json:"category"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Price        string       `json:"price"` // digits only

	Attributes map[string]FieldValue `json:"attributes,omitempty"`
	Location   Location              `json:"location"`
	Assets     []MediaAsset          `json:"assets,omitempty"`

	Phase       string     `json:"phase"`
	CurrentStep int        `json:"current_step"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Version     int        `json:"version"`
}

// CommittedThrough returns the highest step whose commit has succeeded,
// derived from the lifecycle phase. Zero when nothing has committed.
func (d *Draft) CommittedThrough() int {
	switch d.Phase {
	case PhaseStep1Committed:
		return Step1
	case PhaseStep2Committed:
		return Step2
	case PhaseStep3Committed:
		return Step3
	case PhasePublished:
		return Step4
	default:
		return 0
	}
}

// DraftEvent records one entry of a draft's audit trail.
type DraftEvent struct {
	ID        string         `json:"id"`
	DraftID   string         `json:"draft_id"`
	Step      int            `json:"step"`
	Event     string         `json:"event"`
	ActorID   string         `json:"actor_id"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// StepSummary is one step's status in a draft descriptor.
type StepSummary struct {
	Step   int    `json:"step"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// HistoryEntry is one audit record in a draft descriptor.
type HistoryEntry struct {
	Step      int    `json:"step"`
	Event     string `json:"event"`
	Actor     string `json:"actor"`
	Timestamp string `json:"timestamp"`
}

// DraftDescriptor is the resolved view of a draft sent to the frontend.
type DraftDescriptor struct {
	ID          string         `json:"id"`
	ListingID   string         `json:"listing_id,omitempty"`
	PublishedID string         `json:"published_id,omitempty"`
	Phase       string         `json:"phase"`
	CurrentStep int            `json:"current_step"`
	Steps       []StepSummary  `json:"steps"`
	Draft       *Draft         `json:"draft"`
	History     []HistoryEntry `json:"history,omitempty"`
}
