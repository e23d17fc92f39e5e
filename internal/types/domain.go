package types

import (
	"encoding/json"
	"time"
)

// RatingKind identifies a category of measurement (school quality, crime rate,
// commute time, ...). Kinds are an open set; the engine treats them as opaque
// keys. The constants below are the kinds advertised on the map UI.
type RatingKind string

const (
	KindSchoolRating       RatingKind = "schoolRating"
	KindCrimeRate          RatingKind = "crimeRate"
	KindNicheRating        RatingKind = "nicheRating"
	KindCommuteTime        RatingKind = "commuteTime"
	KindNeighborhoodRating RatingKind = "neighborhoodRating"
)

// AdvertisedKinds is the fixed set of rating kinds included in every GeoJSON
// feature response. Absent observations are rendered as explicit nulls, never
// numeric defaults.
var AdvertisedKinds = []RatingKind{
	KindSchoolRating,
	KindCrimeRate,
	KindNicheRating,
	KindCommuteTime,
	KindNeighborhoodRating,
}

// Zipcode is the immutable reference record for a geographic unit. Created once
// at data-load time; this core never mutates it. Geometry is an opaque GeoJSON
// blob owned by the external loader.
type Zipcode struct {
	Zip              string          `json:"zip"`
	Name             string          `json:"name"`
	County           string          `json:"county"`
	State            string          `json:"state"`
	Geometry         json.RawMessage `json:"geometry,omitempty"`
	Population       *int            `json:"population,omitempty"`
	MedianIncome     *float64        `json:"median_income,omitempty"`
	MedianHomeValue  *float64        `json:"median_home_value,omitempty"`
	MedianRent       *float64        `json:"median_rent,omitempty"`
	OwnershipPercent *float64        `json:"ownership_percent,omitempty"`
	LastUpdated      time.Time       `json:"last_updated"`
}

// Observation is the current reconciled value for one (zip, rating kind) pair.
// Exactly one observation exists per pair; later writes replace earlier ones.
// Confidence is a [0,1] data-quality indicator stored for downstream consumers
// but not enforced at the reconciliation layer.
type Observation struct {
	Zip         string     `json:"zip"`
	Kind        RatingKind `json:"rating_kind"`
	Value       float64    `json:"value"`
	Confidence  float64    `json:"confidence"`
	Source      string     `json:"source"`
	SourceURL   string     `json:"source_url,omitempty"`
	LastUpdated time.Time  `json:"last_updated"`
}

// SourceState describes where a data source sits in its refresh lifecycle.
type SourceState string

const (
	// SourceStatePending means the source has never run or its next_update
	// has passed; it will run on the next scheduler tick.
	SourceStatePending SourceState = "pending"
	// SourceStateRunning means a fetch/ingest is in progress.
	SourceStateRunning SourceState = "running"
	// SourceStateIdle means the source succeeded recently and is waiting for
	// its next_update time.
	SourceStateIdle SourceState = "idle"
)

// DataSource is the scheduling record for one external data provider.
// Invariant: NextUpdate, when present, is LastUpdated + UpdateFrequency as of
// the last successful run.
type DataSource struct {
	Name            string        `json:"source_name"`
	LastUpdated     *time.Time    `json:"last_updated"`
	NextUpdate      *time.Time    `json:"next_update"`
	UpdateFrequency time.Duration `json:"update_frequency"`
	URL             string        `json:"url,omitempty"`
	Notes           string        `json:"notes,omitempty"`
}

// Due reports whether the source is eligible to run at the given time.
// A nil NextUpdate means "due immediately" (never run, or force-refreshed).
func (s *DataSource) Due(now time.Time) bool {
	return s.NextUpdate == nil || !s.NextUpdate.After(now)
}

// State derives the lifecycle state from the scheduling record. Running is
// transient and tracked by the scheduler, not the record, so this only
// distinguishes pending from idle.
func (s *DataSource) State(now time.Time) SourceState {
	if s.Due(now) {
		return SourceStatePending
	}
	return SourceStateIdle
}

// Criterion is one user-chosen scoring input: which rating kind to include,
// how heavily to weight it, and whether higher raw values should count against
// the score. Validated once at the API boundary, never re-parsed per access.
type Criterion struct {
	RatingKind RatingKind `json:"rating_kind" validate:"required"`
	Weight     float64    `json:"weight" validate:"required,gt=0"`
	Invert     bool       `json:"invert"`
	Enabled    bool       `json:"enabled"`
}

// Score is a nullable final score. Valid=false is the sentinel for "no
// computable score" (no enabled criteria, or no criterion had data) and
// serializes as JSON null so UI consumers never see a fake number.
type Score struct {
	Value float64
	Valid bool
}

// ValidScore returns a Score carrying the given value.
func ValidScore(v float64) Score {
	return Score{Value: v, Valid: true}
}

// MarshalJSON renders the sentinel as null and valid scores as numbers.
func (s Score) MarshalJSON() ([]byte, error) {
	if !s.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(s.Value)
}

// UnmarshalJSON accepts null or a number.
func (s *Score) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = Score{}
		return nil
	}
	if err := json.Unmarshal(data, &s.Value); err != nil {
		return err
	}
	s.Valid = true
	return nil
}

// CriterionResult is the per-criterion breakdown entry returned with every
// score. Every enabled criterion appears here, including ones with no data,
// so the caller can explain missing contributions.
type CriterionResult struct {
	RatingKind  RatingKind `json:"rating_kind"`
	Weight      float64    `json:"weight"`
	Invert      bool       `json:"invert"`
	Used        bool       `json:"used"`
	RawValue    *float64   `json:"raw_value,omitempty"`
	Contributed *float64   `json:"contributed,omitempty"`
}

// ZipcodeScore is the scoring engine's output for one zipcode. Ephemeral:
// recomputed on every request, never persisted.
type ZipcodeScore struct {
	Zip          string            `json:"zip"`
	FinalScore   Score             `json:"final_score"`
	UsedCriteria int               `json:"used_criteria"`
	Breakdown    []CriterionResult `json:"breakdown"`
}
