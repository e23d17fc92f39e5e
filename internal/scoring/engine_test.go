package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ziprank/internal/types"
)

// obs builds a minimal observation for snapshot fixtures.
func obs(zip string, kind types.RatingKind, value float64) types.Observation {
	return types.Observation{
		Zip:        zip,
		Kind:       kind,
		Value:      value,
		Confidence: 0.8,
		Source:     "test",
	}
}

func snapshotFor(observations ...types.Observation) Snapshot {
	snap := make(Snapshot)
	for _, o := range observations {
		byKind, ok := snap[o.Zip]
		if !ok {
			byKind = make(map[types.RatingKind]types.Observation)
			snap[o.Zip] = byKind
		}
		byKind[o.Kind] = o
	}
	return snap
}

func TestEngine_Score_NoCriteria(t *testing.T) {
	engine := NewEngine(Options{})

	snap := snapshotFor(obs("94110", types.KindSchoolRating, 8.0))
	result := engine.Score([]string{"94110", "94601"}, nil, snap)

	require.Len(t, result, 2)
	for _, zip := range []string{"94110", "94601"} {
		assert.False(t, result[zip].FinalScore.Valid, "zip %s", zip)
		assert.Zero(t, result[zip].UsedCriteria)
		assert.Empty(t, result[zip].Breakdown)
	}
}

func TestEngine_Score_DisabledCriteriaExcluded(t *testing.T) {
	engine := NewEngine(Options{})

	criteria := []types.Criterion{
		{RatingKind: types.KindSchoolRating, Weight: 1, Enabled: false},
	}
	snap := snapshotFor(obs("94110", types.KindSchoolRating, 8.0))

	result := engine.Score([]string{"94110"}, criteria, snap)
	assert.False(t, result["94110"].FinalScore.Valid)
	assert.Zero(t, result["94110"].UsedCriteria)
	assert.Empty(t, result["94110"].Breakdown)
}

func TestEngine_Score_SingleCriterionCollapsesToValue(t *testing.T) {
	engine := NewEngine(Options{})

	criteria := []types.Criterion{
		{RatingKind: types.KindSchoolRating, Weight: 3, Enabled: true},
	}
	snap := snapshotFor(obs("94110", types.KindSchoolRating, 8.5))

	result := engine.Score([]string{"94110"}, criteria, snap)

	score := result["94110"]
	require.True(t, score.FinalScore.Valid)
	assert.Equal(t, 8.5, score.FinalScore.Value)
	assert.Equal(t, 1, score.UsedCriteria)
}

func TestEngine_Score_InvertedCriterion(t *testing.T) {
	engine := NewEngine(Options{})

	criteria := []types.Criterion{
		{RatingKind: types.KindCommuteTime, Weight: 1, Invert: true, Enabled: true},
	}
	snap := snapshotFor(obs("94110", types.KindCommuteTime, 3.0))

	result := engine.Score([]string{"94110"}, criteria, snap)

	score := result["94110"]
	require.True(t, score.FinalScore.Valid)
	assert.Equal(t, 7.0, score.FinalScore.Value)

	require.Len(t, score.Breakdown, 1)
	entry := score.Breakdown[0]
	require.NotNil(t, entry.RawValue)
	require.NotNil(t, entry.Contributed)
	assert.Equal(t, 3.0, *entry.RawValue)
	assert.Equal(t, 7.0, *entry.Contributed)
}

func TestEngine_Score_WeightedAverage(t *testing.T) {
	engine := NewEngine(Options{})

	criteria := []types.Criterion{
		{RatingKind: types.KindSchoolRating, Weight: 1, Enabled: true},
		{RatingKind: types.KindNicheRating, Weight: 3, Enabled: true},
	}
	snap := snapshotFor(
		obs("94110", types.KindSchoolRating, 4.0),
		obs("94110", types.KindNicheRating, 8.0),
	)

	result := engine.Score([]string{"94110"}, criteria, snap)

	score := result["94110"]
	require.True(t, score.FinalScore.Valid)
	// (4*1 + 8*3) / (1+3) == 7.0
	assert.Equal(t, 7.0, score.FinalScore.Value)
	assert.Equal(t, 2, score.UsedCriteria)
}

func TestEngine_Score_MissingObservationSkipped(t *testing.T) {
	engine := NewEngine(Options{})

	criteria := []types.Criterion{
		{RatingKind: types.KindSchoolRating, Weight: 1, Enabled: true},
		{RatingKind: types.KindCrimeRate, Weight: 5, Enabled: true},
	}
	// Only school data exists; crime has no observation.
	snap := snapshotFor(obs("94110", types.KindSchoolRating, 6.0))

	result := engine.Score([]string{"94110"}, criteria, snap)

	score := result["94110"]
	require.True(t, score.FinalScore.Valid)
	// Not an average including a zero placeholder: the present criterion
	// stands alone.
	assert.Equal(t, 6.0, score.FinalScore.Value)
	assert.Equal(t, 1, score.UsedCriteria)

	// Breakdown lists every enabled criterion, with the missing one flagged.
	require.Len(t, score.Breakdown, 2)
	assert.True(t, score.Breakdown[0].Used)
	assert.False(t, score.Breakdown[1].Used)
	assert.Nil(t, score.Breakdown[1].RawValue)
	assert.Nil(t, score.Breakdown[1].Contributed)
}

func TestEngine_Score_AllMissingGivesSentinel(t *testing.T) {
	engine := NewEngine(Options{})

	criteria := []types.Criterion{
		{RatingKind: types.KindSchoolRating, Weight: 2, Enabled: true},
		{RatingKind: types.KindCrimeRate, Weight: 1, Enabled: true},
	}

	result := engine.Score([]string{"94601"}, criteria, snapshotFor())

	score := result["94601"]
	assert.False(t, score.FinalScore.Valid)
	assert.Zero(t, score.UsedCriteria)
	require.Len(t, score.Breakdown, 2)
	for _, entry := range score.Breakdown {
		assert.False(t, entry.Used)
	}
}

func TestEngine_Score_MidpointFallback(t *testing.T) {
	engine := NewEngine(Options{MidpointFallback: true})

	criteria := []types.Criterion{
		{RatingKind: types.KindSchoolRating, Weight: 1, Enabled: true},
		{RatingKind: types.KindCrimeRate, Weight: 1, Enabled: true},
	}
	snap := snapshotFor(obs("94110", types.KindSchoolRating, 9.0))

	result := engine.Score([]string{"94110"}, criteria, snap)

	score := result["94110"]
	require.True(t, score.FinalScore.Valid)
	// (9*1 + 5*1) / 2 == 7.0: missing crime data counts as the midpoint.
	assert.Equal(t, 7.0, score.FinalScore.Value)
	assert.Equal(t, 2, score.UsedCriteria)

	// The substituted entry records that no raw data existed.
	require.Len(t, score.Breakdown, 2)
	assert.Nil(t, score.Breakdown[1].RawValue)
	require.NotNil(t, score.Breakdown[1].Contributed)
	assert.Equal(t, 5.0, *score.Breakdown[1].Contributed)
}

func TestEngine_Score_DeterministicAcrossOrdering(t *testing.T) {
	engine := NewEngine(Options{})

	criteria := []types.Criterion{
		{RatingKind: types.KindSchoolRating, Weight: 2, Enabled: true},
		{RatingKind: types.KindCrimeRate, Weight: 1, Invert: true, Enabled: true},
		{RatingKind: types.KindCommuteTime, Weight: 0.5, Enabled: true},
	}
	snap := snapshotFor(
		obs("94110", types.KindSchoolRating, 8.0),
		obs("94110", types.KindCrimeRate, 2.0),
		obs("94110", types.KindCommuteTime, 6.0),
		obs("94601", types.KindSchoolRating, 5.0),
	)

	first := engine.Score([]string{"94110", "94601"}, criteria, snap)
	second := engine.Score([]string{"94601", "94110"}, criteria, snap)

	assert.Equal(t, first["94110"].FinalScore, second["94110"].FinalScore)
	assert.Equal(t, first["94601"].FinalScore, second["94601"].FinalScore)
	assert.Equal(t, first["94110"].Breakdown, second["94110"].Breakdown)
}
