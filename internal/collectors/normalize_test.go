package collectors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNicheGradeValue(t *testing.T) {
	assert.Equal(t, 10.0, NicheGradeValue("A+"))
	assert.Equal(t, 8.0, NicheGradeValue("B"))
	assert.Equal(t, 3.0, NicheGradeValue("F-"))
	// Unknown grades fall back to the midpoint.
	assert.Equal(t, 5.0, NicheGradeValue("Z"))
	assert.Equal(t, 5.0, NicheGradeValue(""))
}

func TestCommuteScore(t *testing.T) {
	assert.Equal(t, 10.0, CommuteScore(10))
	assert.Equal(t, 0.0, CommuteScore(60))
	assert.Equal(t, 5.0, CommuteScore(35))
	// No commute figure gets the midpoint, not zero.
	assert.Equal(t, 5.0, CommuteScore(0))
	// Clamped at both ends.
	assert.Equal(t, 10.0, CommuteScore(5))
	assert.Equal(t, 0.0, CommuteScore(200))
}

func TestSchoolScore(t *testing.T) {
	assert.Equal(t, 6.0, SchoolScore(800))
	assert.Equal(t, 1.0, SchoolScore(100))
	assert.Equal(t, 10.0, SchoolScore(2000))
}

func TestCrimeScore(t *testing.T) {
	assert.Equal(t, 10.0, CrimeScore(0))
	assert.Equal(t, 5.0, CrimeScore(25))
	assert.Equal(t, 1.0, CrimeScore(100))
}

func TestAmenityScore(t *testing.T) {
	// Zero count still crosses the zero threshold: minimum real score is 2.
	assert.Equal(t, 2.0, AmenityScore("restaurants", 0))
	assert.Equal(t, 2.0, AmenityScore("restaurants", 1))
	assert.Equal(t, 3.0, AmenityScore("restaurants", 2))
	assert.Equal(t, 10.0, AmenityScore("restaurants", 50))
	assert.Equal(t, 10.0, AmenityScore("transit", 500))
	assert.Equal(t, 0.0, AmenityScore("nightlife", 10))
}

func TestNeighborhoodScore(t *testing.T) {
	// All categories at zero count score 2 each.
	assert.Equal(t, 2.0, neighborhoodScore(map[string]int{}))

	// Dense urban counts max out every category.
	dense := map[string]int{
		"restaurants": 100, "shopping": 50, "recreation": 40,
		"transit": 120, "healthcare": 30, "education": 25,
	}
	assert.Equal(t, 10.0, neighborhoodScore(dense))
}
