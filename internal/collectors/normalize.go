package collectors

// Normalization curves that map raw provider figures onto the common 0-10
// rating scale. Each curve belongs to exactly one provider; they live together
// here so the scale conventions are reviewable in one place.

// nicheGrades maps Niche letter grades to scale values. Unknown grades fall
// back to the midpoint.
var nicheGrades = map[string]float64{
	"A+": 10.0, "A": 9.5, "A-": 9.0,
	"B+": 8.5, "B": 8.0, "B-": 7.5,
	"C+": 7.0, "C": 6.5, "C-": 6.0,
	"D+": 5.5, "D": 5.0, "D-": 4.5,
	"F+": 4.0, "F": 3.5, "F-": 3.0,
}

// NicheGradeValue converts a Niche letter grade ("A+" .. "F-") to its numeric
// scale value. Unrecognized grades map to 5.0.
func NicheGradeValue(grade string) float64 {
	if v, ok := nicheGrades[grade]; ok {
		return v
	}
	return 5.0
}

// CommuteScore converts an average commute in minutes to a 0-10 score where
// 10 is best. 10 minutes or less scores 10, 60+ minutes scores 0; a zip with
// no commute figure gets the midpoint.
func CommuteScore(avgMinutes float64) float64 {
	if avgMinutes <= 0 {
		return 5.0
	}
	return clamp(10-(avgMinutes-10)/5, 0, 10)
}

// SchoolScore converts an academic performance index (roughly 200-1000, 800
// considered good) to a 1-10 score.
func SchoolScore(apiScore float64) float64 {
	return clamp((apiScore-200)/100, 1, 10)
}

// CrimeScore converts a combined crime rate per 1000 residents to a 1-10
// score where 10 is safest. A rate of 0 scores 10; 45+ per 1000 scores 1.
func CrimeScore(ratePer1000 float64) float64 {
	return clamp(10-ratePer1000/5, 1, 10)
}

// amenityThresholds are per-category count thresholds derived from the
// distribution of amenity counts across Bay Area zips. Crossing the i-th
// threshold yields a score of i+2, so counts map onto 1-10.
var amenityThresholds = map[string][]int{
	"restaurants": {0, 2, 5, 8, 12, 18, 25, 35, 50},
	"shopping":    {0, 1, 2, 4, 6, 9, 13, 20, 30},
	"recreation":  {0, 1, 2, 3, 5, 8, 12, 18, 25},
	"transit":     {0, 2, 5, 10, 15, 25, 40, 60, 90},
	"healthcare":  {0, 1, 2, 3, 5, 8, 12, 18, 25},
	"education":   {0, 1, 2, 3, 4, 6, 8, 12, 18},
}

// AmenityScore converts a raw amenity count in one category to a 1-10 score
// using the category's percentile thresholds. Unknown categories score 0.
func AmenityScore(category string, count int) float64 {
	thresholds, ok := amenityThresholds[category]
	if !ok {
		return 0
	}
	score := 1
	for i, threshold := range thresholds {
		if count >= threshold {
			score = i + 2
		} else {
			break
		}
	}
	return float64(score)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
