package collectors

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ziprank/internal/types"
)

var zipPattern = regexp.MustCompile(`^\d{5}$`)

// EducationCollector downloads California school performance data and
// aggregates per-school academic performance scores into one schoolRating
// observation per zip.
//
// The provider serves CSV with at least a zip column and an academic
// performance score column; header matching is case-insensitive substring so
// vintage-to-vintage column renames don't break the run.
type EducationCollector struct {
	client  *Client
	baseURL string
	logger  *slog.Logger
}

// NewEducationCollector creates an EducationCollector.
func NewEducationCollector(client *Client, baseURL string, logger *slog.Logger) *EducationCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &EducationCollector{client: client, baseURL: baseURL, logger: logger}
}

// Name implements scheduler.Collector.
func (c *EducationCollector) Name() string { return "education_data" }

// Spec implements scheduler.Collector. School data updates annually, so a
// long cadence is enough.
func (c *EducationCollector) Spec() types.DataSource {
	return types.DataSource{
		Name:            c.Name(),
		UpdateFrequency: 180 * 24 * time.Hour,
		URL:             "https://www.cde.ca.gov/ds/ad/filesschperf.asp",
		Notes:           "California Department of Education data",
	}
}

// Collect downloads the performance file, averages scores per zip, and
// normalizes onto the 1-10 school rating scale.
func (c *EducationCollector) Collect(ctx context.Context) ([]types.Observation, error) {
	body, err := c.client.Get(ctx, c.baseURL)
	if err != nil {
		return nil, err
	}

	perZip, err := aggregateSchoolScores(body)
	if err != nil {
		return nil, err
	}

	observations := make([]types.Observation, 0, len(perZip))
	for zip, avgScore := range perZip {
		observations = append(observations, types.Observation{
			Zip:        zip,
			Kind:       types.KindSchoolRating,
			Value:      SchoolScore(avgScore),
			Confidence: 0.85,
			Source:     "California Department of Education",
			SourceURL:  "https://www.cde.ca.gov/ds/ad/filesschperf.asp",
		})
	}

	c.logger.InfoContext(ctx, "education data collected",
		"zips", len(observations),
	)
	return observations, nil
}

// findColumn returns the index of the first header whose name contains the
// given substring, case-insensitive, or -1.
func findColumn(header []string, name string) int {
	for i, h := range header {
		if strings.Contains(strings.ToLower(h), name) {
			return i
		}
	}
	return -1
}

// aggregateSchoolScores parses the CSV payload and returns the mean raw
// performance score per zip. Schools with unparseable rows are skipped.
func aggregateSchoolScores(payload []byte) (map[string]float64, error) {
	reader := csv.NewReader(bytes.NewReader(payload))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamSource, "education file has no header row", err)
	}

	zipCol := findColumn(header, "zip")
	scoreCol := findColumn(header, "api")
	if scoreCol < 0 {
		scoreCol = findColumn(header, "performance")
	}
	if zipCol < 0 || scoreCol < 0 {
		return nil, types.NewAppError(types.ErrCodeUpstreamSource, "education file missing zip or score column", nil)
	}

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeUpstreamSource, "failed to parse education file", err)
		}
		if len(record) <= zipCol || len(record) <= scoreCol {
			continue
		}

		zip := record[zipCol]
		if len(zip) > 5 {
			zip = zip[:5] // strip ZIP+4 suffixes
		}
		if !zipPattern.MatchString(zip) {
			continue
		}

		score, err := strconv.ParseFloat(record[scoreCol], 64)
		if err != nil {
			continue
		}

		sums[zip] += score
		counts[zip]++
	}

	result := make(map[string]float64, len(sums))
	for zip, sum := range sums {
		result[zip] = sum / float64(counts[zip])
	}
	return result, nil
}
