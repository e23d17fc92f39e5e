package collectors

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"strconv"
	"time"

	"ziprank/internal/types"
)

// CrimeCollector downloads jurisdiction-level crime statistics from the CA
// DOJ open data portal, computes combined violent+property crime rates per
// 1000 residents, and averages across the jurisdictions mapped to each zip.
//
// Expected CSV columns (matched by case-insensitive substring): zip,
// violent_crime, property_crime, population.
type CrimeCollector struct {
	client  *Client
	baseURL string
	logger  *slog.Logger
}

// NewCrimeCollector creates a CrimeCollector.
func NewCrimeCollector(client *Client, baseURL string, logger *slog.Logger) *CrimeCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &CrimeCollector{client: client, baseURL: baseURL, logger: logger}
}

// Name implements scheduler.Collector.
func (c *CrimeCollector) Name() string { return "crime_data" }

// Spec implements scheduler.Collector.
func (c *CrimeCollector) Spec() types.DataSource {
	return types.DataSource{
		Name:            c.Name(),
		UpdateFrequency: 60 * 24 * time.Hour,
		URL:             "https://openjustice.doj.ca.gov/data",
		Notes:           "California DOJ crime data",
	}
}

// Collect downloads the crime file and emits one crimeRate observation per
// zip, on the 1-10 scale where 10 is safest.
func (c *CrimeCollector) Collect(ctx context.Context) ([]types.Observation, error) {
	body, err := c.client.Get(ctx, c.baseURL)
	if err != nil {
		return nil, err
	}

	perZip, err := aggregateCrimeRates(body)
	if err != nil {
		return nil, err
	}

	observations := make([]types.Observation, 0, len(perZip))
	for zip, rate := range perZip {
		observations = append(observations, types.Observation{
			Zip:        zip,
			Kind:       types.KindCrimeRate,
			Value:      CrimeScore(rate),
			Confidence: 0.8,
			Source:     "California Department of Justice",
			SourceURL:  "https://openjustice.doj.ca.gov/data",
		})
	}

	c.logger.InfoContext(ctx, "crime data collected",
		"zips", len(observations),
	)
	return observations, nil
}

// aggregateCrimeRates parses the CSV payload and returns the mean combined
// crime rate per 1000 residents for each zip.
func aggregateCrimeRates(payload []byte) (map[string]float64, error) {
	reader := csv.NewReader(bytes.NewReader(payload))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamSource, "crime file has no header row", err)
	}

	zipCol := findColumn(header, "zip")
	violentCol := findColumn(header, "violent")
	propertyCol := findColumn(header, "property")
	populationCol := findColumn(header, "population")
	if zipCol < 0 || violentCol < 0 || propertyCol < 0 || populationCol < 0 {
		return nil, types.NewAppError(types.ErrCodeUpstreamSource, "crime file missing required columns", nil)
	}

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeUpstreamSource, "failed to parse crime file", err)
		}
		maxCol := zipCol
		for _, col := range []int{violentCol, propertyCol, populationCol} {
			if col > maxCol {
				maxCol = col
			}
		}
		if len(record) <= maxCol {
			continue
		}

		zip := record[zipCol]
		if len(zip) > 5 {
			zip = zip[:5]
		}
		if !zipPattern.MatchString(zip) {
			continue
		}

		violent, err1 := strconv.ParseFloat(record[violentCol], 64)
		property, err2 := strconv.ParseFloat(record[propertyCol], 64)
		population, err3 := strconv.ParseFloat(record[populationCol], 64)
		if err1 != nil || err2 != nil || err3 != nil || population <= 0 {
			continue
		}

		sums[zip] += (violent + property) / population * 1000
		counts[zip]++
	}

	result := make(map[string]float64, len(sums))
	for zip, sum := range sums {
		result[zip] = sum / float64(counts[zip])
	}
	return result, nil
}
