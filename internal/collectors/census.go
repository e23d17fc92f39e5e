package collectors

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ziprank/internal/db"
	"ziprank/internal/types"
)

// Census ACS table B08303 (travel time to work) buckets with their midpoint
// minutes. The 90+ bucket uses 90 as a floor.
var commuteBuckets = []struct {
	variable string
	midpoint float64
}{
	{"B08303_002E", 2.5},
	{"B08303_003E", 7},
	{"B08303_004E", 12},
	{"B08303_005E", 17},
	{"B08303_006E", 22},
	{"B08303_007E", 27},
	{"B08303_008E", 32},
	{"B08303_009E", 37},
	{"B08303_010E", 42},
	{"B08303_011E", 52},
	{"B08303_012E", 75},
	{"B08303_013E", 90},
}

const (
	censusVarTotalWorkers    = "B08303_001E"
	censusVarMedianIncome    = "B19013_001E"
	censusVarMedianHomeValue = "B25077_001E"
	censusVarMedianRent      = "B25064_001E"
	censusVarOccupiedUnits   = "B25003_001E"
	censusVarOwnerOccupied   = "B25003_002E"
	censusVarPopulation      = "B01003_001E"

	censusSourceURL = "https://www.census.gov/programs-surveys/acs"
)

// ZipcodeStore is the subset of db.ZipcodeRepository the census collector
// needs: the set of tracked zips, and the demographics refresh.
type ZipcodeStore interface {
	ListZips(ctx context.Context) ([]string, error)
	UpdateDemographics(ctx context.Context, zip string, d db.Demographics) error
}

// CensusCollector fetches ACS 5-year estimates. It produces commuteTime
// observations from table B08303 and refreshes the zipcodes demographics
// columns (population, income, housing) as a side effect of each run.
type CensusCollector struct {
	client  *Client
	zips    ZipcodeStore
	baseURL string
	apiKey  string
	year    string
	state   string // state FIPS filter for ZCTA queries
	logger  *slog.Logger
}

// CensusConfig holds the configuration for creating a CensusCollector.
type CensusConfig struct {
	Client  *Client
	Zips    ZipcodeStore
	BaseURL string
	APIKey  string
	// Year is the ACS 5-year vintage, e.g. "2022".
	Year string
	// StateFIPS filters ZCTA queries; defaults to California ("06").
	StateFIPS string
	Logger    *slog.Logger
}

// NewCensusCollector creates a CensusCollector.
func NewCensusCollector(cfg CensusConfig) *CensusCollector {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	year := cfg.Year
	if year == "" {
		year = "2022"
	}
	state := cfg.StateFIPS
	if state == "" {
		state = "06"
	}
	return &CensusCollector{
		client:  cfg.Client,
		zips:    cfg.Zips,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		year:    year,
		state:   state,
		logger:  logger,
	}
}

// Name implements scheduler.Collector.
func (c *CensusCollector) Name() string { return "census_data" }

// Spec implements scheduler.Collector.
func (c *CensusCollector) Spec() types.DataSource {
	return types.DataSource{
		Name:            c.Name(),
		UpdateFrequency: 90 * 24 * time.Hour,
		URL:             "https://www.census.gov/data/developers/data-sets.html",
		Notes:           "US Census Bureau ACS 5-year estimates",
	}
}

// Collect fetches commute and demographic tables for every tracked zip.
// Demographics are written directly to the zipcodes table here; only the
// commute scores come back as observations.
func (c *CensusCollector) Collect(ctx context.Context) ([]types.Observation, error) {
	tracked, err := c.zips.ListZips(ctx)
	if err != nil {
		return nil, err
	}
	trackedSet := make(map[string]struct{}, len(tracked))
	for _, zip := range tracked {
		trackedSet[zip] = struct{}{}
	}

	observations, err := c.collectCommute(ctx, trackedSet)
	if err != nil {
		return nil, err
	}

	if err := c.refreshDemographics(ctx, trackedSet); err != nil {
		// Demographics are supplementary reference data; a failure here must
		// not discard the commute observations already fetched.
		c.logger.ErrorContext(ctx, "census demographics refresh failed", "error", err)
	}

	return observations, nil
}

// collectCommute fetches table B08303 and converts the weighted average
// commute per zip into a commuteTime observation.
func (c *CensusCollector) collectCommute(ctx context.Context, tracked map[string]struct{}) ([]types.Observation, error) {
	variables := make([]string, 0, len(commuteBuckets)+1)
	variables = append(variables, censusVarTotalWorkers)
	for _, bucket := range commuteBuckets {
		variables = append(variables, bucket.variable)
	}

	table, err := c.fetchACS(ctx, variables)
	if err != nil {
		return nil, err
	}

	var observations []types.Observation
	for zip, row := range table {
		if _, ok := tracked[zip]; !ok {
			continue
		}

		workers := row.float(censusVarTotalWorkers)
		var totalMinutes float64
		for _, bucket := range commuteBuckets {
			totalMinutes += row.float(bucket.variable) * bucket.midpoint
		}

		avgMinutes := 0.0
		if workers > 0 {
			avgMinutes = totalMinutes / workers
		}

		observations = append(observations, types.Observation{
			Zip:        zip,
			Kind:       types.KindCommuteTime,
			Value:      CommuteScore(avgMinutes),
			Confidence: 0.9,
			Source:     "US Census Bureau American Community Survey",
			SourceURL:  censusSourceURL,
		})
	}

	c.logger.InfoContext(ctx, "census commute data collected",
		"rows", len(table),
		"observations", len(observations),
	)
	return observations, nil
}

// refreshDemographics fetches the income/housing table and updates the
// zipcodes reference columns.
func (c *CensusCollector) refreshDemographics(ctx context.Context, tracked map[string]struct{}) error {
	variables := []string{
		censusVarPopulation,
		censusVarMedianIncome,
		censusVarMedianHomeValue,
		censusVarMedianRent,
		censusVarOccupiedUnits,
		censusVarOwnerOccupied,
	}

	table, err := c.fetchACS(ctx, variables)
	if err != nil {
		return err
	}

	updated := 0
	for zip, row := range table {
		if _, ok := tracked[zip]; !ok {
			continue
		}

		d := db.Demographics{
			Population:      row.intPtr(censusVarPopulation),
			MedianIncome:    row.floatPtr(censusVarMedianIncome),
			MedianHomeValue: row.floatPtr(censusVarMedianHomeValue),
			MedianRent:      row.floatPtr(censusVarMedianRent),
		}
		if occupied := row.float(censusVarOccupiedUnits); occupied > 0 {
			pct := row.float(censusVarOwnerOccupied) / occupied * 100
			d.OwnershipPercent = &pct
		}

		if err := c.zips.UpdateDemographics(ctx, zip, d); err != nil {
			c.logger.WarnContext(ctx, "failed to update zipcode demographics",
				"zip", zip,
				"error", err,
			)
			continue
		}
		updated++
	}

	c.logger.InfoContext(ctx, "census demographics refreshed", "updated", updated)
	return nil
}

// censusRow is one ZCTA row keyed by variable name.
type censusRow map[string]string

func (r censusRow) float(variable string) float64 {
	v, err := strconv.ParseFloat(r[variable], 64)
	if err != nil || v < 0 {
		// ACS uses large negative sentinels for suppressed estimates.
		return 0
	}
	return v
}

func (r censusRow) floatPtr(variable string) *float64 {
	v, err := strconv.ParseFloat(r[variable], 64)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}

func (r censusRow) intPtr(variable string) *int {
	v, err := strconv.Atoi(r[variable])
	if err != nil || v < 0 {
		return nil
	}
	return &v
}

// fetchACS queries the ACS 5-year dataset for the given variables across all
// ZCTAs in the configured state and returns rows keyed by zip.
//
// The Census API returns a JSON array of arrays: the first row is the column
// headers, subsequent rows are string values in header order.
func (c *CensusCollector) fetchACS(ctx context.Context, variables []string) (map[string]censusRow, error) {
	params := url.Values{}
	params.Set("get", "NAME,"+strings.Join(variables, ","))
	params.Set("for", "zip code tabulation area:*")
	params.Set("in", "state:"+c.state)
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}

	endpoint := fmt.Sprintf("%s/%s/acs/acs5?%s", c.baseURL, c.year, params.Encode())

	var raw [][]*string
	if err := c.client.GetJSON(ctx, endpoint, &raw); err != nil {
		return nil, err
	}
	if len(raw) < 2 {
		return nil, types.NewAppError(types.ErrCodeUpstreamSource, "census response contained no data rows", nil)
	}

	headers := raw[0]
	zipCol := -1
	for i, h := range headers {
		if h != nil && *h == "zip code tabulation area" {
			zipCol = i
		}
	}
	if zipCol < 0 {
		return nil, types.NewAppError(types.ErrCodeUpstreamSource, "census response missing ZCTA column", nil)
	}

	table := make(map[string]censusRow, len(raw)-1)
	for _, rawRow := range raw[1:] {
		if len(rawRow) != len(headers) || rawRow[zipCol] == nil {
			continue
		}
		row := make(censusRow, len(headers))
		for i, h := range headers {
			if h == nil || rawRow[i] == nil {
				continue
			}
			row[*h] = *rawRow[i]
		}
		table[*rawRow[zipCol]] = row
	}
	return table, nil
}
