package collectors

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ziprank/internal/types"
)

// amenityCategories maps OSM amenity tag values onto scoring categories.
var amenityCategories = map[string]string{
	"restaurant": "restaurants", "cafe": "restaurants", "bar": "restaurants",
	"pub": "restaurants", "fast_food": "restaurants", "food_court": "restaurants",

	"marketplace": "shopping", "mall": "shopping", "supermarket": "shopping",
	"convenience": "shopping", "department_store": "shopping", "retail": "shopping",

	"park": "recreation", "playground": "recreation", "sports_centre": "recreation",
	"fitness_centre": "recreation", "swimming_pool": "recreation", "recreation_ground": "recreation",

	"bus_station": "transit", "bus_stop": "transit", "subway_entrance": "transit",
	"train_station": "transit", "tram_stop": "transit", "bicycle_rental": "transit",

	"hospital": "healthcare", "clinic": "healthcare", "doctors": "healthcare",
	"dentist": "healthcare", "pharmacy": "healthcare",

	"school": "education", "kindergarten": "education", "college": "education",
	"university": "education", "library": "education",
}

// overpassResponse is the subset of the Overpass JSON envelope we read.
type overpassResponse struct {
	Elements []struct {
		Tags map[string]string `json:"tags"`
	} `json:"elements"`
}

// OSMCollector queries the OpenStreetMap Overpass API for amenities inside
// each zip's postal-code area, scores the counts per category against the
// regional distribution, and emits the category average as one
// neighborhoodRating observation per zip.
type OSMCollector struct {
	client      *Client
	zips        ZipLister
	overpassURL string
	logger      *slog.Logger
}

// NewOSMCollector creates an OSMCollector.
func NewOSMCollector(client *Client, zips ZipLister, overpassURL string, logger *slog.Logger) *OSMCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &OSMCollector{
		client:      client,
		zips:        zips,
		overpassURL: overpassURL,
		logger:      logger,
	}
}

// Name implements scheduler.Collector.
func (c *OSMCollector) Name() string { return "osm_data" }

// Spec implements scheduler.Collector.
func (c *OSMCollector) Spec() types.DataSource {
	return types.DataSource{
		Name:            c.Name(),
		UpdateFrequency: 60 * 24 * time.Hour,
		URL:             "https://www.openstreetmap.org/",
		Notes:           "OpenStreetMap amenity data",
	}
}

// Collect queries amenities per zip. Zips with no mapped postal-code area are
// skipped; a hard Overpass failure aborts the run.
func (c *OSMCollector) Collect(ctx context.Context) ([]types.Observation, error) {
	tracked, err := c.zips.ListZips(ctx)
	if err != nil {
		return nil, err
	}

	var observations []types.Observation
	empty := 0
	for _, zip := range tracked {
		counts, err := c.countAmenities(ctx, zip)
		if err != nil {
			return nil, err
		}
		if len(counts) == 0 {
			empty++
			continue
		}

		observations = append(observations, types.Observation{
			Zip:        zip,
			Kind:       types.KindNeighborhoodRating,
			Value:      neighborhoodScore(counts),
			Confidence: 0.75,
			Source:     "OpenStreetMap",
			SourceURL:  "https://www.openstreetmap.org/",
		})
	}

	c.logger.InfoContext(ctx, "osm amenity data collected",
		"zips", len(tracked),
		"empty_areas", empty,
		"observations", len(observations),
	)
	return observations, nil
}

// countAmenities runs one Overpass query for the zip's postal-code area and
// tallies amenities per scoring category.
func (c *OSMCollector) countAmenities(ctx context.Context, zip string) (map[string]int, error) {
	query := fmt.Sprintf(`[out:json][timeout:300];
area["postal_code"="%s"]->.ziparea;
(
  node["amenity"](area.ziparea);
  way["amenity"](area.ziparea);
  relation["amenity"](area.ziparea);
);
out center;`, zip)

	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.overpassURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build overpass request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamSource,
			fmt.Sprintf("overpass returned status %d", resp.StatusCode),
			nil,
			map[string]any{"zip": zip, "status": resp.StatusCode},
		)
	}

	var parsed overpassResponse
	if err := decodeJSON(resp, &parsed); err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, element := range parsed.Elements {
		amenity, ok := element.Tags["amenity"]
		if !ok {
			continue
		}
		if category, ok := amenityCategories[amenity]; ok {
			counts[category]++
		}
	}
	return counts, nil
}

// neighborhoodScore folds per-category amenity counts into one composite
// score: each category is scored against its regional thresholds, then the
// categories are averaged. Categories with no amenities still count, so a zip
// with only restaurants does not score like a complete neighborhood.
func neighborhoodScore(counts map[string]int) float64 {
	var sum float64
	var n int
	for category := range amenityThresholds {
		sum += AmenityScore(category, counts[category])
		n++
	}
	if n == 0 {
		return 0
	}
	// One decimal, matching the precision of the other normalized ratings.
	return math.Round(sum/float64(n)*10) / 10
}
