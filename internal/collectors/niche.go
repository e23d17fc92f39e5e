package collectors

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ziprank/internal/types"
)

// ZipLister is the minimal zipcodes read used by per-zip collectors.
type ZipLister interface {
	ListZips(ctx context.Context) ([]string, error)
}

// nicheProfile is one zip's ratings from the Niche data feed. Grades are
// letter grades ("A+" .. "F-") keyed by normalized category name.
type nicheProfile struct {
	OverallGrade string            `json:"overall_grade"`
	Grades       map[string]string `json:"grades"`
}

// NicheCollector fetches neighborhood letter grades per zip from the Niche
// data feed and converts them onto the numeric scale. One zip yields up to
// three observations: the overall niche rating, public schools, and crime &
// safety.
type NicheCollector struct {
	client  *Client
	zips    ZipLister
	baseURL string
	logger  *slog.Logger
}

// NewNicheCollector creates a NicheCollector.
func NewNicheCollector(client *Client, zips ZipLister, baseURL string, logger *slog.Logger) *NicheCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &NicheCollector{
		client:  client,
		zips:    zips,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// Name implements scheduler.Collector.
func (c *NicheCollector) Name() string { return "niche_ratings" }

// Spec implements scheduler.Collector.
func (c *NicheCollector) Spec() types.DataSource {
	return types.DataSource{
		Name:            c.Name(),
		UpdateFrequency: 30 * 24 * time.Hour,
		URL:             "https://www.niche.com/",
		Notes:           "Niche.com neighborhood ratings",
	}
}

// Collect fetches each tracked zip's profile. Zips with no Niche profile are
// skipped; a hard provider failure aborts the run so the source stays due for
// retry.
func (c *NicheCollector) Collect(ctx context.Context) ([]types.Observation, error) {
	tracked, err := c.zips.ListZips(ctx)
	if err != nil {
		return nil, err
	}

	var observations []types.Observation
	missing := 0
	for _, zip := range tracked {
		profile, sourceURL, err := c.fetchProfile(ctx, zip)
		if err != nil {
			return nil, err
		}
		if profile == nil {
			missing++
			continue
		}
		observations = append(observations, c.profileObservations(zip, sourceURL, profile)...)
	}

	c.logger.InfoContext(ctx, "niche ratings collected",
		"zips", len(tracked),
		"missing_profiles", missing,
		"observations", len(observations),
	)
	return observations, nil
}

// fetchProfile retrieves one zip's profile. A 404 means Niche has no page for
// the zip and returns (nil, nil).
func (c *NicheCollector) fetchProfile(ctx context.Context, zip string) (*nicheProfile, string, error) {
	sourceURL := fmt.Sprintf("%s/places-to-live/z/%s/", c.baseURL, zip)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build provider request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, "", nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, "", types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamSource,
			fmt.Sprintf("provider returned status %d", resp.StatusCode),
			nil,
			map[string]any{"zip": zip, "status": resp.StatusCode},
		)
	}

	var profile nicheProfile
	if err := decodeJSON(resp, &profile); err != nil {
		return nil, "", err
	}
	return &profile, sourceURL, nil
}

// profileObservations maps a profile's letter grades onto observations.
func (c *NicheCollector) profileObservations(zip, sourceURL string, profile *nicheProfile) []types.Observation {
	var observations []types.Observation

	if profile.OverallGrade != "" {
		observations = append(observations, types.Observation{
			Zip:        zip,
			Kind:       types.KindNicheRating,
			Value:      NicheGradeValue(profile.OverallGrade),
			Confidence: 0.85,
			Source:     "Niche.com",
			SourceURL:  sourceURL,
		})
	}

	if grade, ok := profile.Grades["publicschools"]; ok {
		observations = append(observations, types.Observation{
			Zip:        zip,
			Kind:       types.KindSchoolRating,
			Value:      NicheGradeValue(grade),
			Confidence: 0.8,
			Source:     "Niche.com",
			SourceURL:  sourceURL,
		})
	}

	// Niche's crime & safety grade already runs safest-high, matching the
	// crimeRate scale convention.
	if grade, ok := profile.Grades["crimesafety"]; ok {
		observations = append(observations, types.Observation{
			Zip:        zip,
			Kind:       types.KindCrimeRate,
			Value:      NicheGradeValue(grade),
			Confidence: 0.75,
			Source:     "Niche.com",
			SourceURL:  sourceURL,
		})
	}

	return observations
}
