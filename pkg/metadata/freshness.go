package metadata

import (
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-dq/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-dq/pkg/models"
)

// freshnessRank orders statuses best to worst.
var freshnessRank = map[models.FreshnessStatus]int{
	models.FreshnessFresh:   0,
	models.FreshnessRecent:  1,
	models.FreshnessStale:   2,
	models.FreshnessUnknown: 3,
	models.FreshnessError:   4,
}

// FreshnessThresholds classify an age: younger than Fresh is fresh, younger
// than Recent is recent, anything older is stale.
type FreshnessThresholds struct {
	Fresh  time.Duration
	Recent time.Duration
}

// DefaultFreshnessThresholds returns 5 minute / 1 hour windows.
func DefaultFreshnessThresholds() FreshnessThresholds {
	return FreshnessThresholds{Fresh: 5 * time.Minute, Recent: time.Hour}
}

// NormalizeStatus maps a reported status string onto a known status.
// Unrecognised values are unknown.
func NormalizeStatus(s string) models.FreshnessStatus {
	status := models.FreshnessStatus(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := freshnessRank[status]; ok {
		return status
	}
	return models.FreshnessUnknown
}

// ResolveFreshness returns the worst case across descriptors: the worst
// status and the largest age. With no descriptors the result is unknown.
func ResolveFreshness(items ...models.Freshness) models.Freshness {
	if len(items) == 0 {
		return models.Freshness{Status: models.FreshnessUnknown}
	}

	resolved := models.Freshness{Status: models.FreshnessFresh}
	for _, f := range items {
		status := NormalizeStatus(string(f.Status))
		if freshnessRank[status] > freshnessRank[resolved.Status] {
			resolved.Status = status
		}
		if f.AgeSeconds > resolved.AgeSeconds {
			resolved.AgeSeconds = f.AgeSeconds
		}
	}
	return resolved
}

// FreshnessFromAge classifies an age against thresholds.
func FreshnessFromAge(age time.Duration, th FreshnessThresholds) models.Freshness {
	if age < 0 {
		age = 0
	}
	f := models.Freshness{AgeSeconds: int64(age / time.Second)}
	switch {
	case age < th.Fresh:
		f.Status = models.FreshnessFresh
	case age < th.Recent:
		f.Status = models.FreshnessRecent
	default:
		f.Status = models.FreshnessStale
	}
	return f
}

// ParseFreshness reads the freshness a response body reports about itself.
// It looks for a freshness object at the root or under metadata, then for a
// collection timestamp to derive one from. Bodies with neither are unknown.
func ParseFreshness(body any, now time.Time, th FreshnessThresholds) models.Freshness {
	for _, path := range [][]string{{"freshness"}, {"metadata", "freshness"}} {
		v, ok := lookup(body, path)
		if !ok {
			continue
		}
		obj, ok := asObject(v)
		if !ok {
			continue
		}
		age, hasAge := int64Field(obj, "age_seconds", "age")
		if status := stringField(obj, "status"); status != "" {
			return models.Freshness{Status: NormalizeStatus(status), AgeSeconds: max(age, 0)}
		}
		if hasAge {
			return FreshnessFromAge(time.Duration(age)*time.Second, th)
		}
	}

	for _, path := range [][]string{{"collected_at"}, {"cached_at"}, {"metadata", "collected_at"}, {"metadata", "cached_at"}} {
		v, ok := lookup(body, path)
		if !ok {
			continue
		}
		if ts, ok := jsonutil.FlexibleTime(v); ok {
			return FreshnessFromAge(now.Sub(ts), th)
		}
	}

	return models.Freshness{Status: models.FreshnessUnknown}
}
