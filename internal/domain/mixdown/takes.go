package mixdown

import (
	"slices"
	"sort"
	"time"

	"github.com/okian/chorus/internal/domain/model"
)

// DefaultTakeWindow clusters artifacts captured this close to a take's
// first artifact into the same take.
const DefaultTakeWindow = 3 * time.Second

// GroupTakes clusters artifacts by capture time. A take is anchored on its
// earliest artifact and its ID is that capture time. Takes are returned
// newest first.
func GroupTakes(artifacts []model.CapturedArtifact, window time.Duration) []model.Take {
	if window <= 0 {
		window = DefaultTakeWindow
	}
	sorted := slices.Clone(artifacts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CapturedAtMs < sorted[j].CapturedAtMs })

	var takes []model.Take
	for _, a := range sorted {
		n := len(takes)
		if n > 0 && a.CapturedAtMs-takes[n-1].CapturedAtMs < window.Milliseconds() {
			takes[n-1].Artifacts = append(takes[n-1].Artifacts, a)
			if !slices.Contains(takes[n-1].Parts, a.OwnerPartID) {
				takes[n-1].Parts = append(takes[n-1].Parts, a.OwnerPartID)
			}
			continue
		}
		takes = append(takes, model.Take{
			ID:           a.CapturedAtMs,
			CapturedAtMs: a.CapturedAtMs,
			Artifacts:    []model.CapturedArtifact{a},
			Parts:        []string{a.OwnerPartID},
		})
	}
	slices.Reverse(takes)
	return takes
}

// VersionAt returns the newest backing track uploaded at or before
// capturedAtMs, or nil when none was.
func VersionAt(versions []model.BackingTrackVersion, capturedAtMs int64) *model.BackingTrackVersion {
	var best *model.BackingTrackVersion
	for i := range versions {
		v := versions[i]
		if v.UploadedAtMs > capturedAtMs {
			continue
		}
		if best == nil || v.UploadedAtMs > best.UploadedAtMs {
			best = &v
		}
	}
	return best
}

// Latest returns the newest backing track version, or nil.
func Latest(versions []model.BackingTrackVersion) *model.BackingTrackVersion {
	var best *model.BackingTrackVersion
	for i := range versions {
		v := versions[i]
		if best == nil || v.UploadedAtMs > best.UploadedAtMs {
			best = &v
		}
	}
	return best
}
