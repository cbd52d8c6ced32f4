// Package seeds derives tracking seed volumes from region-of-interest
// parcellations and a tissue mask.
//
// A seed region is the overlap between a labelled ROI volume and the mask:
// the element-wise product of the two ("border" volume). Per-region mode
// splits the border into one binary volume per region label, the unit the
// fan-out tracking stages map over; merged mode keeps the border as a
// single label-valued volume for backends that seed from one image.
package seeds

import (
	"context"
	"sort"

	"github.com/joanrue/connectomemapper3/internal/ctxlog"
	"github.com/joanrue/connectomemapper3/internal/volume"
)

// PerRegion intersects each region volume with the tissue mask and emits one
// strictly binary seed volume per distinct non-zero label, in ascending
// label order within each region volume. Output order is deterministic:
// region volumes in input order, labels ascending, so fallback seed naming
// is stable across runs.
//
// A label with no overlap against the mask still yields an all-zero seed
// volume; tracking on an empty seed is a no-op downstream, not an error
// here. A region volume whose grid differs from the mask's is a
// *volume.GridMismatchError.
func PerRegion(ctx context.Context, regions []*volume.Volume, tissueMask *volume.Volume) ([]volume.SeedVolume, error) {
	logger := ctxlog.FromContext(ctx)

	var out []volume.SeedVolume
	for _, region := range regions {
		border, err := intersect(region, tissueMask)
		if err != nil {
			return nil, err
		}
		labels := distinctLabels(region)
		logger.Debug("computed seed border volume",
			"region", region.ID, "labels", len(labels))

		for _, label := range labels {
			seed := volume.New(region.ID, region.Grid)
			for i, v := range border.Data {
				if int(v) == label {
					seed.Data[i] = 1
				}
			}
			out = append(out, volume.SeedVolume{Volume: seed, Region: region.ID, Label: label})
		}
	}
	return out, nil
}

// Merged intersects each region volume with the tissue mask and accumulates
// the borders into a single unthresholded seed volume that keeps per-label
// values. Later region volumes overwrite earlier ones where they overlap,
// matching input order.
func Merged(ctx context.Context, regions []*volume.Volume, tissueMask *volume.Volume) (volume.SeedVolume, error) {
	logger := ctxlog.FromContext(ctx)

	merged := volume.New("merged", tissueMask.Grid)
	name := "merged"
	for _, region := range regions {
		border, err := intersect(region, tissueMask)
		if err != nil {
			return volume.SeedVolume{}, err
		}
		for i, v := range border.Data {
			if v != 0 {
				merged.Data[i] = v
			}
		}
		name = region.ID
	}
	merged.ID = name
	logger.Debug("merged seed volume computed", "regions", len(regions))
	return volume.SeedVolume{Volume: merged, Region: name}, nil
}

// intersect returns the element-wise product of a region volume and the
// tissue mask.
func intersect(region, tissueMask *volume.Volume) (*volume.Volume, error) {
	if !region.Grid.SameLattice(tissueMask.Grid) {
		return nil, &volume.GridMismatchError{
			RegionID: region.ID,
			Region:   region.Grid,
			Mask:     tissueMask.Grid,
		}
	}
	border := volume.New(region.ID, region.Grid)
	for i := range region.Data {
		border.Data[i] = region.Data[i] * tissueMask.Data[i]
	}
	return border, nil
}

// distinctLabels returns the sorted distinct non-zero integer labels present
// in a region volume.
func distinctLabels(region *volume.Volume) []int {
	seen := make(map[int]struct{})
	for _, v := range region.Data {
		if v != 0 {
			seen[int(v)] = struct{}{}
		}
	}
	labels := make([]int, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Ints(labels)
	return labels
}
