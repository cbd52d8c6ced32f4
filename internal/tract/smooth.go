package tract

import (
	"fmt"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/spatial/r3"
)

// Smooth resamples every streamline at a fixed step length along a natural
// cubic spline fitted to each coordinate against arc length. This is the
// spline-filter pass the voxel-direction backend runs between raw tracking
// and length filtering: it evens out the jagged per-voxel steps without
// moving the endpoints.
//
// Streamlines with fewer than three distinct points are passed through
// unchanged; there is nothing to smooth.
func Smooth(set Set, stepLength float64) (Set, error) {
	if stepLength <= 0 {
		return Set{}, fmt.Errorf("smooth: step length must be > 0, got %g", stepLength)
	}
	if len(set.Streamlines) == 0 {
		return Set{}, &EmptyInputError{Op: "smooth"}
	}

	out := Set{
		Space:       set.Space,
		Grid:        set.Grid,
		Streamlines: make([]Streamline, len(set.Streamlines)),
	}
	for i, sl := range set.Streamlines {
		smoothed, err := smoothOne(sl, stepLength)
		if err != nil {
			return Set{}, fmt.Errorf("smooth: streamline %d: %w", i, err)
		}
		out.Streamlines[i] = smoothed
	}
	return out, nil
}

func smoothOne(sl Streamline, stepLength float64) (Streamline, error) {
	// Drop zero-length segments so the arc-length parameterization stays
	// strictly increasing, which the spline fit requires.
	points := make([]r3.Vec, 0, len(sl.Points))
	for _, p := range sl.Points {
		if n := len(points); n > 0 && r3.Norm(r3.Sub(p, points[n-1])) == 0 {
			continue
		}
		points = append(points, p)
	}
	if len(points) < 3 {
		return Streamline{Points: points}, nil
	}

	arc := make([]float64, len(points))
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	zs := make([]float64, len(points))
	for i, p := range points {
		if i > 0 {
			arc[i] = arc[i-1] + r3.Norm(r3.Sub(p, points[i-1]))
		}
		xs[i], ys[i], zs[i] = p.X, p.Y, p.Z
	}

	var cx, cy, cz interp.NaturalCubic
	if err := cx.Fit(arc, xs); err != nil {
		return Streamline{}, err
	}
	if err := cy.Fit(arc, ys); err != nil {
		return Streamline{}, err
	}
	if err := cz.Fit(arc, zs); err != nil {
		return Streamline{}, err
	}

	total := arc[len(arc)-1]
	resampled := []r3.Vec{points[0]}
	for s := stepLength; s < total; s += stepLength {
		resampled = append(resampled, r3.Vec{X: cx.Predict(s), Y: cy.Predict(s), Z: cz.Predict(s)})
	}
	resampled = append(resampled, points[len(points)-1])
	return Streamline{Points: resampled}, nil
}
