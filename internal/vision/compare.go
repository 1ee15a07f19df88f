package vision

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"
)

// MatchThreshold is the similarity above which two faces are considered the
// same person.
const MatchThreshold = 0.8

// Comparison is the outcome of comparing two images.
type Comparison struct {
	Similarity float64  `json:"similarity"`
	Match      bool     `json:"isMatch"`
	Threshold  float64  `json:"threshold"`
	Face1      Analysis `json:"face1"`
	Face2      Analysis `json:"face2"`
}

// Compare analyzes both images concurrently and scores their similarity.
func (c *Client) Compare(ctx context.Context, a, b []byte) Comparison {
	var fa, fb Analysis
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { fa = c.Analyze(gctx, a); return nil })
	g.Go(func() error { fb = c.Analyze(gctx, b); return nil })
	_ = g.Wait()

	sim := Similarity(fa, fb)
	return Comparison{
		Similarity: sim,
		Match:      sim > MatchThreshold,
		Threshold:  MatchThreshold,
		Face1:      fa,
		Face2:      fb,
	}
}

// Similarity scores two detections by bounding-box geometry: 0.6 for
// relative area and 0.4 for centre proximity. Boxes that are not
// quadrilaterals score 0.
func Similarity(a, b Analysis) float64 {
	if len(a.Bounds) != 4 || len(b.Bounds) != 4 {
		return 0
	}
	area1, area2 := area(a.Bounds), area(b.Bounds)
	maxArea := math.Max(area1, area2)
	if maxArea == 0 {
		return 0
	}
	areaSim := math.Min(area1, area2) / maxArea

	c1, c2 := center(a.Bounds), center(b.Bounds)
	dist := math.Hypot(c1.X-c2.X, c1.Y-c2.Y)
	posSim := math.Max(0, 1-dist/(maxArea/2))

	return areaSim*0.6 + posSim*0.4
}

func area(v []Point) float64 {
	return math.Abs(v[1].X-v[0].X) * math.Abs(v[2].Y-v[1].Y)
}

func center(v []Point) Point {
	var p Point
	for _, q := range v {
		p.X += q.X
		p.Y += q.Y
	}
	n := float64(len(v))
	return Point{X: p.X / n, Y: p.Y / n}
}
