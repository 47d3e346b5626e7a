package kernel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// minBandRows is the smallest number of rows handed to one goroutine.
const minBandRows = 16

// forEachBand splits [0,height) into horizontal bands and runs fn on each
// band concurrently. Bands never overlap, so fn may write its rows of a
// shared destination without locking.
func forEachBand(height int, fn func(y0, y1 int)) {
	workers := runtime.GOMAXPROCS(0)
	bands := height / minBandRows
	if bands > workers {
		bands = workers
	}
	if bands <= 1 {
		fn(0, height)
		return
	}

	step := (height + bands - 1) / bands
	var g errgroup.Group
	g.SetLimit(workers)
	for y0 := 0; y0 < height; y0 += step {
		y1 := min(y0+step, height)
		g.Go(func() error {
			fn(y0, y1)
			return nil
		})
	}
	_ = g.Wait()
}
