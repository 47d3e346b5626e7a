// Package cache provides a small generic LRU cache.
//
// The pipeline keys tone-curve lookup tables by their control points so that
// repeated renders with the same curve skip spline evaluation:
//
//	luts := cache.New[string, [256]uint8](64)
//	lut := luts.GetOrCreate(key, func() [256]uint8 { return curve.LUT(pts) })
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache
