// Package resource holds the backend-neutral pieces of GPU resource
// handling: row-stride layout for buffer copies, RGB8 ↔ packed u32 pixel
// conversion, and a size-classed buffer pool with a byte budget.
//
// Nothing here touches a device. The gpu package plugs hal buffers into
// Pool and uses RowLayout to plan readback copies.
package resource
