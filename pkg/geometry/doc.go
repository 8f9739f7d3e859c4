// Package geometry holds the triangle buffers the wireframe pipeline works on
// and the pure functions that transform them: applying a 4x4 transform,
// merging several buffers into one, and extracting feature edges.
//
// Buffers are flat arrays in the layout renderers upload directly:
// three floats per vertex position, three floats per vertex normal and three
// indices per triangle. A Buffer may have device resources attached through
// OnRelease; Release frees them exactly once while the vertex data stays
// readable for anyone still holding the buffer.
package geometry
