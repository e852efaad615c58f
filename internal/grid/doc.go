// Package grid holds the geometry and palette shared by agents and the
// controller: 1-indexed grid coordinates, glyph cells, the relative sides a
// turtle can sense, compass headings, and the sixteen palette colours.
//
// Grid x grows to the viewer's right and y grows downward, so the agent at
// (1,1) is the top-left corner of the display.
package grid
