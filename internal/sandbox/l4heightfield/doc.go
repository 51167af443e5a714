// Package l4heightfield turns a filtered depth frame into the terrain mesh.
//
// Each vertex of a regular R×R grid is mapped through the calibration quad
// into sensor space, sampled with a hole-aware bilinear lookup and converted
// from millimetres to a world height. Optional skirts close the mesh down to
// the table plane.
package l4heightfield
