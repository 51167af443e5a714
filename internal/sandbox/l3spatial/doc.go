// Package l3spatial heals sensor shadows in the filtered depth frame.
//
// Each pass replaces every pixel by the mean of the non-zero samples in its
// 3x3 neighbourhood. Pixels with data are smoothed and never turn into holes;
// holes next to data take the neighbour mean; holes surrounded by holes stay
// empty and may heal on a later pass as their neighbours fill in.
package l3spatial
