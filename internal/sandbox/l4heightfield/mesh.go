package l4heightfield

// GridIndices returns the triangle list for an R×R grid, two triangles per
// cell.
func GridIndices(r int) []uint32 {
	if r < 2 {
		return nil
	}
	idx := make([]uint32, 0, (r-1)*(r-1)*6)
	for z := 0; z < r-1; z++ {
		for x := 0; x < r-1; x++ {
			v0 := uint32(z*r + x)
			v1 := v0 + 1
			v2 := uint32((z+1)*r + x)
			v3 := v2 + 1
			idx = append(idx, v0, v2, v1, v1, v2, v3)
		}
	}
	return idx
}

// WallVertex is a skirt vertex. Skirt quads do not share vertices so each
// edge keeps a flat normal.
type WallVertex struct {
	Position [3]float32
	Normal   [3]float32
	UV       [2]float32
	Height   [2]float32
}

// Walls is the skirt mesh around the terrain.
type Walls struct {
	Vertices []WallVertex
	Indices  []uint32
}

var (
	normalBack    = [3]float32{0, 0, -1}
	normalForward = [3]float32{0, 0, 1}
	normalLeft    = [3]float32{-1, 0, 0}
	normalRight   = [3]float32{1, 0, 0}
)

// BuildWalls builds the four edge skirts for an R×R vertex grid, dropping
// each edge down to y=0.
func BuildWalls(verts []Vertex, r int) Walls {
	if r < 2 || len(verts) < r*r {
		return Walls{}
	}
	quads := (r - 1) * 4
	w := Walls{
		Vertices: make([]WallVertex, 0, quads*4),
		Indices:  make([]uint32, 0, quads*6),
	}
	at := func(x, z int) Vertex { return verts[z*r+x] }
	last := r - 1

	for x := 0; x < last; x++ {
		w.addQuad(at(x, 0), at(x+1, 0), normalBack, false)
	}
	for x := 0; x < last; x++ {
		w.addQuad(at(x, last), at(x+1, last), normalForward, true)
	}
	for z := 0; z < last; z++ {
		w.addQuad(at(0, z), at(0, z+1), normalLeft, true)
	}
	for z := 0; z < last; z++ {
		w.addQuad(at(last, z), at(last, z+1), normalRight, false)
	}
	return w
}

// addQuad appends one skirt quad between two adjacent edge vertices. flip
// selects the winding for edges whose outward side faces +Z or -X.
func (w *Walls) addQuad(a, b Vertex, normal [3]float32, flip bool) {
	base := uint32(len(w.Vertices))
	w.Vertices = append(w.Vertices,
		WallVertex{Position: [3]float32{a.Position[0], 0, a.Position[2]}, Normal: normal, UV: [2]float32{0, 0}},
		WallVertex{Position: [3]float32{b.Position[0], 0, b.Position[2]}, Normal: normal, UV: [2]float32{1, 0}},
		WallVertex{Position: a.Position, Normal: normal, UV: [2]float32{0, 1}, Height: [2]float32{a.Height[0], 0}},
		WallVertex{Position: b.Position, Normal: normal, UV: [2]float32{1, 1}, Height: [2]float32{b.Height[0], 0}},
	)
	if flip {
		w.Indices = append(w.Indices, base, base+1, base+2, base+2, base+1, base+3)
	} else {
		w.Indices = append(w.Indices, base, base+2, base+1, base+1, base+2, base+3)
	}
}
