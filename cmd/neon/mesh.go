package main

import (
	"io"
	"os"
	"strings"

	"github.com/FilipHusnjak/Neon-sub000/renderer"
	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
)

// meshBuilder deduplicates OBJ vertices by their position/normal/uv index triple.
type meshBuilder struct {
	decoder  *obj.Decoder
	unique   map[[3]int]uint32
	vertices []renderer.Vertex
	indices  []uint32
}

func (b *meshBuilder) addVertex(face obj.Face, faceIndex int) {
	key := [3]int{face.Vertices[faceIndex], -1, -1}
	if faceIndex < len(face.Normals) {
		key[1] = face.Normals[faceIndex]
	}
	if faceIndex < len(face.Uvs) {
		key[2] = face.Uvs[faceIndex]
	}

	index, ok := b.unique[key]
	if !ok {
		vertInd := key[0]
		vert := renderer.Vertex{Position: mgl32.Vec3{
			b.decoder.Vertices[vertInd*3],
			b.decoder.Vertices[vertInd*3+1],
			b.decoder.Vertices[vertInd*3+2],
		}}
		if n := key[1]; n >= 0 {
			vert.Normal = mgl32.Vec3{
				b.decoder.Normals[n*3],
				b.decoder.Normals[n*3+1],
				b.decoder.Normals[n*3+2],
			}
		}
		if uv := key[2]; uv >= 0 {
			vert.TexCoord = mgl32.Vec2{
				b.decoder.Uvs[uv*2],
				1.0 - b.decoder.Uvs[uv*2+1],
			}
		}

		index = uint32(len(b.vertices))
		b.vertices = append(b.vertices, vert)
		b.unique[key] = index
	}

	b.indices = append(b.indices, index)
}

// loadOBJ reads a Wavefront OBJ file, and its material library when one sits next to it.
func loadOBJ(path string) ([]renderer.Vertex, []uint32, error) {
	meshFile, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer meshFile.Close()

	var matReader io.Reader = strings.NewReader("")
	if matFile, err := os.Open(strings.TrimSuffix(path, ".obj") + ".mtl"); err == nil {
		defer matFile.Close()
		matReader = matFile
	}

	decoder, err := obj.DecodeReader(meshFile, matReader)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "decode %s", path)
	}

	b := &meshBuilder{decoder: decoder, unique: map[[3]int]uint32{}}
	for _, decodedObj := range decoder.Objects {
		for _, face := range decodedObj.Faces {
			// Fan-triangulate polygons.
			for i := 2; i < len(face.Vertices); i++ {
				b.addVertex(face, 0)
				b.addVertex(face, i-1)
				b.addVertex(face, i)
			}
		}
	}
	if len(b.indices) == 0 {
		return nil, nil, errors.Newf("%s has no faces", path)
	}
	return b.vertices, b.indices, nil
}

// cube is the mesh shown when no OBJ file is given.
func cube() ([]renderer.Vertex, []uint32) {
	faces := []struct {
		normal mgl32.Vec3
		u, v   mgl32.Vec3
	}{
		{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}},
		{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 1}},
	}
	corners := [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}

	var vertices []renderer.Vertex
	var indices []uint32
	for _, f := range faces {
		base := uint32(len(vertices))
		for _, c := range corners {
			pos := f.normal.Add(f.u.Mul(c[0])).Add(f.v.Mul(c[1])).Mul(0.5)
			vertices = append(vertices, renderer.Vertex{
				Position: pos,
				Normal:   f.normal,
				TexCoord: mgl32.Vec2{(c[0] + 1) / 2, (c[1] + 1) / 2},
			})
		}
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}
	return vertices, indices
}
