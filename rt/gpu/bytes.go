package gpu

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Uniform and vertex layouts shared with the WGSL programs.
const (
	transformsSize = 3 * 64
	surfaceSize    = 4 * 16
	quadParamsSize = 16
	vertexStride   = 9 * 4
)

func mat4ToBytes(m mgl32.Mat4) []byte {
	buf := make([]byte, 64)
	for i, v := range m {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// vec3ToBytesPadded writes v as a vec4 with w = pad.
func vec3ToBytesPadded(v mgl32.Vec3, pad float32) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(v[0]))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(v[1]))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(v[2]))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(pad))
	return buf
}

func vec4ToBytes(v mgl32.Vec4) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(v[0]))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(v[1]))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(v[2]))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(v[3]))
	return buf
}

func uint32ToBytesPadded(v uint32) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], v)
	return buf
}

// transformsBytes lays out the Transforms struct: model_view, projection,
// normal_matrix.
func transformsBytes(modelView, projection mgl32.Mat4) []byte {
	normal := modelView.Mat3().Inv().Transpose().Mat4()
	out := make([]byte, 0, transformsSize)
	out = append(out, mat4ToBytes(modelView)...)
	out = append(out, mat4ToBytes(projection)...)
	out = append(out, mat4ToBytes(normal)...)
	return out
}

// surfaceBytes lays out the Surface struct of the color program.
func surfaceBytes(diffuse, specular, emissive mgl32.Vec3, shininess, wrapAround, additiveSpecular float32) []byte {
	out := make([]byte, 0, surfaceSize)
	out = append(out, vec3ToBytesPadded(diffuse, 0)...)
	out = append(out, vec3ToBytesPadded(specular, 0)...)
	out = append(out, vec3ToBytesPadded(emissive, 0)...)
	out = append(out, vec4ToBytes(mgl32.Vec4{shininess, wrapAround, additiveSpecular, 0})...)
	return out
}

// vertexBytes interleaves position, normal and color. Missing normals and
// colors are written as zero and white.
func vertexBytes(positions, normals, colors []mgl32.Vec3) []byte {
	buf := make([]byte, len(positions)*vertexStride)
	put := func(off int, v mgl32.Vec3) {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v[0]))
		binary.LittleEndian.PutUint32(buf[off+4:], math.Float32bits(v[1]))
		binary.LittleEndian.PutUint32(buf[off+8:], math.Float32bits(v[2]))
	}
	for i, p := range positions {
		base := i * vertexStride
		put(base, p)
		if i < len(normals) {
			put(base+12, normals[i])
		}
		c := mgl32.Vec3{1, 1, 1}
		if i < len(colors) {
			c = colors[i]
		}
		put(base+24, c)
	}
	return buf
}

func indexBytes(indices []uint32) []byte {
	buf := make([]byte, len(indices)*4)
	for i, v := range indices {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	return buf
}
