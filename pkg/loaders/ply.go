package loaders

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/df07/go-pbrt-scenegraph/pkg/core"
	"github.com/df07/go-pbrt-scenegraph/pkg/scene"
)

// PLYHeader is the parsed header of a PLY file
type PLYHeader struct {
	Format   string // "ascii", "binary_little_endian" or "binary_big_endian"
	Version  string
	Elements []PLYElement
}

// PLYElement is one "element" block of the header
type PLYElement struct {
	Name  string
	Count int
	Props []PLYProperty
}

// PLYProperty represents a property definition in the PLY header
type PLYProperty struct {
	Name     string
	Type     string // scalar type, or the element type of a list
	IsList   bool
	ListType string // type of the list count
}

// Element returns the named element
func (h *PLYHeader) Element(name string) (PLYElement, bool) {
	for _, e := range h.Elements {
		if e.Name == name {
			return e, true
		}
	}
	return PLYElement{}, false
}

// LoadPLY reads a PLY mesh. Polygons with more than three vertices are
// split into triangle fans.
func LoadPLY(filename string) (*scene.MeshData, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open PLY file")
	}
	defer file.Close()

	data, err := ReadPLY(bufio.NewReaderSize(file, 1<<20))
	if err != nil {
		return nil, errors.Wrapf(err, "%s", filename)
	}
	return data, nil
}

// ReadPLY reads a PLY mesh from r
func ReadPLY(r *bufio.Reader) (*scene.MeshData, error) {
	header, err := parsePLYHeader(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse PLY header")
	}

	var values plyValueReader
	switch header.Format {
	case "ascii":
		values = &plyASCIIReader{r: r}
	case "binary_little_endian":
		values = &plyBinaryReader{r: r, order: binary.LittleEndian}
	case "binary_big_endian":
		values = &plyBinaryReader{r: r, order: binary.BigEndian}
	default:
		return nil, errors.Errorf("unsupported PLY format: %s", header.Format)
	}

	mesh := &scene.MeshData{}
	for _, elem := range header.Elements {
		switch elem.Name {
		case "vertex":
			err = readPLYVertices(values, elem, mesh)
		case "face":
			err = readPLYFaces(values, elem, mesh)
		default:
			err = skipPLYElement(values, elem)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "element %s", elem.Name)
		}
	}

	for _, idx := range mesh.Indices {
		if idx < 0 || idx >= len(mesh.Positions) {
			return nil, errors.Errorf("face index %d out of range (%d vertices)", idx, len(mesh.Positions))
		}
	}
	return mesh, nil
}

func parsePLYHeader(r *bufio.Reader) (*PLYHeader, error) {
	header := &PLYHeader{}
	first := true
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, errors.Wrap(err, "unexpected end of header")
		}
		line = strings.TrimSpace(line)
		if first {
			if line != "ply" {
				return nil, errors.New("missing ply magic number")
			}
			first = false
			continue
		}
		if line == "end_header" {
			return header, nil
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		switch parts[0] {
		case "format":
			if len(parts) < 3 {
				return nil, errors.Errorf("invalid format line: %q", line)
			}
			header.Format = parts[1]
			header.Version = parts[2]
		case "comment", "obj_info":
		case "element":
			if len(parts) < 3 {
				return nil, errors.Errorf("invalid element line: %q", line)
			}
			count, err := strconv.Atoi(parts[2])
			if err != nil || count < 0 {
				return nil, errors.Errorf("invalid element count: %s", parts[2])
			}
			header.Elements = append(header.Elements, PLYElement{Name: parts[1], Count: count})
		case "property":
			if len(header.Elements) == 0 {
				return nil, errors.New("property declared before any element")
			}
			prop, err := parsePLYProperty(parts[1:])
			if err != nil {
				return nil, err
			}
			elem := &header.Elements[len(header.Elements)-1]
			elem.Props = append(elem.Props, prop)
		default:
			return nil, errors.Errorf("unknown header line: %q", line)
		}
	}
}

// parsePLYProperty parses a property line from the PLY header
func parsePLYProperty(parts []string) (PLYProperty, error) {
	if len(parts) >= 1 && parts[0] == "list" {
		if len(parts) < 4 {
			return PLYProperty{}, errors.New("invalid list property definition")
		}
		return PLYProperty{IsList: true, ListType: parts[1], Type: parts[2], Name: parts[3]}, nil
	}
	if len(parts) < 2 {
		return PLYProperty{}, errors.New("invalid property definition")
	}
	return PLYProperty{Type: parts[0], Name: parts[1]}, nil
}

func readPLYVertices(values plyValueReader, elem PLYElement, mesh *scene.MeshData) error {
	index := func(names ...string) int {
		for i, p := range elem.Props {
			for _, n := range names {
				if p.Name == n {
					return i
				}
			}
		}
		return -1
	}
	ix, iy, iz := index("x"), index("y"), index("z")
	if ix < 0 || iy < 0 || iz < 0 {
		return errors.New("vertex element lacks x, y or z")
	}
	inx, iny, inz := index("nx"), index("ny"), index("nz")
	iu, iv := index("u", "s", "texture_u"), index("v", "t", "texture_v")
	hasNormals := inx >= 0 && iny >= 0 && inz >= 0
	hasUVs := iu >= 0 && iv >= 0

	mesh.Positions = make([]core.Vec3, 0, elem.Count)
	if hasNormals {
		mesh.Normals = make([]core.Vec3, 0, elem.Count)
	}
	if hasUVs {
		mesh.UVs = make([]core.Vec2, 0, elem.Count)
	}

	row := make([]float64, len(elem.Props))
	for i := 0; i < elem.Count; i++ {
		for j, prop := range elem.Props {
			if prop.IsList {
				if _, err := readPLYList(values, prop); err != nil {
					return err
				}
				continue
			}
			v, err := values.scalar(prop.Type)
			if err != nil {
				return errors.Wrapf(err, "vertex %d", i)
			}
			row[j] = v
		}
		mesh.Positions = append(mesh.Positions, core.NewVec3(row[ix], row[iy], row[iz]))
		if hasNormals {
			mesh.Normals = append(mesh.Normals, core.NewVec3(row[inx], row[iny], row[inz]))
		}
		if hasUVs {
			mesh.UVs = append(mesh.UVs, core.NewVec2(row[iu], row[iv]))
		}
	}
	return nil
}

func readPLYFaces(values plyValueReader, elem PLYElement, mesh *scene.MeshData) error {
	mesh.Indices = make([]int, 0, elem.Count*3)
	for i := 0; i < elem.Count; i++ {
		for _, prop := range elem.Props {
			if !prop.IsList {
				if _, err := values.scalar(prop.Type); err != nil {
					return err
				}
				continue
			}
			list, err := readPLYList(values, prop)
			if err != nil {
				return errors.Wrapf(err, "face %d", i)
			}
			if prop.Name != "vertex_indices" && prop.Name != "vertex_index" {
				continue
			}
			if len(list) < 3 {
				return errors.Errorf("face %d has %d vertices", i, len(list))
			}
			for k := 1; k+1 < len(list); k++ {
				mesh.Indices = append(mesh.Indices, int(list[0]), int(list[k]), int(list[k+1]))
			}
		}
	}
	return nil
}

func skipPLYElement(values plyValueReader, elem PLYElement) error {
	for i := 0; i < elem.Count; i++ {
		for _, prop := range elem.Props {
			var err error
			if prop.IsList {
				_, err = readPLYList(values, prop)
			} else {
				_, err = values.scalar(prop.Type)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func readPLYList(values plyValueReader, prop PLYProperty) ([]float64, error) {
	n, err := values.scalar(prop.ListType)
	if err != nil {
		return nil, errors.Wrap(err, "list count")
	}
	if n < 0 || n != math.Trunc(n) {
		return nil, errors.Errorf("invalid list count %v", n)
	}
	out := make([]float64, int(n))
	for i := range out {
		if out[i], err = values.scalar(prop.Type); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// plyValueReader reads one scalar of a declared PLY type
type plyValueReader interface {
	scalar(typ string) (float64, error)
}

type plyASCIIReader struct {
	r *bufio.Reader
}

func (a *plyASCIIReader) scalar(typ string) (float64, error) {
	var b strings.Builder
	for {
		c, err := a.r.ReadByte()
		if err == io.EOF && b.Len() > 0 {
			break
		}
		if err != nil {
			return 0, errors.Wrap(err, "unexpected end of data")
		}
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			if b.Len() > 0 {
				break
			}
			continue
		}
		b.WriteByte(c)
	}
	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0, errors.Errorf("invalid %s value %q", typ, b.String())
	}
	return v, nil
}

type plyBinaryReader struct {
	r     *bufio.Reader
	order binary.ByteOrder
	buf   [8]byte
}

func (p *plyBinaryReader) scalar(typ string) (float64, error) {
	size := plyTypeSize(typ)
	if size == 0 {
		return 0, errors.Errorf("unsupported data type: %s", typ)
	}
	b := p.buf[:size]
	if _, err := io.ReadFull(p.r, b); err != nil {
		return 0, errors.Wrap(err, "unexpected end of data")
	}
	switch typ {
	case "char", "int8":
		return float64(int8(b[0])), nil
	case "uchar", "uint8":
		return float64(b[0]), nil
	case "short", "int16":
		return float64(int16(p.order.Uint16(b))), nil
	case "ushort", "uint16":
		return float64(p.order.Uint16(b)), nil
	case "int", "int32":
		return float64(int32(p.order.Uint32(b))), nil
	case "uint", "uint32":
		return float64(p.order.Uint32(b)), nil
	case "float", "float32":
		return float64(math.Float32frombits(p.order.Uint32(b))), nil
	default:
		return math.Float64frombits(p.order.Uint64(b)), nil
	}
}

// plyTypeSize returns the size in bytes of a PLY data type, or 0 if unknown
func plyTypeSize(dataType string) int {
	switch dataType {
	case "float", "float32", "int", "int32", "uint", "uint32":
		return 4
	case "double", "float64":
		return 8
	case "short", "int16", "ushort", "uint16":
		return 2
	case "char", "int8", "uchar", "uint8":
		return 1
	default:
		return 0
	}
}
