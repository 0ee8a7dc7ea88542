package merscope

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/parquet-go/parquet-go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/spatialdata-io/server/internal/frame"
	"github.com/spatialdata-io/server/internal/spatialdata"
)

// geoMetadata is the subset of the GeoParquet "geo" file metadata we need.
type geoMetadata struct {
	PrimaryColumn string `json:"primary_column"`
}

// readBoundaries loads the cell boundary GeoParquet file, keeps the z-index 0
// slice and indexes polygons by the string form of EntityID.
func readBoundaries(path string) (*spatialdata.Shapes, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open boundaries: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat boundaries: %w", err)
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open boundaries parquet: %w", err)
	}

	geomName := geometryColumn(pf)
	schema := pf.Schema()
	geomCol, ok := schema.Lookup(geomName)
	if !ok {
		return nil, fmt.Errorf("boundaries have no geometry column %q", geomName)
	}
	idCol, ok := schema.Lookup(InstanceKey)
	if !ok {
		return nil, fmt.Errorf("boundaries are missing column %q", InstanceKey)
	}
	zCol, ok := schema.Lookup(ZIndex)
	if !ok {
		return nil, fmt.Errorf("boundaries are missing column %q", ZIndex)
	}

	// Every other flat column is kept as an attribute.
	type attr struct {
		name   string
		index  int
		values []string
	}
	var attrs []*attr
	for _, p := range schema.Columns() {
		if len(p) != 1 {
			continue
		}
		leaf, _ := schema.Lookup(p...)
		switch leaf.ColumnIndex {
		case geomCol.ColumnIndex, idCol.ColumnIndex:
			continue
		}
		attrs = append(attrs, &attr{name: p[0], index: leaf.ColumnIndex})
	}
	attrByIndex := make(map[int]*attr, len(attrs))
	for _, a := range attrs {
		attrByIndex[a.index] = a
	}

	var ids []string
	var geoms []orb.Geometry
	buf := make([]parquet.Row, 256)
	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				var (
					id       string
					z        int64
					geom     []byte
					hasZ     bool
					rowAttrs = make(map[int]string, len(attrs))
				)
				for _, v := range row {
					col := v.Column()
					switch col {
					case idCol.ColumnIndex:
						id = valueString(v)
					case geomCol.ColumnIndex:
						if !v.IsNull() {
							geom = append([]byte(nil), v.ByteArray()...)
						}
					}
					if col == zCol.ColumnIndex && !v.IsNull() {
						z, hasZ = valueInt(v)
					}
					if _, ok := attrByIndex[col]; ok {
						rowAttrs[col] = valueString(v)
					}
				}
				if !hasZ || z != 0 {
					continue
				}
				g, gerr := wkb.Unmarshal(geom)
				if gerr != nil {
					rows.Close()
					return nil, fmt.Errorf("failed to decode geometry of %s %s: %w", InstanceKey, id, gerr)
				}
				ids = append(ids, id)
				geoms = append(geoms, g)
				for _, a := range attrs {
					a.values = append(a.values, rowAttrs[a.index])
				}
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to read boundaries: %w", err)
			}
		}
		if err := rows.Close(); err != nil {
			return nil, fmt.Errorf("failed to close boundary rows: %w", err)
		}
	}

	attributes := frame.New(InstanceKey, ids)
	for _, a := range attrs {
		values := a.values
		if values == nil {
			values = []string{}
		}
		if err := attributes.AddColumn(frame.InferColumn(a.name, values)); err != nil {
			return nil, err
		}
	}

	return &spatialdata.Shapes{
		Name:       ShapesLayer,
		Index:      ids,
		IndexName:  InstanceKey,
		Geometry:   geoms,
		Attributes: attributes,
	}, nil
}

// geometryColumn reads the primary geometry column from GeoParquet metadata,
// falling back to the MERSCOPE column name.
func geometryColumn(pf *parquet.File) string {
	if raw, ok := pf.Lookup("geo"); ok {
		var meta geoMetadata
		if err := json.Unmarshal([]byte(raw), &meta); err == nil && meta.PrimaryColumn != "" {
			return meta.PrimaryColumn
		}
	}
	for _, name := range []string{"Geometry", "geometry"} {
		if _, ok := pf.Schema().Lookup(name); ok {
			return name
		}
	}
	return "Geometry"
}

func valueString(v parquet.Value) string {
	if v.IsNull() {
		return ""
	}
	switch v.Kind() {
	case parquet.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10)
	case parquet.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	case parquet.Double:
		return strconv.FormatFloat(v.Double(), 'g', -1, 64)
	case parquet.Float:
		return strconv.FormatFloat(float64(v.Float()), 'g', -1, 32)
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return v.String()
	}
}

func valueInt(v parquet.Value) (int64, bool) {
	switch v.Kind() {
	case parquet.Int32:
		return int64(v.Int32()), true
	case parquet.Int64:
		return v.Int64(), true
	case parquet.Double:
		return int64(v.Double()), true
	case parquet.Float:
		return int64(v.Float()), true
	default:
		return 0, false
	}
}
