package spatialdata

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Dataset aggregates named layers and one expression table. It is built once
// and not mutated afterwards.
type Dataset struct {
	Images map[string]*Image
	Points map[string]*Points
	Shapes map[string]*Shapes
	Table  *Table

	closers []io.Closer
}

// ImageNames returns image layer names, sorted.
func (d *Dataset) ImageNames() []string { return sortedKeys(d.Images) }

// PointNames returns point layer names, sorted.
func (d *Dataset) PointNames() []string { return sortedKeys(d.Points) }

// ShapeNames returns shape layer names, sorted.
func (d *Dataset) ShapeNames() []string { return sortedKeys(d.Shapes) }

// CoordinateSystems lists every coordinate system some layer is registered to.
func (d *Dataset) CoordinateSystems() []string {
	seen := map[string]struct{}{}
	for _, im := range d.Images {
		for _, cs := range TransformTargets(im.Transforms) {
			seen[cs] = struct{}{}
		}
	}
	for _, p := range d.Points {
		for _, cs := range TransformTargets(p.Transforms) {
			seen[cs] = struct{}{}
		}
	}
	for _, s := range d.Shapes {
		for _, cs := range TransformTargets(s.Transforms) {
			seen[cs] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// Summary renders a short human-readable description.
func (d *Dataset) Summary() string {
	var b strings.Builder
	b.WriteString("Dataset\n")
	if len(d.Images) > 0 {
		b.WriteString("├── Images\n")
		for _, name := range d.ImageNames() {
			im := d.Images[name]
			fmt.Fprintf(&b, "│     %s: %s %v %v channels=%v\n", name, im.DType, im.Dims, im.Shape, im.Channels)
		}
	}
	if len(d.Points) > 0 {
		b.WriteString("├── Points\n")
		for _, name := range d.PointNames() {
			p := d.Points[name]
			fmt.Fprintf(&b, "│     %s: %d points, columns=%v\n", name, p.Len(), p.Columns())
		}
	}
	if len(d.Shapes) > 0 {
		b.WriteString("├── Shapes\n")
		for _, name := range d.ShapeNames() {
			fmt.Fprintf(&b, "│     %s: %d shapes\n", name, d.Shapes[name].Len())
		}
	}
	if d.Table != nil {
		fmt.Fprintf(&b, "└── Table: %d obs x %d vars, region_key=%s instance_key=%s regions=%v\n",
			d.Table.NumObs(), d.Table.NumVars(), d.Table.RegionKey, d.Table.InstanceKey, d.Table.Regions)
	}
	fmt.Fprintf(&b, "coordinate systems: %v\n", d.CoordinateSystems())
	return b.String()
}

// Close releases lazily held resources such as spill directories.
func (d *Dataset) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// Builder collects layers and validates them once in Build.
type Builder struct {
	ds  *Dataset
	err error
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{ds: &Dataset{
		Images: map[string]*Image{},
		Points: map[string]*Points{},
		Shapes: map[string]*Shapes{},
	}}
}

// AddImage registers an image layer.
func (b *Builder) AddImage(im *Image) *Builder {
	if b.err == nil {
		if _, ok := b.ds.Images[im.Name]; ok {
			b.err = invariantf("duplicate image layer %q", im.Name)
		}
		b.ds.Images[im.Name] = im
	}
	return b
}

// AddPoints registers a point layer.
func (b *Builder) AddPoints(p *Points) *Builder {
	if b.err == nil {
		if _, ok := b.ds.Points[p.Name]; ok {
			b.err = invariantf("duplicate points layer %q", p.Name)
		}
		b.ds.Points[p.Name] = p
	}
	return b
}

// AddShapes registers a shape layer.
func (b *Builder) AddShapes(s *Shapes) *Builder {
	if b.err == nil {
		if _, ok := b.ds.Shapes[s.Name]; ok {
			b.err = invariantf("duplicate shapes layer %q", s.Name)
		}
		b.ds.Shapes[s.Name] = s
	}
	return b
}

// SetTable sets the expression table.
func (b *Builder) SetTable(t *Table) *Builder {
	b.ds.Table = t
	return b
}

// OnClose registers a resource released by Dataset.Close.
func (b *Builder) OnClose(c io.Closer) *Builder {
	b.ds.closers = append(b.ds.closers, c)
	return b
}

// Abort releases registered resources after a failed conversion.
func (b *Builder) Abort() {
	_ = b.ds.Close()
}

// Build validates every layer and the table foreign keys. On error the
// registered resources are released and no dataset is returned.
func (b *Builder) Build() (*Dataset, error) {
	if err := b.validate(); err != nil {
		b.Abort()
		return nil, err
	}
	return b.ds, nil
}

type annotation struct {
	layer     string
	instances map[string]struct{}
}

func (b *Builder) validate() error {
	if b.err != nil {
		return b.err
	}
	ds := b.ds
	if ds.Table == nil {
		return invariantf("dataset has no table")
	}

	for _, name := range ds.ImageNames() {
		if err := ds.Images[name].validate(); err != nil {
			return err
		}
	}

	annotated := map[string][]annotation{}
	for _, name := range ds.PointNames() {
		p := ds.Points[name]
		if err := p.validate(); err != nil {
			return err
		}
		if p.Region != "" {
			annotated[p.Region] = append(annotated[p.Region], annotation{
				layer:     ElementPath(KindPoints, name),
				instances: toSet(p.Instances),
			})
		}
	}
	for _, name := range ds.ShapeNames() {
		s := ds.Shapes[name]
		if err := s.validate(); err != nil {
			return err
		}
		if s.Region != "" {
			annotated[s.Region] = append(annotated[s.Region], annotation{
				layer:     ElementPath(KindShapes, name),
				instances: toSet(s.Index),
			})
		}
	}

	refs, err := ds.Table.Refs()
	if err != nil {
		return invariantf("table keys: %v", err)
	}
	for _, region := range ds.Table.Regions {
		if len(annotated[region]) == 0 {
			return invariantf("table region %q is not annotated by any layer", region)
		}
	}
	for _, ref := range refs {
		for _, a := range annotated[ref.Region] {
			if _, ok := a.instances[ref.Instance]; !ok {
				return invariantf("table row %s has no instance in %s", ref, a.layer)
			}
		}
	}
	return nil
}

func toSet(ids []string) map[string]struct{} {
	s := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}
