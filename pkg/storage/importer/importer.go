// Package importer reads a JSON model dump and writes it into a model store.
//
// The dump has the shape
//
//	{
//	  "name": "house",
//	  "worldTransform": [16 column-major numbers],
//	  "storeys": [
//	    {"id": 1, "name": "ground", "elevation": 0, "items": [
//	      {"id": 10, "meshes": [
//	        {"positions": [...], "normals": [...], "indices": [...], "transform": [...]}
//	      ]}
//	    ]}
//	  ]
//	}
//
// normals are int16-quantized and indices fit in uint16.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/bimview/xray/internal/concurrency"
	"github.com/bimview/xray/pkg/geometry"
	"github.com/bimview/xray/pkg/logger"
	"github.com/bimview/xray/pkg/storage"
)

var tracer = otel.Tracer("xray/pkg/storage/importer")

// ErrInvalidDocument is returned for dumps that are not valid JSON or miss required fields.
var ErrInvalidDocument = errors.New("invalid model document")

type Option func(*Importer)

// WithLogger sets the importer logger.
func WithLogger(l logger.Logger) Option {
	return func(i *Importer) {
		i.logger = l
	}
}

// WithConcurrency bounds the goroutines parsing storeys.
func WithConcurrency(n int) Option {
	return func(i *Importer) {
		i.concurrency = n
	}
}

// Importer parses model dumps.
type Importer struct {
	logger      logger.Logger
	concurrency int
}

// New returns an Importer.
func New(opts ...Option) *Importer {
	i := &Importer{
		logger:      logger.NewNoopLogger(),
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Import parses the dump read from r and writes it with w.
func (i *Importer) Import(ctx context.Context, w storage.ModelWriter, r io.Reader) (*storage.Model, error) {
	ctx, span := tracer.Start(ctx, "importer.Import")
	defer span.End()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read model document: %w", err)
	}

	model, err := i.Parse(ctx, data)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("storeys", len(model.Storeys)))

	if err := w.WriteModel(ctx, model); err != nil {
		return nil, fmt.Errorf("write model: %w", err)
	}

	i.logger.InfoWithContext(ctx, "model imported",
		zap.String("name", model.Name),
		zap.Int("storeys", len(model.Storeys)),
	)
	return model, nil
}

// Parse decodes a dump without writing it.
func (i *Importer) Parse(ctx context.Context, data []byte) (*storage.Model, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: malformed json", ErrInvalidDocument)
	}
	doc := gjson.ParseBytes(data)

	model := &storage.Model{
		Name:           doc.Get("name").String(),
		WorldTransform: geometry.Identity,
	}

	if wt := doc.Get("worldTransform"); wt.Exists() {
		elems, err := floats64(wt)
		if err != nil {
			return nil, fmt.Errorf("worldTransform: %w", err)
		}
		if len(elems) != 16 {
			return nil, fmt.Errorf("%w: worldTransform has %d elements", ErrInvalidDocument, len(elems))
		}
		model.WorldTransform = geometry.MatrixFromElements(elems)
	}

	storeys := doc.Get("storeys")
	if !storeys.IsArray() {
		return nil, fmt.Errorf("%w: storeys must be an array", ErrInvalidDocument)
	}

	raw := storeys.Array()
	model.Storeys = make([]storage.StoreyContent, len(raw))

	p := concurrency.NewPool(ctx, i.concurrency)
	for idx, s := range raw {
		p.Go(func(ctx context.Context) error {
			sc, err := parseStorey(s)
			if err != nil {
				return fmt.Errorf("storey %d: %w", idx, err)
			}
			model.Storeys[idx] = sc
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	return model, nil
}

func parseStorey(s gjson.Result) (storage.StoreyContent, error) {
	id := s.Get("id")
	if id.Type != gjson.Number {
		return storage.StoreyContent{}, fmt.Errorf("%w: missing id", ErrInvalidDocument)
	}

	sc := storage.StoreyContent{
		Storey: storage.Storey{
			ID:        storage.GroupKey(id.Int()),
			Name:      s.Get("name").String(),
			Elevation: s.Get("elevation").Float(),
		},
	}

	for _, it := range s.Get("items").Array() {
		itemID := it.Get("id")
		if itemID.Type != gjson.Number {
			return sc, fmt.Errorf("%w: item without id", ErrInvalidDocument)
		}
		item := storage.Item{ID: storage.ItemKey(itemID.Int())}
		for mi, m := range it.Get("meshes").Array() {
			md, err := parseMesh(m)
			if err != nil {
				return sc, fmt.Errorf("item %d mesh %d: %w", item.ID, mi, err)
			}
			item.Meshes = append(item.Meshes, md)
		}
		sc.Items = append(sc.Items, item)
	}
	return sc, nil
}

func parseMesh(m gjson.Result) (geometry.MeshData, error) {
	var (
		md  geometry.MeshData
		err error
	)

	positions := m.Get("positions").Array()
	md.Positions = make([]float32, len(positions))
	for i, v := range positions {
		if v.Type != gjson.Number {
			return md, fmt.Errorf("%w: non numeric position", ErrInvalidDocument)
		}
		md.Positions[i] = float32(v.Float())
	}

	if n := m.Get("normals"); n.Exists() {
		for _, v := range n.Array() {
			q := v.Int()
			if v.Type != gjson.Number || q < math.MinInt16 || q > math.MaxInt16 {
				return md, fmt.Errorf("%w: normal %s out of int16 range", ErrInvalidDocument, v.Raw)
			}
			md.Normals = append(md.Normals, int16(q))
		}
	}

	indices := m.Get("indices").Array()
	md.Indices = make([]uint16, len(indices))
	for i, v := range indices {
		if v.Type != gjson.Number || v.Int() < 0 || v.Int() > math.MaxUint16 {
			return md, fmt.Errorf("%w: index %s out of uint16 range", ErrInvalidDocument, v.Raw)
		}
		md.Indices[i] = uint16(v.Uint())
	}

	if t := m.Get("transform"); t.Exists() {
		if md.Transform, err = floats64(t); err != nil {
			return md, err
		}
		if len(md.Transform) != 16 {
			return md, fmt.Errorf("%w: transform has %d elements", ErrInvalidDocument, len(md.Transform))
		}
	}

	return md, nil
}

func floats64(r gjson.Result) ([]float64, error) {
	if !r.IsArray() {
		return nil, fmt.Errorf("%w: expected an array", ErrInvalidDocument)
	}
	values := r.Array()
	out := make([]float64, len(values))
	for i, v := range values {
		if v.Type != gjson.Number {
			return nil, fmt.Errorf("%w: non numeric value %s", ErrInvalidDocument, v.Raw)
		}
		out[i] = v.Float()
	}
	return out, nil
}
