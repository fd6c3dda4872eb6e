package writer

import (
	"fmt"

	"github.com/zegnqin/seatunnel/iceberg"
	"github.com/zegnqin/seatunnel/icebergerr"
	"github.com/zegnqin/seatunnel/row"
)

// Partitioner computes the partition key of logical rows.
type Partitioner struct {
	spec    *iceberg.PartitionSpec
	sources map[int]fieldTranslator
}

// NewPartitioner resolves the source column of every partition field in
// rowType.
func NewPartitioner(spec *iceberg.PartitionSpec, schema *iceberg.Schema, rowType row.Schema) (*Partitioner, error) {
	if spec == nil {
		spec = iceberg.UnpartitionedSpec()
	}
	p := &Partitioner{spec: spec, sources: make(map[int]fieldTranslator, len(spec.Fields))}
	for _, pf := range spec.Fields {
		f, ok := schema.FindField(pf.SourceID)
		if !ok {
			return nil, &icebergerr.ConfigurationError{Field: pf.Name, Reason: fmt.Sprintf("partition source column %d is not in the table schema", pf.SourceID)}
		}
		pos := rowType.IndexOf(f.Name)
		if pos < 0 {
			return nil, &icebergerr.ConfigurationError{Field: f.Name, Reason: "partition source column is missing from the row type " + rowType.String()}
		}
		p.sources[pf.SourceID] = fieldTranslator{pos: pos, logical: rowType.Field(pos).Type, field: f}
	}
	return p, nil
}

// Spec is the partition spec keys are computed for.
func (p *Partitioner) Spec() *iceberg.PartitionSpec { return p.spec }

// Partition returns the key of r.
func (p *Partitioner) Partition(r row.Row) (iceberg.PartitionKey, error) {
	var convErr error
	key, err := p.spec.Partition(func(sourceID int) any {
		src := p.sources[sourceID]
		if src.pos >= r.Arity() {
			convErr = fmt.Errorf("row has %d fields, partition column %s is at %d", r.Arity(), src.field.Name, src.pos)
			return nil
		}
		v, err := physicalValue(src.field, src.logical, r.Field(src.pos))
		if err != nil && convErr == nil {
			convErr = err
		}
		return v
	})
	if convErr != nil {
		return iceberg.PartitionKey{}, convErr
	}
	return key, err
}
