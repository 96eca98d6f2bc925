package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"ppexec/internal/ddl"
	"ppexec/internal/frame"
	"ppexec/internal/table"
)

// rowGroupSize caps the rows per Parquet row group.
const rowGroupSize = 64 * 1024

var timestampType = &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}

// WriteColumnarFile writes t as a standalone Snappy Parquet file.
func WriteColumnarFile(path string, t *table.Table) error {
	schema, err := t.Schema()
	if err != nil {
		return err
	}
	return writeFileWith(path, func(f *os.File) error { return encodeColumnar(f, t.Frame(), schema) })
}

func encodeColumnar(w io.Writer, f *frame.Frame, schema ddl.Schema) error {
	tbl, err := toArrowTable(f, schema, memory.DefaultAllocator)
	if err != nil {
		return err
	}
	defer tbl.Release()

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	arrProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())
	// WriteTable closes sinks that implement io.Closer; the caller owns w.
	if err := pqarrow.WriteTable(tbl, struct{ io.Writer }{w}, rowGroupSize, props, arrProps); err != nil {
		return fmt.Errorf("write parquet: %w", err)
	}
	return nil
}

func toArrowTable(f *frame.Frame, schema ddl.Schema, mem memory.Allocator) (arrow.Table, error) {
	fields := make([]arrow.Field, len(schema))
	cols := make([]arrow.Array, 0, len(schema))
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	for i, field := range schema {
		c, ok := f.Column(field.Name)
		if !ok {
			return nil, fmt.Errorf("column %q not in table", field.Name)
		}
		dt, err := columnArrowType(c, field)
		if err != nil {
			return nil, err
		}
		b := array.NewBuilder(mem, dt)
		for row := 0; row < c.Len(); row++ {
			if err := appendArrowValue(b, c.Value(row)); err != nil {
				b.Release()
				return nil, fmt.Errorf("column %q row %d: %w", field.Name, row, err)
			}
		}
		cols = append(cols, b.NewArray())
		b.Release()
		fields[i] = arrow.Field{Name: field.Name, Type: dt, Nullable: true}
	}

	sch := arrow.NewSchema(fields, nil)
	rec := array.NewRecord(sch, cols, int64(f.Len()))
	defer rec.Release()
	return array.NewTableFromRecords(sch, []arrow.Record{rec}), nil
}

// columnArrowType picks the physical type of a column. Static kinds map
// directly; Dynamic columns follow their derived dialect type.
func columnArrowType(c *frame.Column, field ddl.Field) (arrow.DataType, error) {
	if k := c.Type().Kind; k != frame.Dynamic {
		return kindArrowType(k), nil
	}
	if field.Type == ddl.TypeArray {
		elem, err := ddl.DialectToNative(field.Element)
		if err != nil {
			return nil, err
		}
		return arrow.ListOf(kindArrowType(elem.Kind)), nil
	}
	native, err := ddl.DialectToNative(field.Dialect())
	if err != nil {
		return nil, err
	}
	return kindArrowType(native.Kind), nil
}

func kindArrowType(k frame.Kind) arrow.DataType {
	switch k {
	case frame.Int64:
		return arrow.PrimitiveTypes.Int64
	case frame.Int32:
		return arrow.PrimitiveTypes.Int32
	case frame.Float64:
		return arrow.PrimitiveTypes.Float64
	case frame.Float32:
		return arrow.PrimitiveTypes.Float32
	case frame.Bool:
		return arrow.FixedWidthTypes.Boolean
	case frame.Timestamp:
		return timestampType
	}
	return arrow.BinaryTypes.String
}

func appendArrowValue(b array.Builder, v any) error {
	if frame.IsMissing(v) {
		b.AppendNull()
		return nil
	}
	switch b := b.(type) {
	case *array.ListBuilder:
		list, ok := frame.Normalize(v).([]any)
		if !ok {
			return fmt.Errorf("value of type %T is not a list", v)
		}
		b.Append(true)
		for _, e := range list {
			if err := appendArrowValue(b.ValueBuilder(), e); err != nil {
				return err
			}
		}
		return nil
	case *array.Int64Builder:
		n, err := frame.Coerce(frame.Int64, v)
		if err != nil {
			return err
		}
		b.Append(n.(int64))
	case *array.Int32Builder:
		n, err := frame.Coerce(frame.Int32, v)
		if err != nil {
			return err
		}
		b.Append(n.(int32))
	case *array.Float64Builder:
		x, err := frame.Coerce(frame.Float64, v)
		if err != nil {
			return err
		}
		b.Append(x.(float64))
	case *array.Float32Builder:
		x, err := frame.Coerce(frame.Float32, v)
		if err != nil {
			return err
		}
		b.Append(x.(float32))
	case *array.BooleanBuilder:
		x, err := frame.Coerce(frame.Bool, v)
		if err != nil {
			return err
		}
		b.Append(x.(bool))
	case *array.TimestampBuilder:
		x, err := frame.Coerce(frame.Timestamp, v)
		if err != nil {
			return err
		}
		b.Append(arrow.Timestamp(x.(time.Time).UnixMicro()))
	case *array.StringBuilder:
		x, err := frame.Coerce(frame.Utf8, v)
		if err != nil {
			return err
		}
		b.Append(x.(string))
	default:
		return fmt.Errorf("unsupported arrow builder %T", b)
	}
	return nil
}

func decodeColumnarFile(ctx context.Context, path string, ns *table.NativeSchema) (*frame.Frame, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return decodeColumnar(ctx, fh, ns)
}

// decodeColumnar loads a Parquet file and casts the declared fields to their
// native types.
func decodeColumnar(ctx context.Context, r parquet.ReaderAtSeeker, ns *table.NativeSchema) (*frame.Frame, error) {
	mem := memory.DefaultAllocator
	tbl, err := pqarrow.ReadTable(ctx, r, parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, fmt.Errorf("read parquet: %w", err)
	}
	defer tbl.Release()

	f, err := FromArrowTable(tbl)
	if err != nil {
		return nil, err
	}
	if err := ns.Cast(f); err != nil {
		return nil, err
	}
	return f, nil
}

// FromArrowTable copies an Arrow table into a frame.
func FromArrowTable(tbl arrow.Table) (*frame.Frame, error) {
	cols := make([]*frame.Column, 0, tbl.NumCols())
	for i := 0; i < int(tbl.NumCols()); i++ {
		col := tbl.Column(i)
		values := make([]any, 0, tbl.NumRows())
		for _, chunk := range col.Data().Chunks() {
			for j := 0; j < chunk.Len(); j++ {
				values = append(values, arrowValue(chunk, j))
			}
		}
		typ := frame.Of(arrowKind(col.DataType()))
		if typ.Kind == frame.Utf8 {
			typ.Nullable = true
		}
		c, err := frame.NewColumn(col.Name(), typ, values)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return frame.New(cols...)
}

func arrowKind(dt arrow.DataType) frame.Kind {
	switch dt.ID() {
	case arrow.INT64, arrow.UINT32, arrow.UINT64:
		return frame.Int64
	case arrow.INT32, arrow.INT16, arrow.INT8, arrow.UINT16, arrow.UINT8:
		return frame.Int32
	case arrow.FLOAT64:
		return frame.Float64
	case arrow.FLOAT32:
		return frame.Float32
	case arrow.STRING, arrow.LARGE_STRING, arrow.BINARY:
		return frame.Utf8
	case arrow.BOOL:
		return frame.Bool
	case arrow.TIMESTAMP, arrow.DATE32, arrow.DATE64:
		return frame.Timestamp
	}
	return frame.Dynamic
}

func arrowValue(arr arrow.Array, i int) any {
	if arr.IsNull(i) {
		return nil
	}
	switch a := arr.(type) {
	case *array.Int64:
		return a.Value(i)
	case *array.Int32:
		return a.Value(i)
	case *array.Int16:
		return int32(a.Value(i))
	case *array.Int8:
		return int32(a.Value(i))
	case *array.Uint8:
		return int32(a.Value(i))
	case *array.Uint16:
		return int32(a.Value(i))
	case *array.Uint32:
		return int64(a.Value(i))
	case *array.Uint64:
		return int64(a.Value(i))
	case *array.Float64:
		return a.Value(i)
	case *array.Float32:
		return a.Value(i)
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Binary:
		return string(a.Value(i))
	case *array.Boolean:
		return a.Value(i)
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit).UTC()
	case *array.Date32:
		return a.Value(i).ToTime().UTC()
	case *array.Date64:
		return a.Value(i).ToTime().UTC()
	case *array.List:
		start, end := a.ValueOffsets(i)
		values := a.ListValues()
		out := make([]any, 0, end-start)
		for k := start; k < end; k++ {
			out = append(out, arrowValue(values, int(k)))
		}
		return out
	}
	return arr.ValueStr(i)
}
