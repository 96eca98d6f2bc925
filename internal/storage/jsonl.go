package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"time"

	"ppexec/internal/ddl"
	"ppexec/internal/frame"
	"ppexec/internal/table"
)

// encodeRows writes one JSON object per row with keys in schema order.
// Timestamps are written as epoch milliseconds.
func encodeRows(w io.Writer, f *frame.Frame, schema ddl.Schema) error {
	bw := bufio.NewWriter(w)
	cols := make([]*frame.Column, len(schema))
	keys := make([][]byte, len(schema))
	for i, field := range schema {
		cols[i], _ = f.Column(field.Name)
		k, err := json.Marshal(field.Name)
		if err != nil {
			return err
		}
		keys[i] = k
	}

	var line []byte
	for row := 0; row < f.Len(); row++ {
		line = append(line[:0], '{')
		for i, c := range cols {
			if i > 0 {
				line = append(line, ',')
			}
			line = append(line, keys[i]...)
			line = append(line, ':')
			var err error
			line, err = appendJSONValue(line, c.Value(row))
			if err != nil {
				return fmt.Errorf("row %d field %q: %w", row, c.Name(), err)
			}
		}
		line = append(line, '}', '\n')
		if _, err := bw.Write(line); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func appendJSONValue(dst []byte, v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return append(dst, "null"...), nil
	case int64:
		return strconv.AppendInt(dst, x, 10), nil
	case int32:
		return strconv.AppendInt(dst, int64(x), 10), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return append(dst, "null"...), nil
		}
		return appendFloat(dst, x, 64), nil
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return append(dst, "null"...), nil
		}
		return appendFloat(dst, float64(x), 32), nil
	case bool:
		return strconv.AppendBool(dst, x), nil
	case time.Time:
		return strconv.AppendInt(dst, x.UnixMilli(), 10), nil
	case []any:
		dst = append(dst, '[')
		for i, e := range x {
			if i > 0 {
				dst = append(dst, ',')
			}
			var err error
			if dst, err = appendJSONValue(dst, e); err != nil {
				return nil, err
			}
		}
		return append(dst, ']'), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(dst, b...), nil
}

// appendFloat keeps a decimal point on integral values so that list
// elements decode as floats again.
func appendFloat(dst []byte, x float64, bits int) []byte {
	start := len(dst)
	dst = strconv.AppendFloat(dst, x, 'g', -1, bits)
	if !bytes.ContainsAny(dst[start:], ".eE") {
		dst = append(dst, ".0"...)
	}
	return dst
}

func decodeRowsFile(path string, ns *table.NativeSchema) (*frame.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeRows(f, ns)
}

// decodeRows reads JSON lines into columns typed by the schema. Values are
// never parsed as dates unless the schema declares a timestamp. Keys not in
// the schema become inferred columns after the declared ones.
func decodeRows(r io.Reader, ns *table.NativeSchema) (*frame.Frame, error) {
	dec := json.NewDecoder(bufio.NewReader(r))
	dec.UseNumber()

	declared := ns.Fields.Names()
	values := make(map[string][]any, len(declared))
	var extra []string
	rows := 0
	for {
		var rec map[string]any
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode row %d: %w", rows, err)
		}
		for k := range rec {
			if _, ok := values[k]; !ok && !slices.Contains(declared, k) {
				extra = append(extra, k)
				values[k] = make([]any, rows)
			}
		}
		for _, name := range declared {
			values[name] = append(values[name], rec[name])
		}
		for _, name := range extra {
			values[name] = append(values[name], rec[name])
		}
		rows++
	}

	slices.Sort(extra)
	cols := make([]*frame.Column, 0, len(declared)+len(extra))
	for _, name := range declared {
		vals := values[name]
		if vals == nil {
			vals = []any{}
		}
		c, err := frame.NewColumn(name, ns.Native[name], vals)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	for _, name := range extra {
		cols = append(cols, frame.InferColumn(name, values[name]))
	}
	return frame.New(cols...)
}
