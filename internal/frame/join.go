package frame

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// JoinKind selects which unmatched rows a join keeps.
type JoinKind string

// Supported join kinds.
const (
	LeftJoin  JoinKind = "left"
	InnerJoin JoinKind = "inner"
	RightJoin JoinKind = "right"
	OuterJoin JoinKind = "outer"
)

// ParseJoinKind validates a join kind name. The empty string means left.
func ParseJoinKind(s string) (JoinKind, error) {
	switch k := JoinKind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return LeftJoin, nil
	case LeftJoin, InnerJoin, RightJoin, OuterJoin:
		return k, nil
	}
	return "", fmt.Errorf("unknown join type %q", s)
}

// Join merges left and right on equal values of the on columns. The result
// keeps left's column order with the key columns in place, followed by
// right's non-key columns; clashing non-key names get _x and _y suffixes.
// The result index is reset.
func Join(left, right *Frame, on []string, how JoinKind) (*Frame, error) {
	if len(on) == 0 {
		return nil, fmt.Errorf("join needs at least one key column")
	}
	for _, name := range on {
		if _, ok := left.Column(name); !ok {
			return nil, fmt.Errorf("join key %q not in left table", name)
		}
		if _, ok := right.Column(name); !ok {
			return nil, fmt.Errorf("join key %q not in right table", name)
		}
	}

	lrows, rrows := matchRows(left, right, on, how)

	isKey := make(map[string]bool, len(on))
	for _, name := range on {
		isKey[name] = true
	}
	rightNames := make(map[string]bool)
	for _, name := range right.Names() {
		rightNames[name] = true
	}
	leftNames := make(map[string]bool)
	for _, name := range left.Names() {
		leftNames[name] = true
	}

	out := &Frame{}
	for _, c := range left.columns {
		switch {
		case isKey[c.Name()]:
			rc, _ := right.Column(c.Name())
			if err := out.SetColumn(mergeKey(c, rc, lrows, rrows)); err != nil {
				return nil, err
			}
		case rightNames[c.Name()]:
			if err := out.SetColumn(c.Take(lrows).Rename(c.Name() + "_x")); err != nil {
				return nil, err
			}
		default:
			if err := out.SetColumn(c.Take(lrows)); err != nil {
				return nil, err
			}
		}
	}
	for _, c := range right.columns {
		if isKey[c.Name()] {
			continue
		}
		name := c.Name()
		if leftNames[name] {
			name += "_y"
		}
		if err := out.SetColumn(c.Take(rrows).Rename(name)); err != nil {
			return nil, err
		}
	}
	if out.Width() == 0 {
		out.index = rangeIndex(len(lrows))
	}
	return out, nil
}

func matchRows(left, right *Frame, on []string, how JoinKind) (lrows, rrows []int) {
	lkeys := rowKeys(left, on)
	rkeys := rowKeys(right, on)

	if how == RightJoin {
		byKey := groupRows(lkeys)
		for r, k := range rkeys {
			matches := byKey[k]
			if len(matches) == 0 {
				lrows, rrows = append(lrows, -1), append(rrows, r)
				continue
			}
			for _, l := range matches {
				lrows, rrows = append(lrows, l), append(rrows, r)
			}
		}
		return lrows, rrows
	}

	byKey := groupRows(rkeys)
	matched := make([]bool, len(rkeys))
	for l, k := range lkeys {
		matches := byKey[k]
		if len(matches) == 0 {
			if how != InnerJoin {
				lrows, rrows = append(lrows, l), append(rrows, -1)
			}
			continue
		}
		for _, r := range matches {
			matched[r] = true
			lrows, rrows = append(lrows, l), append(rrows, r)
		}
	}
	if how == OuterJoin {
		for r, ok := range matched {
			if !ok {
				lrows, rrows = append(lrows, -1), append(rrows, r)
			}
		}
	}
	return lrows, rrows
}

func groupRows(keys []string) map[string][]int {
	out := make(map[string][]int, len(keys))
	for i, k := range keys {
		out[k] = append(out[k], i)
	}
	return out
}

func rowKeys(f *Frame, on []string) []string {
	cols := make([]*Column, len(on))
	for i, name := range on {
		cols[i], _ = f.Column(name)
	}
	keys := make([]string, f.Len())
	var sb strings.Builder
	for i := range keys {
		sb.Reset()
		for j, c := range cols {
			if j > 0 {
				sb.WriteByte(0x1f)
			}
			sb.WriteString(keyPart(c.Value(i)))
		}
		keys[i] = sb.String()
	}
	return keys
}

// keyPart renders a value so that numerically equal integers and floats
// hash to the same key.
func keyPart(v any) string {
	if IsMissing(v) {
		return "\x00"
	}
	switch x := v.(type) {
	case int64:
		return "n:" + strconv.FormatInt(x, 10)
	case int32:
		return "n:" + strconv.FormatInt(int64(x), 10)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<63 {
			return "n:" + strconv.FormatInt(int64(x), 10)
		}
		return "n:" + strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return keyPart(float64(x))
	case string:
		return "s:" + x
	case bool:
		return "b:" + strconv.FormatBool(x)
	case time.Time:
		return "t:" + strconv.FormatInt(x.UnixNano(), 10)
	}
	return fmt.Sprintf("%T:%v", v, v)
}

func mergeKey(lc, rc *Column, lrows, rrows []int) *Column {
	values := make([]any, len(lrows))
	for i := range lrows {
		if lrows[i] >= 0 {
			values[i] = lc.Value(lrows[i])
		} else {
			values[i] = rc.Value(rrows[i])
		}
	}
	c, err := NewColumn(lc.Name(), lc.Type(), values)
	if err != nil {
		return InferColumn(lc.Name(), values)
	}
	return c
}
