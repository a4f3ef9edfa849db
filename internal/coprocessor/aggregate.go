package coprocessor

import (
	"github.com/kailas-cloud/fedsearch/internal/domain/table"
	"github.com/kailas-cloud/fedsearch/internal/domain/val"
)

// cell accumulates one column of one stored entry.
type cell struct {
	fn    table.Func
	value val.Val
	sum   float64
	n     int64
	whole bool
}

func newCell(fn table.Func, v val.Val) *cell {
	c := &cell{fn: fn, whole: true}
	c.add(v)
	return c
}

func (c *cell) add(v val.Val) {
	switch c.fn {
	case table.FuncCount:
		c.n++
	case table.FuncSum, table.FuncAverage:
		f, ok := v.AsDouble()
		if v.IsNull() || !ok {
			return
		}
		if v.Kind() != val.KindLong && v.Kind() != val.KindDate {
			c.whole = false
		}
		c.sum += f
		c.n++
	case table.FuncMin:
		if !v.IsNull() && (c.value.IsNull() || val.Compare(v, c.value) < 0) {
			c.value = v
		}
	case table.FuncMax:
		if !v.IsNull() && (c.value.IsNull() || val.Compare(v, c.value) > 0) {
			c.value = v
		}
	default: // first, and plain columns
		if c.value.IsNull() {
			c.value = v
		}
	}
}

func (c *cell) result() val.Val {
	switch c.fn {
	case table.FuncCount:
		return val.Long(c.n)
	case table.FuncSum:
		if c.n == 0 {
			return val.Null()
		}
		if c.whole {
			return val.Long(int64(c.sum))
		}
		return val.Double(c.sum)
	case table.FuncAverage:
		if c.n == 0 {
			return val.Null()
		}
		return val.Double(c.sum / float64(c.n))
	}
	return c.value
}
