package table

import (
	"fmt"

	flushmanager "github.com/sushant-115/rowdb/core/write_engine/flush_manager"
)

// Cursor walks the rows of a table. It snapshots the row count when created,
// so rows inserted afterwards are not visited.
type Cursor struct {
	table      *Table
	rowNum     uint32
	numRows    uint32
	endOfTable bool
}

// TableStart returns a cursor on the first row.
func TableStart(t *Table) *Cursor {
	return &Cursor{
		table:      t,
		rowNum:     0,
		numRows:    t.numRows,
		endOfTable: t.numRows == 0,
	}
}

// TableEnd returns a cursor one past the last row, where the next insert goes.
func TableEnd(t *Table) *Cursor {
	return &Cursor{
		table:      t,
		rowNum:     t.numRows,
		numRows:    t.numRows,
		endOfTable: true,
	}
}

func (c *Cursor) RowNum() uint32   { return c.rowNum }
func (c *Cursor) EndOfTable() bool { return c.endOfTable }

// Advance moves to the next row. Advancing a cursor that is already at the
// end returns ErrCursorExhausted.
func (c *Cursor) Advance() error {
	if c.endOfTable {
		return fmt.Errorf("%w: row %d of %d", flushmanager.ErrCursorExhausted, c.rowNum, c.numRows)
	}
	c.rowNum++
	if c.rowNum >= c.numRows {
		c.endOfTable = true
	}
	return nil
}

// Value returns the bytes backing the current row.
func (c *Cursor) Value() ([]byte, error) {
	return c.table.Slot(c.rowNum)
}
