// Package table stores fixed-width rows in the pages of a single data file.
//
// Row r lives on page r/RowsPerPage at byte offset (r%RowsPerPage)*RowSize. A
// page never holds a partial row; the tail of each page past the last slot is
// unused.
package table

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"go.uber.org/zap"

	"github.com/sushant-115/rowdb/core/storage_engine/pager"
	"github.com/sushant-115/rowdb/core/storage_engine/row"
	flushmanager "github.com/sushant-115/rowdb/core/write_engine/flush_manager"
	internaltelemetry "github.com/sushant-115/rowdb/internal/telemetry"
)

const (
	RowsPerPage   = pager.PageSize / row.RowSize
	TableMaxPages = pager.TableMaxPages
	TableMaxRows  = RowsPerPage * TableMaxPages
)

// Table owns a pager and the authoritative row count.
type Table struct {
	pager   *pager.Pager
	numRows uint32
	logger  *zap.Logger
	metrics *internaltelemetry.StorageMetrics
	closed  bool
}

// Open opens or creates the table stored at path. The row count of an
// existing file comes from its trailer.
func Open(path string, logger *zap.Logger, metrics *internaltelemetry.StorageMetrics, opts ...pager.Option) (*Table, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = internaltelemetry.NopStorageMetrics()
	}
	opts = append(opts, pager.WithMetrics(metrics))
	p, err := pager.Open(path, logger, opts...)
	if err != nil {
		return nil, err
	}

	var numRows uint32
	if t := p.Trailer(); t != nil {
		if err := checkTrailer(t, p.DataLength()); err != nil {
			_ = p.Close()
			return nil, &flushmanager.DbOpenError{Path: path, Err: err}
		}
		numRows = t.NumRows
	}

	t := &Table{
		pager:   p,
		numRows: numRows,
		logger:  logger.With(zap.String("component", "table")),
		metrics: metrics,
	}
	metrics.RowsUpDownCounter.Add(context.Background(), int64(numRows))
	t.logger.Info("Opened table", zap.String("path", path), zap.Uint32("numRows", numRows))
	return t, nil
}

func checkTrailer(t *pager.Trailer, dataLength int64) error {
	if t.RowSize != row.RowSize {
		return fmt.Errorf("%w: row size %d, expected %d", flushmanager.ErrCorruptTrailer, t.RowSize, row.RowSize)
	}
	if t.NumRows > TableMaxRows {
		return fmt.Errorf("%w: row count %d exceeds %d", flushmanager.ErrCorruptTrailer, t.NumRows, TableMaxRows)
	}
	if want := DataLength(t.NumRows); want != dataLength {
		return fmt.Errorf("%w: %d rows need %d data bytes, file has %d", flushmanager.ErrCorruptTrailer, t.NumRows, want, dataLength)
	}
	return nil
}

// DataLength is the number of file bytes occupied by numRows committed rows:
// every full page plus the used prefix of the trailing partial page.
func DataLength(numRows uint32) int64 {
	full := int64(numRows / RowsPerPage)
	rem := int64(numRows % RowsPerPage)
	return full*pager.PageSize + rem*row.RowSize
}

// NumRows returns the number of committed rows.
func (t *Table) NumRows() uint32 { return t.numRows }

// Pager exposes the underlying pager.
func (t *Table) Pager() *pager.Pager { return t.pager }

// RowAddress maps a row index to its page number and byte offset.
func RowAddress(rowNum uint32) (pageNum uint32, offset int, err error) {
	if rowNum >= TableMaxRows {
		return 0, 0, fmt.Errorf("%w: row %d, max %d", flushmanager.ErrCapacity, rowNum, TableMaxRows)
	}
	return rowNum / RowsPerPage, int(rowNum%RowsPerPage) * row.RowSize, nil
}

// Slot returns the RowSize bytes backing rowNum. The slice aliases the page.
func (t *Table) Slot(rowNum uint32) ([]byte, error) {
	pageNum, offset, err := RowAddress(rowNum)
	if err != nil {
		return nil, err
	}
	page, err := t.pager.Fetch(pageNum)
	if err != nil {
		return nil, err
	}
	return page.Span(offset, row.RowSize)
}

// Insert appends r. A full table returns ErrTableFull and is left unchanged.
func (t *Table) Insert(r *row.Row) error {
	if t.closed {
		return flushmanager.ErrClosed
	}
	if t.numRows >= TableMaxRows {
		return fmt.Errorf("%w: %d rows", flushmanager.ErrTableFull, t.numRows)
	}
	cursor := TableEnd(t)
	slot, err := cursor.Value()
	if err != nil {
		return err
	}
	if err := row.Serialize(r, slot); err != nil {
		return err
	}
	if err := t.markDirty(cursor.RowNum()); err != nil {
		return err
	}
	t.numRows++
	t.metrics.RowsUpDownCounter.Add(context.Background(), 1)
	return nil
}

func (t *Table) markDirty(rowNum uint32) error {
	pageNum, _, err := RowAddress(rowNum)
	if err != nil {
		return err
	}
	page, err := t.pager.Fetch(pageNum)
	if err != nil {
		return err
	}
	page.SetDirty(true)
	return nil
}

// SelectAll returns a lazy sequence of every committed row in insertion
// order. Each range over the result starts a new cursor.
func (t *Table) SelectAll() iter.Seq2[row.Row, error] {
	return func(yield func(row.Row, error) bool) {
		for cursor := TableStart(t); !cursor.EndOfTable(); {
			slot, err := cursor.Value()
			if err != nil {
				yield(row.Row{}, err)
				return
			}
			r, err := row.Decode(slot)
			if !yield(r, err) || err != nil {
				return
			}
			if err := cursor.Advance(); err != nil {
				yield(row.Row{}, err)
				return
			}
		}
	}
}

// Rows collects SelectAll into a slice.
func (t *Table) Rows() ([]row.Row, error) {
	rows := make([]row.Row, 0, t.numRows)
	for r, err := range t.SelectAll() {
		if err != nil {
			return nil, err
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// committedPages is ceil(numRows / RowsPerPage).
func (t *Table) committedPages() uint32 {
	return (t.numRows + RowsPerPage - 1) / RowsPerPage
}

// flushPages writes resident pages holding committed rows. Full pages are
// written whole; the trailing partial page only up to its last row. With
// dirtyOnly set, pages unchanged since they were loaded are skipped.
func (t *Table) flushPages(dirtyOnly, evict bool) error {
	var errs []error
	numFull := t.numRows / RowsPerPage
	for i := uint32(0); i < t.committedPages(); i++ {
		if !t.pager.Resident(i) {
			continue
		}
		if dirtyOnly {
			if page, err := t.pager.Fetch(i); err == nil && !page.IsDirty() {
				continue
			}
		}
		n := pager.PageSize
		if i == numFull {
			n = int(t.numRows%RowsPerPage) * row.RowSize
		}
		if err := t.pager.Flush(i, n); err != nil {
			errs = append(errs, err)
			continue
		}
		if evict {
			t.pager.Evict(i)
		}
	}
	return errors.Join(errs...)
}

// Checkpoint flushes committed pages and writes the trailer, leaving the
// table open and its pages resident.
func (t *Table) Checkpoint() error {
	if t.closed {
		return flushmanager.ErrClosed
	}
	if err := t.flushPages(true, false); err != nil {
		return err
	}
	return t.pager.Commit(DataLength(t.numRows), t.numRows, row.RowSize)
}

// Close flushes and evicts every committed page, writes the trailer and
// releases the file. The trailer is only written if every flush succeeded,
// so a failed close never records rows that did not reach the file. Closing
// an already closed table is a no-op.
func (t *Table) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	flushErr := t.flushPages(false, true)
	var commitErr error
	if flushErr == nil {
		commitErr = t.pager.Commit(DataLength(t.numRows), t.numRows, row.RowSize)
	}
	closeErr := t.pager.Close()
	if err := errors.Join(flushErr, commitErr, closeErr); err != nil {
		t.logger.Error("Failed to close table", zap.Error(err))
		return err
	}
	t.metrics.RowsUpDownCounter.Add(context.Background(), -int64(t.numRows))
	t.logger.Info("Closed table", zap.Uint32("numRows", t.numRows))
	return nil
}
