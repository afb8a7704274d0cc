package table

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sushant-115/rowdb/core/storage_engine/pager"
	"github.com/sushant-115/rowdb/core/storage_engine/row"
	flushmanager "github.com/sushant-115/rowdb/core/write_engine/flush_manager"
)

// --- Test Helpers ---

func openTestTable(t *testing.T, path string) *Table {
	t.Helper()
	tbl, err := Open(path, zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tbl.Close() })
	return tbl
}

func testRow(i int) row.Row {
	return row.Row{
		ID:       int32(i),
		Username: fmt.Sprintf("user%d", i),
		Email:    fmt.Sprintf("user%d@example.com", i),
	}
}

func insertN(t *testing.T, tbl *Table, n int) []row.Row {
	t.Helper()
	rows := make([]row.Row, 0, n)
	for i := 0; i < n; i++ {
		r := testRow(i)
		require.NoError(t, tbl.Insert(&r))
		rows = append(rows, r)
	}
	return rows
}

// --- Test Cases ---

func TestLayoutConstants(t *testing.T) {
	require.Equal(t, 14, RowsPerPage)
	require.Equal(t, 1400, TableMaxRows)
	require.Equal(t, int64(0), DataLength(0))
	require.Equal(t, int64(291), DataLength(1))
	require.Equal(t, int64(pager.PageSize), DataLength(14))
	require.Equal(t, int64(pager.PageSize+291), DataLength(15))
}

func TestRowAddress(t *testing.T) {
	tests := []struct {
		row        uint32
		wantPage   uint32
		wantOffset int
	}{
		{0, 0, 0},
		{1, 0, 291},
		{13, 0, 13 * 291},
		{14, 1, 0},
		{1399, 99, 13 * 291},
	}
	for _, tt := range tests {
		page, offset, err := RowAddress(tt.row)
		require.NoError(t, err)
		require.Equal(t, tt.wantPage, page, "row %d", tt.row)
		require.Equal(t, tt.wantOffset, offset, "row %d", tt.row)
		require.LessOrEqual(t, offset+row.RowSize, pager.PageSize, "row %d crosses a page boundary", tt.row)
	}

	_, _, err := RowAddress(TableMaxRows)
	require.ErrorIs(t, err, flushmanager.ErrCapacity)
}

func TestInsertAndSelect_PreservesOrder(t *testing.T) {
	tbl := openTestTable(t, filepath.Join(t.TempDir(), "t.db"))
	want := insertN(t, tbl, 30)

	got, err := tbl.Rows()
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Equal(t, uint32(30), tbl.NumRows())

	// SelectAll is restartable and does not change the row count.
	again, err := tbl.Rows()
	require.NoError(t, err)
	require.Equal(t, want, again)
	require.Equal(t, uint32(30), tbl.NumRows())
}

func TestSelectAll_EmptyTable(t *testing.T) {
	tbl := openTestTable(t, filepath.Join(t.TempDir(), "t.db"))

	for range tbl.SelectAll() {
		t.Fatal("empty table must yield no rows")
	}
	require.Zero(t, tbl.Pager().ResidentCount())
}

func TestSelectAll_StopsEarly(t *testing.T) {
	tbl := openTestTable(t, filepath.Join(t.TempDir(), "t.db"))
	insertN(t, tbl, 5)

	seen := 0
	for _, err := range tbl.SelectAll() {
		require.NoError(t, err)
		seen++
		if seen == 2 {
			break
		}
	}
	require.Equal(t, 2, seen)
}

func TestInsert_PageBoundary(t *testing.T) {
	tbl := openTestTable(t, filepath.Join(t.TempDir(), "t.db"))
	insertN(t, tbl, RowsPerPage)
	require.Equal(t, 1, tbl.Pager().ResidentCount())

	insertN(t, tbl, 1)
	require.Equal(t, 2, tbl.Pager().ResidentCount())
	require.True(t, tbl.Pager().Resident(1))

	page, offset, err := RowAddress(RowsPerPage)
	require.NoError(t, err)
	require.Equal(t, uint32(1), page)
	require.Zero(t, offset)
}

func TestInsert_TableFull(t *testing.T) {
	tbl := openTestTable(t, filepath.Join(t.TempDir(), "t.db"))
	insertN(t, tbl, TableMaxRows)
	require.Equal(t, uint32(TableMaxRows), tbl.NumRows())

	extra := testRow(TableMaxRows)
	err := tbl.Insert(&extra)
	require.ErrorIs(t, err, flushmanager.ErrTableFull)
	require.Equal(t, uint32(TableMaxRows), tbl.NumRows())
	require.Equal(t, TableMaxPages, tbl.Pager().ResidentCount())
}

func TestInsert_TruncatesUnvalidatedFields(t *testing.T) {
	tbl := openTestTable(t, filepath.Join(t.TempDir(), "t.db"))
	long := row.Row{ID: 1, Username: "abcdefghijklmnopqrstuvwxyz0123456789", Email: "e"}
	require.NoError(t, tbl.Insert(&long))
	next := testRow(2)
	require.NoError(t, tbl.Insert(&next))

	got, err := tbl.Rows()
	require.NoError(t, err)
	require.Equal(t, long.Username[:row.UsernameSize], got[0].Username)
	require.Equal(t, "e", got[0].Email)
	require.Equal(t, next, got[1])
}

func TestReopen_RestoresRowsAndCount(t *testing.T) {
	for _, n := range []int{0, 1, 5, RowsPerPage - 1, RowsPerPage, RowsPerPage + 1, 100} {
		t.Run(fmt.Sprintf("rows=%d", n), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "t.db")

			tbl, err := Open(path, zaptest.NewLogger(t), nil)
			require.NoError(t, err)
			want := insertN(t, tbl, n)
			require.NoError(t, tbl.Close())

			fi, err := os.Stat(path)
			require.NoError(t, err)
			require.Equal(t, DataLength(uint32(n))+pager.TrailerSize, fi.Size())

			reopened := openTestTable(t, path)
			require.Equal(t, uint32(n), reopened.NumRows())
			got, err := reopened.Rows()
			require.NoError(t, err)
			require.Equal(t, want, got)
		})
	}
}

// TestReopen_ZeroRowInMiddle stores rows whose bytes are entirely zero; the
// row count must not depend on row contents.
func TestReopen_ZeroRowInMiddle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.db")
	tbl, err := Open(path, nil, nil)
	require.NoError(t, err)

	rows := []row.Row{testRow(1), {}, {}, testRow(4)}
	for i := range rows {
		require.NoError(t, tbl.Insert(&rows[i]))
	}
	require.NoError(t, tbl.Close())

	reopened := openTestTable(t, path)
	require.Equal(t, uint32(4), reopened.NumRows())
	got, err := reopened.Rows()
	require.NoError(t, err)
	require.Equal(t, rows, got)
}

func TestReopen_AppendToPartialPage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.db")

	tbl, err := Open(path, nil, nil)
	require.NoError(t, err)
	want := insertN(t, tbl, 10)
	require.NoError(t, tbl.Close())

	for round := 0; round < 2; round++ {
		tbl, err = Open(path, nil, nil)
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			r := testRow(len(want))
			require.NoError(t, tbl.Insert(&r))
			want = append(want, r)
		}
		require.NoError(t, tbl.Close())
	}

	reopened := openTestTable(t, path)
	got, err := reopened.Rows()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestClose_OnlyFlushesCommittedPages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.db")
	tbl, err := Open(path, nil, nil)
	require.NoError(t, err)
	insertN(t, tbl, 3)

	// A page touched outside the committed range is never written.
	_, err = tbl.Pager().Fetch(5)
	require.NoError(t, err)
	require.NoError(t, tbl.Close())
	require.NoError(t, tbl.Close())

	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, DataLength(3)+pager.TrailerSize, fi.Size())

	r := testRow(9)
	require.ErrorIs(t, tbl.Insert(&r), flushmanager.ErrClosed)
}

func TestCheckpoint_PersistsWithoutClosing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.db")
	tbl := openTestTable(t, path)
	want := insertN(t, tbl, 20)
	require.NoError(t, tbl.Checkpoint())
	require.Equal(t, 2, tbl.Pager().ResidentCount())

	// A second handle sees the checkpointed state.
	snapshot, err := Open(path, nil, nil)
	require.NoError(t, err)
	got, err := snapshot.Rows()
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.NoError(t, snapshot.Pager().Close())

	r := testRow(20)
	require.NoError(t, tbl.Insert(&r))
	require.Equal(t, uint32(21), tbl.NumRows())
}

func TestOpen_RejectsInconsistentTrailer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.db")
	p, err := pager.Open(path, nil)
	require.NoError(t, err)
	_, err = p.Fetch(0)
	require.NoError(t, err)
	require.NoError(t, p.Flush(0, 100))
	// 3 rows claimed, but only 100 data bytes present.
	require.NoError(t, p.Commit(100, 3, row.RowSize))
	require.NoError(t, p.Close())

	_, err = Open(path, nil, nil)
	require.ErrorIs(t, err, flushmanager.ErrDBOpen)
	require.ErrorIs(t, err, flushmanager.ErrCorruptTrailer)
}
