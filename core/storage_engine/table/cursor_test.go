package table

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sushant-115/rowdb/core/storage_engine/row"
	flushmanager "github.com/sushant-115/rowdb/core/write_engine/flush_manager"
)

func TestCursor_EmptyTable(t *testing.T) {
	tbl := openTestTable(t, filepath.Join(t.TempDir(), "t.db"))

	start := TableStart(tbl)
	require.True(t, start.EndOfTable())
	require.Zero(t, start.RowNum())
	require.ErrorIs(t, start.Advance(), flushmanager.ErrCursorExhausted)

	end := TableEnd(tbl)
	require.True(t, end.EndOfTable())
	require.Zero(t, end.RowNum())
}

func TestCursor_WalksEveryRow(t *testing.T) {
	tbl := openTestTable(t, filepath.Join(t.TempDir(), "t.db"))
	want := insertN(t, tbl, RowsPerPage+3)

	c := TableStart(tbl)
	require.False(t, c.EndOfTable())
	var got []row.Row
	for !c.EndOfTable() {
		slot, err := c.Value()
		require.NoError(t, err)
		require.Len(t, slot, row.RowSize)
		r, err := row.Decode(slot)
		require.NoError(t, err)
		got = append(got, r)
		require.NoError(t, c.Advance())
	}
	require.Equal(t, want, got)
	require.Equal(t, tbl.NumRows(), c.RowNum())
	require.ErrorIs(t, c.Advance(), flushmanager.ErrCursorExhausted)
	require.Equal(t, tbl.NumRows(), c.RowNum(), "a failed advance must not move the cursor")
}

func TestCursor_EndPointsAtNextSlot(t *testing.T) {
	tbl := openTestTable(t, filepath.Join(t.TempDir(), "t.db"))
	insertN(t, tbl, 4)

	end := TableEnd(tbl)
	require.Equal(t, uint32(4), end.RowNum())
	require.True(t, end.EndOfTable())

	slot, err := end.Value()
	require.NoError(t, err)
	require.Equal(t, make([]byte, row.RowSize), slot, "the slot after the last row is unused")
}

// TestCursor_SnapshotsRowCount checks that rows appended after the cursor was
// created are not visited.
func TestCursor_SnapshotsRowCount(t *testing.T) {
	tbl := openTestTable(t, filepath.Join(t.TempDir(), "t.db"))
	insertN(t, tbl, 2)

	c := TableStart(tbl)
	r := testRow(99)
	require.NoError(t, tbl.Insert(&r))

	visited := 0
	for !c.EndOfTable() {
		visited++
		require.NoError(t, c.Advance())
	}
	require.Equal(t, 2, visited)
}

func TestCursor_ValueAtCapacity(t *testing.T) {
	tbl := openTestTable(t, filepath.Join(t.TempDir(), "t.db"))
	insertN(t, tbl, TableMaxRows)

	_, err := TableEnd(tbl).Value()
	require.ErrorIs(t, err, flushmanager.ErrCapacity)
}
