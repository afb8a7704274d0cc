// Package pager owns the data file and the cache of resident pages.
//
// Page n lives at file offset n*PageSize. The cache is a fixed array with one
// slot per possible page number; a slot is filled the first time its page is
// fetched and emptied only by Evict.
package pager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	flushmanager "github.com/sushant-115/rowdb/core/write_engine/flush_manager"
	pagemanager "github.com/sushant-115/rowdb/core/write_engine/page_manager"
	internaltelemetry "github.com/sushant-115/rowdb/internal/telemetry"
)

const (
	PageSize = pagemanager.PageSize
	// TableMaxPages is the number of slots in the page cache, and so the
	// maximum number of pages a data file can hold.
	TableMaxPages = 100
	// FileMode is the permission used when the data file is created.
	FileMode os.FileMode = 0600
)

// Option configures a Pager.
type Option func(*Pager)

// WithMetrics records page loads and flushes on m.
func WithMetrics(m *internaltelemetry.StorageMetrics) Option {
	return func(p *Pager) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithoutChecksum skips verifying the data digest on open. Intended for
// salvaging files whose trailer digest no longer matches.
func WithoutChecksum() Option {
	return func(p *Pager) { p.verifyDigest = false }
}

type Pager struct {
	path string
	file *os.File
	// fileLength is the on-disk length observed at open time.
	fileLength int64
	// dataLength is the part of the file holding pages, i.e. without the trailer.
	dataLength   int64
	trailer      *Trailer
	pages        [TableMaxPages]*pagemanager.Page
	logger       *zap.Logger
	metrics      *internaltelemetry.StorageMetrics
	verifyDigest bool
}

// Open opens the data file at path, creating it with FileMode if absent.
// A non-empty file must end with a valid trailer. Every error is a
// *flushmanager.DbOpenError.
func Open(path string, logger *zap.Logger, opts ...Option) (*Pager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pager{
		path:         path,
		logger:       logger.With(zap.String("component", "pager"), zap.String("path", path)),
		metrics:      internaltelemetry.NopStorageMetrics(),
		verifyDigest: true,
	}
	for _, opt := range opts {
		opt(p)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, FileMode)
	if err != nil {
		return nil, &flushmanager.DbOpenError{Path: path, Err: fmt.Errorf("%w: opening file: %v", flushmanager.ErrIO, err)}
	}
	p.file = file

	fi, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, &flushmanager.DbOpenError{Path: path, Err: fmt.Errorf("%w: getting file info: %v", flushmanager.ErrIO, err)}
	}
	p.fileLength = fi.Size()

	if err := p.loadTrailer(); err != nil {
		_ = file.Close()
		return nil, &flushmanager.DbOpenError{Path: path, Err: err}
	}

	p.logger.Info("Opened data file",
		zap.Int64("fileLength", p.fileLength),
		zap.Int64("dataLength", p.dataLength),
		zap.Bool("hasTrailer", p.trailer != nil),
	)
	return p, nil
}

// loadTrailer reads the trailer at the end of a non-empty file and checks
// that the data region matches its digest.
func (p *Pager) loadTrailer() error {
	if p.fileLength == 0 {
		return nil
	}
	if p.fileLength < TrailerSize {
		return fmt.Errorf("%w: file is %d bytes, shorter than the trailer", flushmanager.ErrCorruptTrailer, p.fileLength)
	}
	data := make([]byte, TrailerSize)
	if _, err := p.file.ReadAt(data, p.fileLength-TrailerSize); err != nil {
		return fmt.Errorf("%w: reading trailer: %v", flushmanager.ErrIO, err)
	}
	t, err := unmarshalTrailer(data)
	if err != nil {
		return err
	}
	dataLength := p.fileLength - TrailerSize
	if dataLength > TableMaxPages*PageSize {
		return fmt.Errorf("%w: data region of %d bytes exceeds %d pages", flushmanager.ErrCorruptTrailer, dataLength, TableMaxPages)
	}
	if p.verifyDigest {
		sum, err := digestRegion(p.file, dataLength)
		if err != nil {
			return err
		}
		if sum != t.Digest {
			return fmt.Errorf("%w: %d-byte data region", flushmanager.ErrChecksumMismatch, dataLength)
		}
	}
	p.trailer = t
	p.dataLength = dataLength
	return nil
}

// Trailer returns the trailer found at open time, or nil for a new file.
func (p *Pager) Trailer() *Trailer { return p.trailer }

// FileLength returns the on-disk length observed at open time.
func (p *Pager) FileLength() int64 { return p.fileLength }

// DataLength returns the length of the page region of the file.
func (p *Pager) DataLength() int64 { return p.dataLength }

func (p *Pager) Path() string { return p.path }

// numDiskPages is the number of whole or partial pages in the data region.
func (p *Pager) numDiskPages() uint32 {
	return uint32((p.dataLength + PageSize - 1) / PageSize)
}

// Fetch returns the resident page pageNum, loading it on first touch. Pages
// inside the data region are read from disk; others start zeroed.
func (p *Pager) Fetch(pageNum uint32) (*pagemanager.Page, error) {
	if pageNum >= TableMaxPages {
		return nil, fmt.Errorf("%w: page %d, max %d", flushmanager.ErrCapacity, pageNum, TableMaxPages)
	}
	if page := p.pages[pageNum]; page != nil {
		return page, nil
	}
	if p.file == nil {
		return nil, flushmanager.ErrClosed
	}

	page := pagemanager.NewPage(pagemanager.PageID(pageNum))
	source := "zero"
	if pageNum < p.numDiskPages() {
		offset := int64(pageNum) * PageSize
		n := min(int64(PageSize), p.dataLength-offset)
		read, err := p.file.ReadAt(page.GetData()[:n], offset)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: reading page %d at offset %d: %v", flushmanager.ErrIO, pageNum, offset, err)
		}
		// Bytes past a short read stay zero.
		page.SetFromDisk(true)
		source = "disk"
		p.logger.Debug("Read page from disk", zap.Uint32("page", pageNum), zap.Int("bytes", read))
	} else {
		p.logger.Debug("Allocated zeroed page", zap.Uint32("page", pageNum))
	}

	p.pages[pageNum] = page
	ctx := context.Background()
	p.metrics.PageLoadsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
	p.metrics.ResidentPagesUpDown.Add(ctx, 1)
	return page, nil
}

// Resident reports whether pageNum currently occupies a cache slot.
func (p *Pager) Resident(pageNum uint32) bool {
	return pageNum < TableMaxPages && p.pages[pageNum] != nil
}

// ResidentCount returns the number of occupied cache slots.
func (p *Pager) ResidentCount() int {
	n := 0
	for _, page := range p.pages {
		if page != nil {
			n++
		}
	}
	return n
}

// Flush writes the first n bytes of resident page pageNum to its file offset.
func (p *Pager) Flush(pageNum uint32, n int) error {
	if pageNum >= TableMaxPages {
		return fmt.Errorf("%w: flush of page %d, max %d", flushmanager.ErrCapacity, pageNum, TableMaxPages)
	}
	page := p.pages[pageNum]
	if page == nil {
		return fmt.Errorf("%w: flush of page %d", flushmanager.ErrPageNotResident, pageNum)
	}
	if n < 0 || n > PageSize {
		return fmt.Errorf("flush of page %d: byte count %d outside [0, %d]", pageNum, n, PageSize)
	}
	if p.file == nil {
		return flushmanager.ErrClosed
	}

	offset := int64(pageNum) * PageSize
	written, err := p.file.WriteAt(page.GetData()[:n], offset)
	if err != nil {
		return fmt.Errorf("%w: writing page %d at offset %d: %v", flushmanager.ErrIO, pageNum, offset, err)
	}
	if written != n {
		return fmt.Errorf("%w: short write for page %d, expected %d, got %d", flushmanager.ErrIO, pageNum, n, written)
	}
	page.SetDirty(false)

	ctx := context.Background()
	p.metrics.PageFlushesCounter.Add(ctx, 1)
	p.metrics.FlushedBytesCounter.Add(ctx, int64(n))
	p.logger.Debug("Flushed page", zap.Uint32("page", pageNum), zap.Int("bytes", n))
	return nil
}

// Evict empties the slot for pageNum without writing it.
func (p *Pager) Evict(pageNum uint32) {
	if pageNum >= TableMaxPages || p.pages[pageNum] == nil {
		return
	}
	page := p.pages[pageNum]
	p.pages[pageNum] = nil
	p.logger.Debug("Evicted page", zap.Uint32("page", pageNum), zap.Bool("dirty", page.IsDirty()),
		zap.Duration("resident", time.Since(page.LoadedAt())))
	p.metrics.ResidentPagesUpDown.Add(context.Background(), -1)
}

// Commit writes the trailer directly after the first dataLength bytes,
// truncates whatever followed and syncs the file. Pages holding those bytes
// must already have been flushed.
func (p *Pager) Commit(dataLength int64, numRows uint32, rowSize uint16) error {
	if p.file == nil {
		return flushmanager.ErrClosed
	}
	if dataLength < 0 || dataLength > TableMaxPages*PageSize {
		return fmt.Errorf("%w: data length %d", flushmanager.ErrCapacity, dataLength)
	}
	digest, err := digestRegion(p.file, dataLength)
	if err != nil {
		return err
	}
	t := &Trailer{
		Magic:   TrailerMagic,
		Version: TrailerVersion,
		RowSize: rowSize,
		NumRows: numRows,
		Digest:  digest,
	}
	data, err := t.marshal()
	if err != nil {
		return err
	}
	if _, err := p.file.WriteAt(data, dataLength); err != nil {
		return fmt.Errorf("%w: writing trailer at offset %d: %v", flushmanager.ErrIO, dataLength, err)
	}
	if err := p.file.Truncate(dataLength + TrailerSize); err != nil {
		return fmt.Errorf("%w: truncating file: %v", flushmanager.ErrIO, err)
	}
	if err := p.file.Sync(); err != nil {
		return fmt.Errorf("%w: syncing file: %v", flushmanager.ErrIO, err)
	}
	p.trailer = t
	p.dataLength = dataLength
	p.logger.Info("Committed data file", zap.Uint32("numRows", numRows), zap.Int64("dataLength", dataLength))
	return nil
}

// Close releases the file handle. Resident pages are dropped, not written.
// Calling Close more than once is a no-op.
func (p *Pager) Close() error {
	if p.file == nil {
		return nil
	}
	for i := range p.pages {
		p.Evict(uint32(i))
	}
	err := p.file.Close()
	p.file = nil
	if err != nil {
		return fmt.Errorf("%w: closing file: %v", flushmanager.ErrIO, err)
	}
	p.logger.Info("Closed data file")
	return nil
}
