package pagemanager

import (
	"fmt"
	"time"
)

// --- Page Management ---

// PageSize is the size of every on-disk and in-memory page.
const PageSize = 4096

// PageID is the page number, which is also the page's index in the file.
type PageID uint32

// Page represents an in-memory copy of a disk page.
type Page struct {
	id       PageID
	data     []byte
	isDirty  bool
	loadedAt time.Time
	// fromDisk is true when the page was read from the existing file extent.
	fromDisk bool
}

// NewPage creates a zeroed Page of PageSize bytes.
func NewPage(id PageID) *Page {
	return &Page{
		id:       id,
		data:     make([]byte, PageSize),
		loadedAt: time.Now(),
	}
}

func (p *Page) GetData() []byte           { return p.data }
func (p *Page) GetPageID() PageID         { return p.id }
func (p *Page) IsDirty() bool             { return p.isDirty }
func (p *Page) SetDirty(dirty bool)       { p.isDirty = dirty }
func (p *Page) LoadedAt() time.Time       { return p.loadedAt }
func (p *Page) FromDisk() bool            { return p.fromDisk }
func (p *Page) SetFromDisk(fromDisk bool) { p.fromDisk = fromDisk }

// Span returns the n-byte window starting at offset. The window aliases the
// page buffer, so writes through it modify the page.
func (p *Page) Span(offset, n int) ([]byte, error) {
	if offset < 0 || n < 0 || offset+n > len(p.data) {
		return nil, fmt.Errorf("span [%d, %d) out of bounds for page %d of %d bytes", offset, offset+n, p.id, len(p.data))
	}
	return p.data[offset : offset+n : offset+n], nil
}
