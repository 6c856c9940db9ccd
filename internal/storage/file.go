package storage

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/nanodb/nanodb/internal/dberr"
	"github.com/nanodb/nanodb/pkg/types"
)

// File type tags stored in the file header, distinguishing a heap data
// file from a WAL file sharing the same install ID (spec §3/§6).
const (
	FileTypeData = 1
	FileTypeWAL  = 2
)

const (
	fileHeaderSize = 34 // Magic(8) + FileType(1) + PageSizeByte(1) + Version(4) + NumPages(4) + InstallID(16)
	fileMagic      = uint64(0x4E414E4F44425046) // "NANODBPF"
	fileVersion    = uint32(1)
)

// DBFile manages a single paged data file: header I/O, page reads and
// writes, and page allocation. It adapts the teacher's DiskManager to a
// configurable page size and the install-ID stamping spec §4.1 and the
// domain-stack write-up (SPEC_FULL.md §B) call for.
type DBFile struct {
	mu        sync.Mutex
	file      *os.File
	filePath  string
	pageSize  int
	numPages  uint32
	installID uuid.UUID
}

// NewDBFile creates or opens a data file at path with the given page size.
// A new file is stamped with installID; when opening an existing file the
// argument is ignored and the file's stamped ID is read back (InstallID).
// The WAL writer compares its own header against that ID, which is what
// lets recovery refuse to redo a WAL against the wrong data file
// (SPEC_FULL.md §B).
func NewDBFile(path string, pageSize int, installID uuid.UUID) (*DBFile, error) {
	if !IsValidPageSize(pageSize) {
		return nil, dberr.StorageFormatf("storage.NewDBFile", "invalid page size %d", pageSize)
	}

	df := &DBFile{filePath: path, pageSize: pageSize, installID: installID}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
		if err != nil {
			return nil, dberr.IOWrap("storage.NewDBFile", err)
		}
		df.file = f
		df.numPages = 0
		if err := df.writeHeader(FileTypeData); err != nil {
			f.Close()
			return nil, err
		}
		return df, nil
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, dberr.IOWrap("storage.NewDBFile", err)
	}
	df.file = f
	if err := df.readHeader(FileTypeData); err != nil {
		f.Close()
		return nil, err
	}
	return df, nil
}

func (df *DBFile) writeHeader(fileType byte) error {
	header := make([]byte, fileHeaderSize)
	binary.LittleEndian.PutUint64(header[0:8], fileMagic)
	header[8] = fileType
	sizeByte, err := EncodePageSize(df.pageSize)
	if err != nil {
		return err
	}
	header[9] = sizeByte
	binary.LittleEndian.PutUint32(header[10:14], fileVersion)
	binary.LittleEndian.PutUint32(header[14:18], df.numPages)
	idBytes, _ := df.installID.MarshalBinary()
	copy(header[18:34], idBytes)

	if _, err := df.file.WriteAt(header, 0); err != nil {
		return dberr.IOWrap("storage.DBFile.writeHeader", err)
	}
	return df.file.Sync()
}

func (df *DBFile) readHeader(wantType byte) error {
	header := make([]byte, fileHeaderSize)
	n, err := df.file.ReadAt(header, 0)
	if err != nil || n < fileHeaderSize {
		return dberr.StorageFormatf("storage.DBFile.readHeader", "truncated file header")
	}

	magic := binary.LittleEndian.Uint64(header[0:8])
	if magic != fileMagic {
		return dberr.StorageFormatf("storage.DBFile.readHeader", "bad magic number")
	}
	if header[8] != wantType {
		return dberr.StorageFormatf("storage.DBFile.readHeader", "file type %d does not match expected %d", header[8], wantType)
	}

	df.pageSize = DecodePageSize(header[9])

	version := binary.LittleEndian.Uint32(header[10:14])
	if version != fileVersion {
		return dberr.StorageFormatf("storage.DBFile.readHeader", "unsupported file version %d", version)
	}

	df.numPages = binary.LittleEndian.Uint32(header[14:18])
	if err := df.installID.UnmarshalBinary(header[18:34]); err != nil {
		return dberr.StorageFormatf("storage.DBFile.readHeader", "bad install id: %v", err)
	}
	return nil
}

func (df *DBFile) updateNumPages() error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, df.numPages)
	_, err := df.file.WriteAt(buf, 14)
	if err != nil {
		return dberr.IOWrap("storage.DBFile.updateNumPages", err)
	}
	return nil
}

func (df *DBFile) pageOffset(pageID types.PageID) int64 {
	return int64(fileHeaderSize) + int64(pageID)*int64(df.pageSize)
}

// PageSize returns the page size this file was created with.
func (df *DBFile) PageSize() int { return df.pageSize }

// InstallID returns the UUID stamped into this file's header.
func (df *DBFile) InstallID() uuid.UUID { return df.installID }

// ReadPage reads one page from disk.
func (df *DBFile) ReadPage(pageID types.PageID) (*Page, error) {
	df.mu.Lock()
	defer df.mu.Unlock()

	if uint32(pageID) >= df.numPages {
		return nil, dberr.InvalidPointerf("storage.DBFile.ReadPage", "page %d does not exist", pageID)
	}

	data := make([]byte, df.pageSize)
	n, err := df.file.ReadAt(data, df.pageOffset(pageID))
	if err != nil || n != df.pageSize {
		return nil, dberr.IOWrap("storage.DBFile.ReadPage", err)
	}

	page := &Page{}
	page.Deserialize(data)
	return page, nil
}

// WritePage writes one page to disk. It does not fsync; callers that need
// durability call Sync explicitly (the buffer pool does this after forcing
// the WAL, per the WAL-before-flush invariant).
func (df *DBFile) WritePage(page *Page) error {
	df.mu.Lock()
	defer df.mu.Unlock()

	n, err := df.file.WriteAt(page.Serialize(), df.pageOffset(page.ID))
	if err != nil || n != df.pageSize {
		return dberr.IOWrap("storage.DBFile.WritePage", err)
	}
	return nil
}

// AllocatePage appends a new zeroed page and returns its ID.
func (df *DBFile) AllocatePage() (types.PageID, error) {
	df.mu.Lock()
	defer df.mu.Unlock()

	pageID := types.PageID(df.numPages)
	df.numPages++
	if err := df.updateNumPages(); err != nil {
		df.numPages--
		return 0, err
	}

	page := NewPage(pageID, PageTypeData, df.pageSize)
	if _, err := df.file.WriteAt(page.Serialize(), df.pageOffset(pageID)); err != nil {
		df.numPages--
		df.updateNumPages()
		return 0, dberr.IOWrap("storage.DBFile.AllocatePage", err)
	}
	return pageID, nil
}

// Sync flushes pending writes to stable storage.
func (df *DBFile) Sync() error {
	df.mu.Lock()
	defer df.mu.Unlock()
	if err := df.file.Sync(); err != nil {
		return dberr.IOWrap("storage.DBFile.Sync", err)
	}
	return nil
}

// NumPages returns the total page count.
func (df *DBFile) NumPages() uint32 {
	df.mu.Lock()
	defer df.mu.Unlock()
	return df.numPages
}

// Close closes the underlying OS file.
func (df *DBFile) Close() error {
	df.mu.Lock()
	defer df.mu.Unlock()
	return df.file.Close()
}
