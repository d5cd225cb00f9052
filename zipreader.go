package axml

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sync"

	"github.com/klauspost/compress/flate"
)

const (
	localHeaderSignature = "PK\x03\x04"
	localHeaderSize      = 30
)

// ZipReader is a lenient replacement of archive/zip's Reader. It handles
// archives that Android installs but archive/zip refuses, and keeps every
// entry stored under the same name.
type ZipReader struct {
	File map[string]*ZipReaderFile

	// Files in the order they were found in the zip. May contain the same ZipReaderFile
	// multiple times in case of broken/crafted ZIPs
	FilesOrdered []*ZipReaderFile

	ownedZipFile *os.File
}

// ZipReaderFile is every entry of the archive that goes by Name.
type ZipReaderFile struct {
	Name  string
	IsDir bool

	entries []zipEntry
}

type zipEntry struct {
	// set when the entry comes from the central directory
	file *zip.File

	// otherwise the entry was recovered from a local file header
	r          io.ReaderAt
	dataOffset int64
	dataSize   int64
	method     uint16
}

// Count returns how many entries are stored under this name.
func (zf *ZipReaderFile) Count() int {
	return len(zf.entries)
}

// Open returns a reader of the i-th entry stored under this name.
func (zf *ZipReaderFile) Open(i int) (io.ReadCloser, error) {
	if i < 0 || i >= len(zf.entries) {
		return nil, fmt.Errorf("entry %d of %s does not exist", i, zf.Name)
	}

	e := zf.entries[i]
	if e.file != nil {
		return e.file.Open()
	}

	data := io.NewSectionReader(e.r, e.dataOffset, e.dataSize)
	switch e.method {
	case zip.Store:
		return io.NopCloser(data), nil
	default: // Android treats everything but 0 as deflate
		return newFlateReader(data), nil
	}
}

// ReadEntry reads at most limit bytes of the i-th entry.
func (zf *ZipReaderFile) ReadEntry(i int, limit int64) ([]byte, error) {
	rc, err := zf.Open(i)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(io.LimitReader(rc, limit))
}

// ReadAll returns the first entry under this name that can be read completely.
func (zf *ZipReaderFile) ReadAll(limit int64) ([]byte, error) {
	var lastErr error
	for i := range zf.entries {
		data, err := zf.ReadEntry(i, limit)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}

	if lastErr == nil {
		return nil, io.ErrUnexpectedEOF
	}
	return nil, lastErr
}

// Close releases the file opened by OpenZip.
func (zr *ZipReader) Close() error {
	if zr.ownedZipFile == nil {
		return nil
	}
	err := zr.ownedZipFile.Close()
	zr.ownedZipFile = nil
	return err
}

// OpenZip attempts to open the ZIP at path for reading.
func OpenZip(path string) (*ZipReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	zr, err := OpenZipReader(f, fi.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	zr.ownedZipFile = f
	return zr, nil
}

// OpenZipReader reads the central directory of r, and falls back to scanning
// for local file headers when the directory is broken.
func OpenZipReader(r io.ReaderAt, size int64) (*ZipReader, error) {
	zr := &ZipReader{
		File: make(map[string]*ZipReaderFile),
	}

	zipinfo, zipErr := tryReadZip(r, size)
	if zipErr == nil {
		for _, zf := range zipinfo.File {
			if zf.Method != zip.Store && zf.Method != zip.Deflate {
				// Android code seems to be treating unknown method as deflate, except for
				// the binary xml and resource files, which are read as stored.
				switch path.Clean(zf.Name) {
				case ManifestEntry, "resources.arsc":
					zf.Method = zip.Store
					zf.CompressedSize64 = zf.UncompressedSize64
				default:
					zf.Method = zip.Deflate
				}
			}

			zr.add(path.Clean(zf.Name), zf.FileInfo().IsDir(), zipEntry{file: zf}, false)
		}
		return zr, nil
	}

	offsets, err := findLocalHeaders(r, size)
	if err != nil {
		return nil, err
	}

	for _, off := range offsets {
		name, e, err := readLocalHeader(r, size, off)
		if err != nil {
			continue
		}
		// the last local header of a name wins, so it goes first
		zr.add(name, false, e, true)
	}

	if len(zr.FilesOrdered) == 0 {
		return nil, fmt.Errorf("not a zip archive: %w", zipErr)
	}
	return zr, nil
}

func (zr *ZipReader) add(name string, isDir bool, e zipEntry, prepend bool) {
	zf := zr.File[name]
	if zf == nil {
		zf = &ZipReaderFile{Name: name, IsDir: isDir}
		zr.File[name] = zf
	}
	zr.FilesOrdered = append(zr.FilesOrdered, zf)

	if prepend {
		zf.entries = append([]zipEntry{e}, zf.entries...)
	} else {
		zf.entries = append(zf.entries, e)
	}
}

func tryReadZip(r io.ReaderAt, size int64) (zr *zip.Reader, err error) {
	defer func() {
		if pn := recover(); pn != nil {
			err = fmt.Errorf("%v", pn)
			zr = nil
		}
	}()

	zr, err = zip.NewReader(r, size)
	if err != nil {
		return nil, err
	}

	zr.RegisterDecompressor(zip.Deflate, newFlateReader)
	return zr, nil
}

func readLocalHeader(r io.ReaderAt, size, off int64) (string, zipEntry, error) {
	var hdr [localHeaderSize]byte
	if _, err := r.ReadAt(hdr[:], off); err != nil {
		return "", zipEntry{}, err
	}

	method := binary.LittleEndian.Uint16(hdr[8:])
	compressedSize := int64(binary.LittleEndian.Uint32(hdr[18:]))
	nameLen := int64(binary.LittleEndian.Uint16(hdr[26:]))
	extraLen := int64(binary.LittleEndian.Uint16(hdr[28:]))

	name := make([]byte, nameLen)
	if _, err := r.ReadAt(name, off+localHeaderSize); err != nil {
		return "", zipEntry{}, err
	}

	dataOffset := off + localHeaderSize + nameLen + extraLen
	if dataOffset > size {
		return "", zipEntry{}, errors.New("local header points past the end of the archive")
	}

	// sizes are zero when a data descriptor follows the data
	dataSize := size - dataOffset
	if compressedSize != 0 && compressedSize < dataSize {
		dataSize = compressedSize
	}

	return path.Clean(string(name)), zipEntry{
		r:          r,
		dataOffset: dataOffset,
		dataSize:   dataSize,
		method:     method,
	}, nil
}

func findLocalHeaders(r io.ReaderAt, size int64) ([]int64, error) {
	sig := []byte(localHeaderSignature)
	buf := make([]byte, 64*1024)

	var offsets []int64
	for base := int64(0); base < size; {
		n, err := r.ReadAt(buf, base)
		if err != nil && err != io.EOF {
			return nil, err
		}

		chunk := buf[:n]
		for i := 0; ; {
			j := bytes.Index(chunk[i:], sig)
			if j < 0 {
				break
			}
			offsets = append(offsets, base+int64(i+j))
			i += j + 1
		}

		if n < len(buf) {
			break
		}
		// a signature may straddle two reads
		base += int64(n - (len(sig) - 1))
	}
	return offsets, nil
}

var flateReaderPool sync.Pool

func newFlateReader(r io.Reader) io.ReadCloser {
	fr, ok := flateReaderPool.Get().(io.ReadCloser)
	if ok {
		fr.(flate.Resetter).Reset(r, nil)
	} else {
		fr = flate.NewReader(r)
	}
	return &pooledFlateReader{fr: fr}
}

type pooledFlateReader struct {
	mu sync.Mutex // guards Close and Read
	fr io.ReadCloser
}

func (r *pooledFlateReader) Read(p []byte) (n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fr == nil {
		return 0, errors.New("Read after Close")
	}
	return r.fr.Read(p)
}

func (r *pooledFlateReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	if r.fr != nil {
		err = r.fr.Close()
		flateReaderPool.Put(r.fr)
		r.fr = nil
	}
	return err
}
