package vcf

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// ErrTraversalActive is returned when a traversal is started while another one
// on the same Reader has not finished.
var ErrTraversalActive = errors.New("vcf: traversal already in progress")

// Reader streams VCF data lines after a validated header.
// Every traversal restarts at the first data line.
type Reader struct {
	mu          sync.Mutex
	src         source
	header      *Header
	dataOffset  int64 // decompressed byte offset of the first data line
	headerLines int64
}

// Open opens a VCF file. Paths ending in .gz are read through gzip.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vcf file: %w", err)
	}

	var src source
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		src = &gzipSource{file: file}
	} else {
		src = &seekSource{rs: file, closer: file}
	}

	r, err := newReader(src)
	if err != nil {
		src.Close()
		return nil, err
	}
	return r, nil
}

// NewReader creates a Reader over uncompressed VCF text.
func NewReader(rs io.ReadSeeker) (*Reader, error) {
	return newReader(&seekSource{rs: rs})
}

func newReader(src source) (*Reader, error) {
	rd, err := src.rewind(0)
	if err != nil {
		return nil, fmt.Errorf("read vcf header: %w", err)
	}
	r := &Reader{src: src}
	if err := r.readHeader(bufio.NewReader(rd)); err != nil {
		return nil, err
	}
	return r, nil
}

// readHeader consumes ## meta lines and the #CHROM line, recording where data starts.
func (r *Reader) readHeader(br *bufio.Reader) error {
	var meta []string
	for {
		raw, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("read header: %w", err)
		}
		if raw == "" && err == io.EOF {
			break
		}
		r.dataOffset += int64(len(raw))
		r.headerLines++

		line := strings.TrimSpace(raw)
		switch {
		case line == "":
		case strings.HasPrefix(line, "##"):
			meta = append(meta, line)
		case strings.HasPrefix(line, "#CHROM"):
			h, herr := ParseHeader(line)
			if herr != nil {
				return &ParseError{Line: r.headerLines, Message: "invalid #CHROM header line", Err: herr}
			}
			h.Meta = meta
			r.header = h
			return nil
		case strings.HasPrefix(line, "#"):
			return &ParseError{Line: r.headerLines, Message: "unexpected header line before #CHROM"}
		default:
			return &ParseError{Line: r.headerLines, Message: "expected #CHROM header line before data lines"}
		}

		if err == io.EOF {
			break
		}
	}

	return &ParseError{Line: r.headerLines, Message: "no #CHROM header line found"}
}

// Header returns the validated header.
func (r *Reader) Header() *Header {
	return r.header
}

// HeaderLines returns the number of lines preceding the first data line.
func (r *Reader) HeaderLines() int64 {
	return r.headerLines
}

// Traverse calls fn for each data line with its zero-based index.
// A non-nil error from fn stops the traversal and is returned.
func (r *Reader) Traverse(fn func(line string, index int64) error) error {
	if !r.mu.TryLock() {
		return ErrTraversalActive
	}
	defer r.mu.Unlock()

	var index int64
	return r.scan(func(line string) error {
		err := fn(line, index)
		index++
		return err
	})
}

// TraverseBatch calls fn with consecutive groups of up to limit data lines.
// The final group may be shorter. A non-nil error from fn stops the traversal.
func (r *Reader) TraverseBatch(limit int, fn func(lines []string) error) error {
	if limit < 1 {
		return fmt.Errorf("vcf: batch limit must be positive, got %d", limit)
	}
	if !r.mu.TryLock() {
		return ErrTraversalActive
	}
	defer r.mu.Unlock()

	lines := make([]string, 0, limit)
	err := r.scan(func(line string) error {
		lines = append(lines, line)
		if len(lines) < limit {
			return nil
		}
		batch := lines
		lines = make([]string, 0, limit)
		return fn(batch)
	})
	if err != nil {
		return err
	}
	if len(lines) > 0 {
		return fn(lines)
	}
	return nil
}

func (r *Reader) scan(fn func(line string) error) error {
	rd, err := r.src.rewind(r.dataOffset)
	if err != nil {
		return fmt.Errorf("rewind vcf: %w", err)
	}
	br := bufio.NewReader(rd)
	for {
		raw, err := br.ReadString('\n')
		if raw != "" {
			if ferr := fn(strings.TrimRight(raw, "\r\n")); ferr != nil {
				return ferr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read variant line: %w", err)
		}
	}
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.src.Close()
}

// source yields a reader positioned at a decompressed byte offset.
type source interface {
	rewind(offset int64) (io.Reader, error)
	Close() error
}

type seekSource struct {
	rs     io.ReadSeeker
	closer io.Closer
}

func (s *seekSource) rewind(offset int64) (io.Reader, error) {
	if _, err := s.rs.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	return s.rs, nil
}

func (s *seekSource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// gzipSource cannot seek in decompressed space, so it restarts the stream and
// discards bytes up to the offset.
type gzipSource struct {
	file *os.File
	zr   *gzip.Reader
}

func (s *gzipSource) rewind(offset int64) (io.Reader, error) {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	if s.zr == nil {
		zr, err := gzip.NewReader(s.file)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		s.zr = zr
	} else if err := s.zr.Reset(s.file); err != nil {
		return nil, fmt.Errorf("reset gzip reader: %w", err)
	}
	if offset > 0 {
		if _, err := io.CopyN(io.Discard, s.zr, offset); err != nil {
			return nil, fmt.Errorf("skip vcf header: %w", err)
		}
	}
	return s.zr, nil
}

func (s *gzipSource) Close() error {
	if s.zr != nil {
		s.zr.Close()
	}
	return s.file.Close()
}
