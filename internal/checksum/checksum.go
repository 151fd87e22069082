package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"github.com/spf13/afero"
)

// ChunkSize is the read size used when streaming a file into the hash.
const ChunkSize = 4096

// Size is the length of a Digest in bytes.
const Size = sha256.Size

// Digest is the content fingerprint of a file.
// Two files are considered identical when their digests are equal.
type Digest [Size]byte

// String returns the lowercase hex form of the digest
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether the digest was never set
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// ParseDigest parses a hex encoded digest
func ParseDigest(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("decode digest: %w", err)
	}
	if len(b) != Size {
		return d, fmt.Errorf("invalid digest length: got %d bytes, want %d", len(b), Size)
	}
	copy(d[:], b)
	return d, nil
}

// ReadFailure is returned when a file could not be read for fingerprinting.
// Callers treat it as "skip this file", never as a reason to stop a scan.
type ReadFailure struct {
	Path string
	Err  error
}

func (e *ReadFailure) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *ReadFailure) Unwrap() error {
	return e.Err
}

// Fingerprinter computes content digests of files on a filesystem
type Fingerprinter struct {
	fs afero.Fs
}

// New creates a Fingerprinter reading from fs
func New(fs afero.Fs) *Fingerprinter {
	return &Fingerprinter{fs: fs}
}

// Digest calculates the digest of the file at path.
// Any failure is returned as a *ReadFailure.
func (f *Fingerprinter) Digest(path string) (Digest, error) {
	file, err := f.fs.Open(path)
	if err != nil {
		return Digest{}, &ReadFailure{Path: path, Err: fmt.Errorf("open file: %w", err)}
	}
	defer file.Close()

	d, err := DigestReader(file)
	if err != nil {
		return Digest{}, &ReadFailure{Path: path, Err: err}
	}
	return d, nil
}

// DigestReader calculates the digest of everything read from r
func DigestReader(r io.Reader) (Digest, error) {
	h := sha256.New()
	buffer := make([]byte, ChunkSize)

	for {
		n, err := r.Read(buffer)
		if n > 0 {
			if _, err := h.Write(buffer[:n]); err != nil {
				return Digest{}, fmt.Errorf("write to hash: %w", err)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Digest{}, fmt.Errorf("read: %w", err)
		}
	}

	return sum(h), nil
}

// TeeReaderWithChecksum creates a reader that calculates the digest while reading
type TeeReaderWithChecksum struct {
	reader io.Reader
	hash   hash.Hash
	digest Digest
	done   bool
}

// NewTeeReaderWithChecksum creates a new TeeReaderWithChecksum
func NewTeeReaderWithChecksum(r io.Reader) *TeeReaderWithChecksum {
	return &TeeReaderWithChecksum{
		reader: r,
		hash:   sha256.New(),
	}
}

// Read implements io.Reader
func (t *TeeReaderWithChecksum) Read(p []byte) (n int, err error) {
	n, err = t.reader.Read(p)
	if n > 0 {
		if _, werr := t.hash.Write(p[:n]); werr != nil {
			return n, werr
		}
	}
	if err == io.EOF {
		t.done = true
		t.digest = sum(t.hash)
	}
	return n, err
}

// Digest returns the calculated digest (only valid after EOF)
func (t *TeeReaderWithChecksum) Digest() (Digest, error) {
	if !t.done {
		return Digest{}, fmt.Errorf("digest not yet calculated (read not complete)")
	}
	return t.digest, nil
}

func sum(h hash.Hash) Digest {
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}
