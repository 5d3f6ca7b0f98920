// This package implements a read-only decoder for the exFAT on-disk
// filesystem format: boot-sector validation, FAT traversal, clustered-stream
// reading and directory-entry-set assembly.

package exfat

import (
	"io"
	"sync"

	"github.com/dsoprea/go-logging"
	"github.com/xaionaro-go/bytesextra"
)

// BlockSource is the random-access, byte-addressed external collaborator
// that every mounted volume reads through. Offsets are absolute from the
// start of the partition; short reads are errors, matching io.ReaderAt's
// contract.
type BlockSource interface {
	ReadAt(buffer []byte, offset int64) (int, error)
}

func readExact(bs BlockSource, offset int64, buffer []byte) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = panicToError(errRaw)
		}
	}()

	n, err := bs.ReadAt(buffer, offset)
	if err != nil {
		log.PanicIf(err)
	} else if n != len(buffer) {
		log.Panicf("short read at offset (%d): (%d) != (%d)", offset, n, len(buffer))
	}

	return nil
}

// seekerBlockSource adapts an io.ReadWriteSeeker (e.g. a stream-backed image
// that doesn't natively support io.ReaderAt, such as the byte-slice streams
// vended by bytesextra.NewReadWriteSeeker) into a BlockSource. Reads serialize
// on a single mutex since Seek and Read aren't atomic together.
type seekerBlockSource struct {
	mu sync.Mutex
	rws io.ReadWriteSeeker
}

// NewBlockSourceFromSeeker wraps a seekable stream as a BlockSource. This is
// the glue used when the only thing available is an io.ReadWriteSeeker, e.g.
// an in-memory image built with bytesextra.NewReadWriteSeeker for a test
// fixture.
func NewBlockSourceFromSeeker(rws io.ReadWriteSeeker) BlockSource {
	return &seekerBlockSource{rws: rws}
}

func (sbs *seekerBlockSource) ReadAt(buffer []byte, offset int64) (int, error) {
	sbs.mu.Lock()
	defer sbs.mu.Unlock()

	if _, err := sbs.rws.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}

	return io.ReadFull(sbs.rws, buffer)
}

// NewBlockSourceFromBytes wraps a raw in-memory image as a BlockSource.
func NewBlockSourceFromBytes(image []byte) BlockSource {
	return NewBlockSourceFromSeeker(bytesextra.NewReadWriteSeeker(image))
}
