package exfat

import (
	"bytes"
	"io"
)

// File is a lazily-readable file: it carries the shared volume handle,
// name, and stream, but doesn't construct a cluster stream until Reader is
// called.
type File struct {
	volume     *volumeHandle
	name       string
	attributes FileAttributes
	stream     StreamEntry
}

func newFile(volume *volumeHandle, name string, attributes FileAttributes, stream StreamEntry) *File {
	return &File{
		volume:     volume,
		name:       name,
		attributes: attributes,
		stream:     stream,
	}
}

// Name returns the file's decoded filename.
func (f *File) Name() string {
	return f.name
}

// Attributes returns the file's FileAttributes.
func (f *File) Attributes() FileAttributes {
	return f.attributes
}

// Size returns the file's valid data length, in bytes: the bound Reader
// enforces.
func (f *File) Size() uint64 {
	return f.stream.ValidDataLength
}

// Reader returns an io.Reader over the file's content, bounded by
// valid_data_length (not the allocation's data_length), per §4.10. Reads
// use the chained or contiguous cluster-stream mode indicated by the
// stream extension's no_fat_chain flag.
func (f *File) Reader() (io.Reader, error) {
	if f.stream.ValidDataLength == 0 {
		return bytes.NewReader(nil), nil
	}

	csr, err := f.volume.newClusterStream(f.stream.Allocation, f.stream.NoFatChain)
	if err != nil {
		return nil, err
	}

	csr.maxLength = f.stream.ValidDataLength

	return &clusterStreamIoReader{csr: csr}, nil
}
