package exfat

import (
	"errors"
	"unicode/utf16"
)

// EntryReader wraps a cluster stream and yields fixed 32-byte directory
// entries, annotating each with the cluster and within-cluster index it was
// read from. The index resets to 0 whenever the underlying stream crosses
// into a new cluster.
type EntryReader struct {
	csr        *ClusterStreamReader
	entryIndex int
}

// NewEntryReader wraps csr as an entry reader.
func NewEntryReader(csr *ClusterStreamReader) *EntryReader {
	return &EntryReader{csr: csr}
}

// Read consumes exactly 32 bytes from the underlying stream and returns them
// as a RawEntry.
func (er *EntryReader) Read() (RawEntry, error) {
	cluster := er.csr.CurrentCluster()
	index := er.entryIndex

	var data [32]byte

	if err := er.csr.ReadExact(data[:]); err != nil {
		return RawEntry{}, ReadFailedError{Index: index, Cluster: cluster, Cause: err}
	}

	// The stream moves to the next cluster at the start of the read that
	// first needs it, so a changed cluster means these 32 bytes are the
	// first entry of the new cluster.
	if er.csr.CurrentCluster() != cluster {
		cluster = er.csr.CurrentCluster()
		index = 0
	}

	er.entryIndex = index + 1

	return RawEntry{index: index, cluster: cluster, data: data}, nil
}

// RawEntry is an undecoded 32-byte directory entry plus the position it was
// read from.
type RawEntry struct {
	index   int
	cluster uint32
	data    [32]byte
}

// Type returns the entry's EntryType, decoded from byte 0.
func (re RawEntry) Type() EntryType {
	return EntryType(re.data[0])
}

// Index is the entry's position within its originating cluster.
func (re RawEntry) Index() int {
	return re.index
}

// Cluster is the entry's originating cluster index.
func (re RawEntry) Cluster() uint32 {
	return re.cluster
}

// Data is the entry's 32 raw bytes.
func (re RawEntry) Data() [32]byte {
	return re.data
}

// EntryType is the first byte of a directory entry, decomposed per §4.5 of
// the exFAT directory-entry layout.
type EntryType uint8

const (
	typeImportanceCritical = 0
	typeImportanceBenign   = 1
	typeCategoryPrimary    = 0
	typeCategorySecondary  = 1
)

// IsRegular reports whether this entry is neither end-of-directory (0x00)
// nor a deleted entry.
func (et EntryType) IsRegular() bool {
	return et >= 0x81
}

// TypeCode is bits 0-4.
func (et EntryType) TypeCode() uint8 {
	return uint8(et) & 0x1f
}

// TypeImportance is bit 5 (0 = critical, 1 = benign).
func (et EntryType) TypeImportance() uint8 {
	return (uint8(et) >> 5) & 1
}

// TypeCategory is bit 6 (0 = primary, 1 = secondary).
func (et EntryType) TypeCategory() uint8 {
	return (uint8(et) >> 6) & 1
}

// IsCriticalSecondary reports whether this is a regular, critical, secondary
// entry with the given type code.
func (et EntryType) IsCriticalSecondary(code uint8) bool {
	return et.IsRegular() &&
		et.TypeImportance() == typeImportanceCritical &&
		et.TypeCategory() == typeCategorySecondary &&
		et.TypeCode() == code
}

// SecondaryFlags is the GeneralSecondaryFlags byte carried by stream
// extension and filename entries.
type SecondaryFlags uint8

// AllocationPossible is bit 0: whether this entry owns a cluster allocation.
func (sf SecondaryFlags) AllocationPossible() bool {
	return sf&1 != 0
}

// NoFatChain is bit 1: whether the allocation is a contiguous run instead of
// a FAT chain.
func (sf SecondaryFlags) NoFatChain() bool {
	return sf&2 != 0
}

// FileAttributes is the 16-bit attribute field carried by a File entry.
type FileAttributes uint16

// IsReadOnly is bit 0.
func (fa FileAttributes) IsReadOnly() bool {
	return fa&0x0001 != 0
}

// IsHidden is bit 1.
func (fa FileAttributes) IsHidden() bool {
	return fa&0x0002 != 0
}

// IsSystem is bit 2.
func (fa FileAttributes) IsSystem() bool {
	return fa&0x0004 != 0
}

// IsDirectory is bit 4.
func (fa FileAttributes) IsDirectory() bool {
	return fa&0x0010 != 0
}

// IsArchive is bit 5.
func (fa FileAttributes) IsArchive() bool {
	return fa&0x0020 != 0
}

// ClusterAllocation is the FirstCluster/DataLength pair carried by any entry
// that owns cluster-heap space (allocation bitmap, up-case table, stream
// extension).
type ClusterAllocation struct {
	FirstCluster uint32
	DataLength   uint64
}

// loadClusterAllocation decodes FirstCluster (offset 20) and DataLength
// (offset 24) from a raw entry.
func loadClusterAllocation(re RawEntry) (ClusterAllocation, error) {
	data := re.data

	firstCluster := defaultEncoding.Uint32(data[20:24])
	dataLength := defaultEncoding.Uint64(data[24:32])

	if firstCluster == 0 {
		if dataLength != 0 {
			return ClusterAllocation{}, InvalidDataLengthError{}
		}
	} else if firstCluster == 1 {
		return ClusterAllocation{}, InvalidFirstClusterError{}
	}

	return ClusterAllocation{FirstCluster: firstCluster, DataLength: dataLength}, nil
}

// StreamEntry is the decoded Stream Extension directory entry that always
// immediately follows a File entry.
type StreamEntry struct {
	NoFatChain      bool
	NameLength      uint8
	ValidDataLength uint64
	Allocation      ClusterAllocation
}

// loadStreamEntry decodes raw as a Stream Extension entry, validating it
// against the attributes of the File entry it belongs to.
func loadStreamEntry(raw RawEntry, attrs FileAttributes) (StreamEntry, error) {
	data := raw.data
	flags := SecondaryFlags(data[1])

	if flags.AllocationPossible() != true {
		return StreamEntry{}, InvalidStreamExtensionError{Index: raw.index, Cluster: raw.cluster}
	}

	nameLength := data[3]
	if nameLength < 1 {
		return StreamEntry{}, InvalidStreamExtensionError{Index: raw.index, Cluster: raw.cluster}
	}

	validDataLength := defaultEncoding.Uint64(data[8:16])

	allocation, err := loadClusterAllocation(raw)
	if err != nil {
		return StreamEntry{}, InvalidStreamExtensionError{Index: raw.index, Cluster: raw.cluster}
	}

	if attrs.IsDirectory() == true {
		if validDataLength != allocation.DataLength {
			return StreamEntry{}, InvalidStreamExtensionError{Index: raw.index, Cluster: raw.cluster}
		}
	} else if validDataLength > allocation.DataLength {
		return StreamEntry{}, InvalidStreamExtensionError{Index: raw.index, Cluster: raw.cluster}
	}

	return StreamEntry{
		NoFatChain:      flags.NoFatChain(),
		NameLength:      nameLength,
		ValidDataLength: validDataLength,
		Allocation:      allocation,
	}, nil
}

// FileEntry is the fully-assembled logical record behind a File primary
// entry: its name, attributes, and stream.
type FileEntry struct {
	Name       string
	Attributes FileAttributes
	Stream     StreamEntry
}

// ceilDiv15 computes ceil(nameLength / 15) for the filename-entry count.
func ceilDiv15(nameLength uint8) int {
	return (int(nameLength) + 15 - 1) / 15
}

// assembleFileEntry reads and validates the Stream Extension and Filename
// entries that follow primary, per §4.8. It requires strict, contiguous
// sequencing: any deleted or out-of-place entry aborts assembly.
func assembleFileEntry(primary RawEntry, er *EntryReader) (FileEntry, error) {
	data := primary.data
	secondaryCount := int(data[1])
	attributes := FileAttributes(defaultEncoding.Uint16(data[4:6]))

	if secondaryCount < 1 {
		return FileEntry{}, NoStreamExtensionError{Index: primary.index, Cluster: primary.cluster}
	}

	if secondaryCount < 2 {
		return FileEntry{}, NoFileNameError{Index: primary.index, Cluster: primary.cluster}
	}

	streamRaw, err := er.Read()
	if err != nil {
		return FileEntry{}, err
	}

	if streamRaw.Type().IsCriticalSecondary(0) != true {
		return FileEntry{}, NotStreamExtensionError{Index: streamRaw.index, Cluster: streamRaw.cluster}
	}

	stream, err := loadStreamEntry(streamRaw, attributes)
	if err != nil {
		return FileEntry{}, err
	}

	nameCount := secondaryCount - 1
	names := make([]RawEntry, 0, nameCount)

	for i := 0; i < nameCount; i++ {
		entry, err := er.Read()
		if err != nil {
			return FileEntry{}, err
		}

		if entry.Type().IsCriticalSecondary(1) != true {
			return FileEntry{}, NotFileNameError{Index: entry.index, Cluster: entry.cluster}
		}

		names = append(names, entry)
	}

	if len(names) != ceilDiv15(stream.NameLength) {
		return FileEntry{}, WrongFileNamesError{Index: primary.index, Cluster: primary.cluster}
	}

	name, err := assembleFileName(names, int(stream.NameLength))
	if err != nil {
		return FileEntry{}, err
	}

	return FileEntry{Name: name, Attributes: attributes, Stream: stream}, nil
}

var errInvalidUTF16 = errors.New("invalid utf-16 sequence")

// assembleFileName concatenates the filename entries' code units (clamping
// the last entry's contribution to the remaining code-unit count, ignoring
// its zero-padded tail) and decodes the result as UTF-16, failing strictly
// on ill-formed sequences.
func assembleFileName(names []RawEntry, nameLength int) (string, error) {
	need := nameLength * 2
	var b []byte

	for _, entry := range names {
		data := entry.data
		flags := SecondaryFlags(data[1])

		if flags.AllocationPossible() == true {
			return "", InvalidFileNameError{Index: entry.index, Cluster: entry.cluster}
		}

		chunk := 30
		if need < chunk {
			chunk = need
		}

		rawName := data[2 : 2+chunk]
		need -= len(rawName)

		b = append(b, rawName...)
	}

	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = defaultEncoding.Uint16(b[i*2:])
	}

	name, err := decodeUTF16Strict(units)
	if err != nil {
		last := names[len(names)-1]
		return "", InvalidFileNameError{Index: last.index, Cluster: last.cluster}
	}

	return name, nil
}

// decodeUTF16Strict decodes units as UTF-16, failing on any lone or
// mismatched surrogate instead of substituting a replacement character.
// This mirrors the strict decode semantics of Rust's String::from_utf16,
// which the exFAT source material this package's filename handling is
// grounded on relies on.
func decodeUTF16Strict(units []uint16) (string, error) {
	runes := make([]rune, 0, len(units))

	for i := 0; i < len(units); i++ {
		u := units[i]

		switch {
		case u < 0xd800 || u > 0xdfff:
			runes = append(runes, rune(u))

		case u <= 0xdbff:
			if i+1 >= len(units) {
				return "", errInvalidUTF16
			}

			u2 := units[i+1]
			if u2 < 0xdc00 || u2 > 0xdfff {
				return "", errInvalidUTF16
			}

			runes = append(runes, utf16.DecodeRune(rune(u), rune(u2)))
			i++

		default:
			return "", errInvalidUTF16
		}
	}

	return string(runes), nil
}

// decodeUTF16Lossy decodes units as UTF-16, substituting the Unicode
// replacement character for any ill-formed surrogate instead of failing.
// Used for the volume label, per §4.9.
func decodeUTF16Lossy(units []uint16) string {
	return string(utf16.Decode(units))
}
