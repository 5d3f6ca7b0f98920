package exfat

import (
	"encoding/binary"
	"unicode/utf16"
)

// Fixture geometry shared by the synthetic images built in this package's
// tests: 512-byte sectors, one sector per cluster, an 8-cluster heap. These
// numbers are arbitrary but self-consistent; nothing in the decoder cares
// about their specific values beyond the range checks in §4.1.
const (
	fixtureBytesPerSectorShift    = 9
	fixtureSectorsPerClusterShift = 0
	fixtureFatOffsetSectors       = 8
	fixtureFatLengthSectors       = 1
	fixtureClusterHeapOffsetSectors = 9
	fixtureClusterCount           = 8
	fixtureRootCluster            = 2
	fixtureBytesPerSector         = 1 << fixtureBytesPerSectorShift
	fixtureBytesPerCluster        = fixtureBytesPerSector << fixtureSectorsPerClusterShift
)

// clusterOffset returns the byte offset of cluster in the fixture's heap.
func clusterOffset(cluster uint32) int {
	return fixtureClusterHeapOffsetSectors*fixtureBytesPerSector + int(cluster-2)*fixtureBytesPerCluster
}

// imageBuilder assembles a synthetic exFAT image one region at a time.
type imageBuilder struct {
	image           []byte
	fileSystemName  string
	numberOfFats    uint8
	volumeFlags     uint16
	clusterCount    uint32
	rootCluster     uint32
	fatEntries      map[uint32]uint32
}

func newImageBuilder() *imageBuilder {
	size := clusterOffset(2+fixtureClusterCount) + fixtureBytesPerCluster

	return &imageBuilder{
		image:          make([]byte, size),
		fileSystemName: "EXFAT   ",
		numberOfFats:   1,
		volumeFlags:    0,
		clusterCount:   fixtureClusterCount,
		rootCluster:    fixtureRootCluster,
		fatEntries:     make(map[uint32]uint32),
	}
}

// setChainEnd marks cluster as the last link in its chain (an out-of-range
// terminator, matching how real exFAT media marks end-of-chain).
func (ib *imageBuilder) setChainEnd(cluster uint32) {
	ib.fatEntries[cluster] = 0xffffffff
}

// setChainNext links cluster to next.
func (ib *imageBuilder) setChainNext(cluster, next uint32) {
	ib.fatEntries[cluster] = next
}

// writeCluster copies data into the start of cluster's region.
func (ib *imageBuilder) writeCluster(cluster uint32, data []byte) {
	off := clusterOffset(cluster)
	copy(ib.image[off:off+fixtureBytesPerCluster], data)
}

// writeRootDirectory lays out entries (each a 32-byte raw directory entry)
// into the root cluster, followed by an end-of-directory terminator.
func (ib *imageBuilder) writeRootDirectory(entries ...[32]byte) {
	ib.writeDirectory(ib.rootCluster, entries...)
	ib.setChainEnd(ib.rootCluster)
}

func (ib *imageBuilder) writeDirectory(cluster uint32, entries ...[32]byte) {
	buf := make([]byte, 0, fixtureBytesPerCluster)

	for _, e := range entries {
		buf = append(buf, e[:]...)
	}

	// Terminator: 32 zero bytes (EntryType 0x00).
	buf = append(buf, make([]byte, 32)...)

	ib.writeCluster(cluster, buf)
}

// build finalizes the image: writes the boot sector and FAT region from the
// accumulated state, and returns the complete byte slice.
func (ib *imageBuilder) build() []byte {
	var boot [512]byte

	copy(boot[3:11], []byte(ib.fileSystemName))

	binary.LittleEndian.PutUint32(boot[80:84], fixtureFatOffsetSectors)
	binary.LittleEndian.PutUint32(boot[84:88], fixtureFatLengthSectors)
	binary.LittleEndian.PutUint32(boot[88:92], fixtureClusterHeapOffsetSectors)
	binary.LittleEndian.PutUint32(boot[92:96], ib.clusterCount)
	binary.LittleEndian.PutUint32(boot[96:100], ib.rootCluster)
	binary.LittleEndian.PutUint16(boot[106:108], ib.volumeFlags)
	boot[108] = fixtureBytesPerSectorShift
	boot[109] = fixtureSectorsPerClusterShift
	boot[110] = ib.numberOfFats

	copy(ib.image[0:512], boot[:])

	fatOff := fixtureFatOffsetSectors * fixtureBytesPerSector
	fat := make([]byte, (ib.clusterCount+2)*4)

	for cluster, next := range ib.fatEntries {
		binary.LittleEndian.PutUint32(fat[cluster*4:], next)
	}

	copy(ib.image[fatOff:fatOff+len(fat)], fat)

	return ib.image
}

func newSource(image []byte) BlockSource {
	return NewBlockSourceFromBytes(image)
}

// --- 32-byte directory entry builders, per §4.5-§4.8. ---

const (
	entryTypeAllocationBitmap = 0x81
	entryTypeUpcaseTable      = 0x82
	entryTypeVolumeLabel      = 0x83
	entryTypeFile             = 0x85
	entryTypeStreamExtension  = 0xc0
	entryTypeFileName         = 0xc1
)

func buildAllocationEntry(entryType byte, flags byte, firstCluster uint32, dataLength uint64) [32]byte {
	var e [32]byte

	e[0] = entryType
	e[1] = flags

	binary.LittleEndian.PutUint32(e[20:24], firstCluster)
	binary.LittleEndian.PutUint64(e[24:32], dataLength)

	return e
}

func buildVolumeLabelEntry(label string) [32]byte {
	var e [32]byte

	units := utf16.Encode([]rune(label))

	e[0] = entryTypeVolumeLabel
	e[1] = byte(len(units))

	for i, u := range units {
		binary.LittleEndian.PutUint16(e[2+i*2:], u)
	}

	return e
}

func buildFileEntry(secondaryCount uint8, attributes uint16) [32]byte {
	var e [32]byte

	e[0] = entryTypeFile
	e[1] = secondaryCount

	binary.LittleEndian.PutUint16(e[4:6], attributes)

	return e
}

func buildStreamExtensionEntry(noFatChain bool, nameLength uint8, validDataLength uint64, firstCluster uint32, dataLength uint64) [32]byte {
	var e [32]byte

	e[0] = entryTypeStreamExtension

	flags := byte(1)
	if noFatChain == true {
		flags |= 2
	}

	e[1] = flags
	e[3] = nameLength

	binary.LittleEndian.PutUint64(e[8:16], validDataLength)
	binary.LittleEndian.PutUint32(e[20:24], firstCluster)
	binary.LittleEndian.PutUint64(e[24:32], dataLength)

	return e
}

// buildFileNameEntries splits name into ceil(len(units)/15) filename
// entries, zero-padding the tail of the last one.
func buildFileNameEntries(name string) [][32]byte {
	units := utf16.Encode([]rune(name))
	return buildFileNameEntriesFromUnits(units, len(units))
}

// buildFileNameEntriesFromUnits builds ceil(nameLength/15) filename entries,
// consuming exactly nameLength code units from units (ignoring any beyond
// it) and zero-padding the tail of the last entry.
func buildFileNameEntriesFromUnits(units []uint16, nameLength int) [][32]byte {
	count := (nameLength + 14) / 15
	entries := make([][32]byte, count)

	consumed := 0

	for i := 0; i < count; i++ {
		var e [32]byte
		e[0] = entryTypeFileName

		remaining := nameLength - consumed
		chunk := 15
		if remaining < chunk {
			chunk = remaining
		}

		for j := 0; j < chunk; j++ {
			binary.LittleEndian.PutUint16(e[2+j*2:], units[consumed+j])
		}

		consumed += chunk
		entries[i] = e
	}

	return entries
}
