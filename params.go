package exfat

import (
	"bytes"
	"encoding/binary"

	"github.com/dsoprea/go-logging"
	"github.com/go-restruct/restruct"
)

var (
	requiredFileSystemName = []byte("EXFAT   ")

	// defaultEncoding is the byte order of every multi-byte field on an
	// exFAT volume.
	defaultEncoding = binary.LittleEndian
)

// VolumeFlags carries the status bits from the boot sector's VolumeFlags
// field.
type VolumeFlags uint16

const volumeFlagActiveFat VolumeFlags = 1

// ActiveFat returns the active-FAT bit (0 or 1): which FAT and Allocation
// Bitmap pair this volume currently considers current.
func (vf VolumeFlags) ActiveFat() uint8 {
	if vf&volumeFlagActiveFat != 0 {
		return 1
	}

	return 0
}

// bootSectorLayout mirrors the on-disk, 512-byte Main Boot Sector tightly
// enough for restruct to derive every field's byte offset from its position
// in this struct; unused regions are preserved as padding so the fields this
// package cares about land on the correct offsets.
type bootSectorLayout struct {
	JumpBoot                    [3]byte
	FileSystemName              [8]byte
	MustBeZero                  [53]byte
	PartitionOffset             uint64
	VolumeLength                uint64
	FatOffset                   uint32
	FatLength                   uint32
	ClusterHeapOffset           uint32
	ClusterCount                uint32
	FirstClusterOfRootDirectory uint32
	VolumeSerialNumber          uint32
	FileSystemRevision          [2]uint8
	VolumeFlags                 VolumeFlags
	BytesPerSectorShift         uint8
	SectorsPerClusterShift      uint8
	NumberOfFats                uint8
	DriveSelect                 uint8
	PercentInUse                uint8
	Reserved                    [7]byte
	BootCode                    [390]byte
	BootSignature               uint16
}

// Params holds the filesystem geometry and location constants decoded from
// the boot sector. It's built once at mount and never changes afterward.
type Params struct {
	FatOffset                uint64
	FatLength                uint64
	ClusterHeapOffset        uint64
	ClusterCount             uint32
	FirstClusterOfRootDirectory uint32
	VolumeFlags              VolumeFlags
	BytesPerSectorShift      uint8
	SectorsPerClusterShift   uint8
	NumberOfFats             uint8
}

// BytesPerSector is 2^BytesPerSectorShift.
func (p Params) BytesPerSector() uint64 {
	return uint64(1) << p.BytesPerSectorShift
}

// SectorsPerCluster is 2^SectorsPerClusterShift.
func (p Params) SectorsPerCluster() uint64 {
	return uint64(1) << p.SectorsPerClusterShift
}

// BytesPerCluster is the size, in bytes, of a single cluster.
func (p Params) BytesPerCluster() uint64 {
	return p.SectorsPerCluster() * p.BytesPerSector()
}

// decodeParams reads and validates the Main Boot Sector, returning the
// parameters it describes.
func decodeParams(partition BlockSource) (params Params, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = panicToError(errRaw)
		}
	}()

	raw := make([]byte, 512)

	err = readExact(partition, 0, raw)
	log.PanicIf(err)

	if bytes.Equal(raw[3:11], requiredFileSystemName) != true {
		return Params{}, NotExFatError{}
	}

	for _, c := range raw[11:64] {
		if c != 0 {
			return Params{}, NotExFatError{}
		}
	}

	var bsl bootSectorLayout

	err = restruct.Unpack(raw, defaultEncoding, &bsl)
	log.PanicIf(err)

	if bsl.BytesPerSectorShift < 9 || bsl.BytesPerSectorShift > 12 {
		return Params{}, InvalidBytesPerSectorShiftError{}
	}

	if bsl.SectorsPerClusterShift > (25 - bsl.BytesPerSectorShift) {
		return Params{}, InvalidSectorsPerClusterShiftError{}
	}

	if bsl.NumberOfFats != 1 && bsl.NumberOfFats != 2 {
		return Params{}, InvalidNumberOfFatsError{}
	}

	params = Params{
		FatOffset:                   uint64(bsl.FatOffset),
		FatLength:                   uint64(bsl.FatLength),
		ClusterHeapOffset:           uint64(bsl.ClusterHeapOffset),
		ClusterCount:                bsl.ClusterCount,
		FirstClusterOfRootDirectory: bsl.FirstClusterOfRootDirectory,
		VolumeFlags:                 bsl.VolumeFlags,
		BytesPerSectorShift:         bsl.BytesPerSectorShift,
		SectorsPerClusterShift:      bsl.SectorsPerClusterShift,
		NumberOfFats:                bsl.NumberOfFats,
	}

	return params, nil
}
