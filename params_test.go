package exfat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeParamsValid(t *testing.T) {
	ib := newImageBuilder()
	ib.writeRootDirectory(
		buildAllocationEntry(entryTypeAllocationBitmap, 0, 3, 512),
		buildAllocationEntry(entryTypeUpcaseTable, 0, 4, 512),
	)

	params, err := decodeParams(newSource(ib.build()))
	require.NoError(t, err)

	assert.Equal(t, uint64(fixtureBytesPerSector), params.BytesPerSector())
	assert.Equal(t, uint64(1), params.SectorsPerCluster())
	assert.Equal(t, uint64(fixtureBytesPerCluster), params.BytesPerCluster())
	assert.Equal(t, uint32(fixtureClusterCount), params.ClusterCount)
}

func TestDecodeParamsRejectsBadSignature(t *testing.T) {
	ib := newImageBuilder()
	ib.fileSystemName = "FAT32   "
	ib.writeRootDirectory(
		buildAllocationEntry(entryTypeAllocationBitmap, 0, 3, 512),
		buildAllocationEntry(entryTypeUpcaseTable, 0, 4, 512),
	)

	_, err := decodeParams(newSource(ib.build()))
	var target NotExFatError
	assert.ErrorAs(t, err, &target)
}

func TestDecodeParamsRejectsBytesPerSectorShiftOutOfRange(t *testing.T) {
	ib := newImageBuilder()
	ib.writeRootDirectory(
		buildAllocationEntry(entryTypeAllocationBitmap, 0, 3, 512),
		buildAllocationEntry(entryTypeUpcaseTable, 0, 4, 512),
	)

	image := ib.build()
	image[108] = 8 // below the minimum of 9

	_, err := decodeParams(newSource(image))
	var target InvalidBytesPerSectorShiftError
	assert.ErrorAs(t, err, &target)
}

func TestDecodeParamsRejectsSectorsPerClusterShiftTooLarge(t *testing.T) {
	ib := newImageBuilder()
	ib.writeRootDirectory(
		buildAllocationEntry(entryTypeAllocationBitmap, 0, 3, 512),
		buildAllocationEntry(entryTypeUpcaseTable, 0, 4, 512),
	)

	image := ib.build()
	image[108] = 12 // bytes_per_sector_shift
	image[109] = 14 // sectors_per_cluster_shift, exceeds 25-12=13

	_, err := decodeParams(newSource(image))
	var target InvalidSectorsPerClusterShiftError
	assert.ErrorAs(t, err, &target)
}

func TestDecodeParamsRejectsBadNumberOfFats(t *testing.T) {
	ib := newImageBuilder()
	ib.numberOfFats = 3
	ib.writeRootDirectory(
		buildAllocationEntry(entryTypeAllocationBitmap, 0, 3, 512),
		buildAllocationEntry(entryTypeUpcaseTable, 0, 4, 512),
	)

	_, err := decodeParams(newSource(ib.build()))
	var target InvalidNumberOfFatsError
	assert.ErrorAs(t, err, &target)
}

func TestVolumeFlagsActiveFat(t *testing.T) {
	assert.Equal(t, uint8(0), VolumeFlags(0).ActiveFat())
	assert.Equal(t, uint8(1), VolumeFlags(1).ActiveFat())
	assert.Equal(t, uint8(1), VolumeFlags(3).ActiveFat())
}
