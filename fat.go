package exfat

import (
	"github.com/dsoprea/go-logging"
)

// badClusterSentinel marks a cluster as bad; chain traversal treats it as an
// end-of-chain terminator, not a bad-cluster error, since no write path
// exists to repair it.
const badClusterSentinel = 0xfffffff7

// Fat is the in-memory decode of one FAT region: a dense array of 32-bit
// cluster-link entries.
type Fat struct {
	entries []uint32
}

// loadFat reads and decodes the FAT region selected by index (0 or 1,
// matching VolumeFlags.ActiveFat()).
func loadFat(partition BlockSource, params Params, index uint64) (fat Fat, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = panicToError(errRaw)
		}
	}()

	fatLengthTimesIndex, overflowed := mulUint64(params.FatLength, index)
	if overflowed == true {
		return Fat{}, InvalidFatLengthError{}
	}

	sector, overflowed := addUint64(params.FatOffset, fatLengthTimesIndex)
	if overflowed == true {
		return Fat{}, InvalidFatOffsetError{}
	}

	offset, overflowed := mulUint64(sector, params.BytesPerSector())
	if overflowed == true {
		return Fat{}, InvalidFatOffsetError{}
	}

	count := uint64(params.ClusterCount) + 2
	raw := make([]byte, count*4)

	err = readExact(partition, int64(offset), raw)
	log.PanicIf(err)

	entries := make([]uint32, count)
	for i := range entries {
		entries[i] = defaultEncoding.Uint32(raw[i*4:])
	}

	return Fat{entries: entries}, nil
}

// mulUint64 multiplies two uint64s, reporting overflow instead of wrapping.
func mulUint64(a, b uint64) (result uint64, overflowed bool) {
	if a == 0 || b == 0 {
		return 0, false
	}

	result = a * b
	if result/b != a {
		return 0, true
	}

	return result, false
}

// addUint64 adds two uint64s, reporting overflow instead of wrapping.
func addUint64(a, b uint64) (result uint64, overflowed bool) {
	result = a + b
	if result < a {
		return 0, true
	}

	return result, false
}

// ClusterChain is a single-shot, lazy sequence of cluster indices produced
// by following FAT links starting at a given first cluster.
type ClusterChain struct {
	fat  Fat
	next uint32
	done bool
}

// GetClusterChain returns the chain starting at first. The chain is
// single-shot: calling Next repeatedly drains it.
func (fat Fat) GetClusterChain(first uint32) *ClusterChain {
	return &ClusterChain{
		fat:  fat,
		next: first,
	}
}

// Next returns the next cluster index in the chain, or ok=false once the
// chain has terminated (an out-of-range link or the bad-cluster sentinel).
// The chain never yields index 0 or 1.
func (cc *ClusterChain) Next() (cluster uint32, ok bool) {
	if cc.done == true {
		return 0, false
	}

	next := cc.next

	if next < 2 || uint64(next) >= uint64(len(cc.fat.entries)) || next == badClusterSentinel {
		cc.done = true
		return 0, false
	}

	cc.next = cc.fat.entries[next]

	return next, true
}
