package exfat

import (
	"io"
	"math"

	"github.com/dsoprea/go-logging"
)

// EndOfStreamError is returned when a read is attempted past a cluster
// stream's declared maximum length, or past the end of its chain.
type EndOfStreamError struct{}

func (e EndOfStreamError) Error() string {
	return "end of cluster stream"
}

// InvalidFirstClusterForStreamError is returned when a cluster stream is
// constructed with a first cluster outside the valid cluster-heap range.
type InvalidFirstClusterForStreamError struct{}

func (e InvalidFirstClusterForStreamError) Error() string {
	return "invalid first cluster for stream"
}

// ClusterStreamReader turns (first cluster, optional max length,
// no_fat_chain) into a sequential byte stream over the cluster heap. It
// holds the only mutable state involved in reading a single stream: the
// current cluster and the offset within it.
type ClusterStreamReader struct {
	partition BlockSource
	params    Params
	fat       Fat

	noFatChain bool
	maxLength  uint64
	hasMax     bool

	chain *ClusterChain

	currentCluster     uint32
	clusterOffset      uint64
	bytesConsumedTotal uint64
	nextContiguous     uint32
	remainingClusters  uint64
	exhausted          bool
}

// NewClusterStreamReader constructs a reader over the cluster (or chain of
// clusters) starting at first. maxLength, if hasMax, bounds the total number
// of logical bytes the stream will yield. It fails if first is outside the
// valid cluster-heap range, or — for a chained stream — if the chain is
// immediately empty.
func NewClusterStreamReader(partition BlockSource, params Params, fat Fat, first uint32, maxLength uint64, hasMax bool, noFatChain bool) (csr *ClusterStreamReader, err error) {
	if first < 2 || uint64(first) >= uint64(params.ClusterCount)+2 {
		return nil, InvalidFirstClusterForStreamError{}
	}

	csr = &ClusterStreamReader{
		partition:      partition,
		params:         params,
		fat:            fat,
		noFatChain:     noFatChain,
		maxLength:      maxLength,
		hasMax:         hasMax,
		currentCluster: first,
	}

	if noFatChain == true {
		bytesPerCluster := params.BytesPerCluster()
		clusterCount := uint64(math.MaxUint64 / bytesPerCluster)

		if hasMax == true && bytesPerCluster > 0 {
			clusterCount = (maxLength + bytesPerCluster - 1) / bytesPerCluster
			if clusterCount == 0 {
				clusterCount = 1
			}
		}

		csr.nextContiguous = first + 1
		csr.remainingClusters = clusterCount - 1
	} else {
		csr.chain = fat.GetClusterChain(first)

		// Prime the chain: the first cluster is `first` itself, so advance
		// past it once so subsequent transitions pull the *next* link.
		cluster, ok := csr.chain.Next()
		if ok == false || cluster != first {
			return nil, InvalidFirstClusterForStreamError{}
		}
	}

	return csr, nil
}

// CurrentCluster returns the cluster currently being consumed.
func (csr *ClusterStreamReader) CurrentCluster() uint32 {
	return csr.currentCluster
}

func (csr *ClusterStreamReader) clusterByteOffset(cluster uint32) uint64 {
	return csr.params.ClusterHeapOffset*csr.params.BytesPerSector() + uint64(cluster-2)*csr.params.SectorsPerCluster()*csr.params.BytesPerSector()
}

// advance moves to the next cluster in the stream, per the active traversal
// mode. It returns false once the stream has no further clusters.
func (csr *ClusterStreamReader) advance() bool {
	if csr.noFatChain == true {
		if csr.remainingClusters == 0 {
			return false
		}

		csr.currentCluster = csr.nextContiguous
		csr.nextContiguous++
		csr.remainingClusters--

		return true
	}

	cluster, ok := csr.chain.Next()
	if ok == false {
		return false
	}

	csr.currentCluster = cluster

	return true
}

// ReadExact fills buffer completely from the logical stream, advancing
// across cluster boundaries (and, for chained streams, following the FAT)
// as needed. It fails with EndOfStreamError if the stream (or its declared
// maximum length) is exhausted before buffer is filled.
func (csr *ClusterStreamReader) ReadExact(buffer []byte) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = panicToError(errRaw)
		}
	}()

	bytesPerCluster := csr.params.BytesPerCluster()
	written := 0

	for written < len(buffer) {
		if csr.exhausted == true {
			return EndOfStreamError{}
		}

		if csr.hasMax == true && csr.bytesConsumedTotal >= csr.maxLength {
			return EndOfStreamError{}
		}

		if csr.clusterOffset >= bytesPerCluster {
			if csr.advance() == false {
				csr.exhausted = true
				return EndOfStreamError{}
			}

			csr.clusterOffset = 0
		}

		remainingInCluster := bytesPerCluster - csr.clusterOffset
		remainingInBuffer := uint64(len(buffer) - written)
		chunk := remainingInCluster

		if remainingInBuffer < chunk {
			chunk = remainingInBuffer
		}

		if csr.hasMax == true {
			remainingInMax := csr.maxLength - csr.bytesConsumedTotal
			if remainingInMax < chunk {
				chunk = remainingInMax
			}
		}

		if chunk == 0 {
			csr.exhausted = true
			return EndOfStreamError{}
		}

		offset := csr.clusterByteOffset(csr.currentCluster) + csr.clusterOffset

		err = readExact(csr.partition, int64(offset), buffer[written:uint64(written)+chunk])
		log.PanicIf(err)

		written += int(chunk)
		csr.clusterOffset += chunk
		csr.bytesConsumedTotal += chunk
	}

	return nil
}

var _ io.Reader = (*clusterStreamIoReader)(nil)

// clusterStreamIoReader adapts a length-bounded ClusterStreamReader to
// io.Reader for callers (e.g. io.Copy-based file extraction) that want the
// standard interface instead of the exact-fill contract above. It requires
// the wrapped reader to have been constructed with hasMax=true.
type clusterStreamIoReader struct {
	csr *ClusterStreamReader
}

func (r *clusterStreamIoReader) Read(p []byte) (int, error) {
	remaining := r.csr.maxLength - r.csr.bytesConsumedTotal
	if remaining == 0 {
		return 0, io.EOF
	}

	chunk := uint64(len(p))
	if remaining < chunk {
		chunk = remaining
	}

	if chunk == 0 {
		return 0, io.EOF
	}

	if err := r.csr.ReadExact(p[:chunk]); err != nil {
		return 0, err
	}

	return int(chunk), nil
}
