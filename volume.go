package exfat

// volumeHandle is the shared, immutable context every Root, Directory, and
// File derived from one mount holds a reference to: the partition, its
// decoded parameters, and its active FAT. Go's garbage collector keeps it
// alive for as long as any derived value still points to it, which is all
// the "reference-counted lifetime" this package needs.
type volumeHandle struct {
	partition BlockSource
	params    Params
	fat       Fat
}

func (vh *volumeHandle) newRootClusterStream() (*ClusterStreamReader, error) {
	return NewClusterStreamReader(vh.partition, vh.params, vh.fat, vh.params.FirstClusterOfRootDirectory, 0, false, false)
}

func (vh *volumeHandle) newClusterStream(alloc ClusterAllocation, noFatChain bool) (*ClusterStreamReader, error) {
	if alloc.FirstCluster == 0 {
		return nil, InvalidFirstClusterForStreamError{}
	}

	return NewClusterStreamReader(vh.partition, vh.params, vh.fat, alloc.FirstCluster, alloc.DataLength, true, noFatChain)
}

// Item is satisfied by *File and *Directory, the two kinds of entries a
// Root or Directory can contain.
type Item interface {
	Name() string
	Attributes() FileAttributes
}

// Root is the decoded root directory of a mounted exFAT volume: its volume
// label (if any) and its top-level items, computed eagerly at mount time.
type Root struct {
	volume      *volumeHandle
	volumeLabel string
	hasLabel    bool
	items       []Item
}

// Open mounts the exFAT volume described by partition, per §4.9: it decodes
// the boot sector, loads the active FAT, and walks the root directory's
// entry set, returning a Root on success.
func Open(partition BlockSource) (root *Root, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = panicToError(errRaw)
		}
	}()

	params, err := decodeParams(partition)
	if err != nil {
		return nil, err
	}

	activeFat := params.VolumeFlags.ActiveFat()
	if params.NumberOfFats == 1 && activeFat == 1 {
		return nil, InvalidNumberOfFatsError{}
	}

	fat, err := loadFat(partition, params, uint64(activeFat))
	if err != nil {
		return nil, err
	}

	volume := &volumeHandle{
		partition: partition,
		params:    params,
		fat:       fat,
	}

	csr, err := volume.newRootClusterStream()
	if err != nil {
		return nil, err
	}

	er := NewEntryReader(csr)

	var allocationBitmaps [2]*ClusterAllocation
	hasUpcaseTable := false
	hasVolumeLabel := false
	volumeLabel := ""
	items := make([]Item, 0)

	for {
		entry, err := er.Read()
		if err != nil {
			return nil, err
		}

		ty := entry.Type()

		if ty.IsRegular() != true {
			break
		}

		if ty.TypeCategory() == typeCategorySecondary {
			return nil, NotPrimaryEntryError{Index: entry.Index(), Cluster: entry.Cluster()}
		}

		switch {
		case ty.TypeImportance() == typeImportanceCritical && ty.TypeCode() == 1:
			slot := 0
			if allocationBitmaps[0] != nil {
				if allocationBitmaps[1] != nil {
					return nil, TooManyAllocationBitmapError{}
				}

				slot = 1
			}

			bitmapFlags := int(entry.data[1])
			if (bitmapFlags & 1) != slot {
				return nil, WrongAllocationBitmapError{}
			}

			alloc, err := loadClusterAllocation(entry)
			if err != nil {
				return nil, err
			}

			allocationBitmaps[slot] = &alloc

		case ty.TypeImportance() == typeImportanceCritical && ty.TypeCode() == 2:
			if hasUpcaseTable == true {
				return nil, MultipleUpcaseTableError{}
			}

			if _, err := loadClusterAllocation(entry); err != nil {
				return nil, err
			}

			hasUpcaseTable = true

		case ty.TypeImportance() == typeImportanceCritical && ty.TypeCode() == 3:
			if hasVolumeLabel == true {
				return nil, MultipleVolumeLabelError{}
			}

			characterCount := int(entry.data[1])
			if characterCount > 11 {
				return nil, InvalidVolumeLabelError{}
			}

			units := make([]uint16, characterCount)
			for i := 0; i < characterCount; i++ {
				units[i] = defaultEncoding.Uint16(entry.data[2+i*2 : 4+i*2])
			}

			volumeLabel = decodeUTF16Lossy(units)
			hasVolumeLabel = true

		case ty.TypeImportance() == typeImportanceCritical && ty.TypeCode() == 5:
			fileEntry, err := assembleFileEntry(entry, er)
			if err != nil {
				return nil, err
			}

			if fileEntry.Attributes.IsDirectory() == true {
				items = append(items, newDirectory(volume, fileEntry.Name, fileEntry.Attributes, fileEntry.Stream))
			} else {
				items = append(items, newFile(volume, fileEntry.Name, fileEntry.Attributes, fileEntry.Stream))
			}

		default:
			return nil, UnknownEntryError{Index: entry.Index(), Cluster: entry.Cluster()}
		}
	}

	if params.NumberOfFats == 2 {
		if allocationBitmaps[1] == nil {
			return nil, NoAllocationBitmapError{}
		}
	} else if allocationBitmaps[0] == nil {
		return nil, NoAllocationBitmapError{}
	}

	if hasUpcaseTable != true {
		return nil, NoUpcaseTableError{}
	}

	return &Root{
		volume:      volume,
		volumeLabel: volumeLabel,
		hasLabel:    hasVolumeLabel,
		items:       items,
	}, nil
}

// Params returns the volume's decoded boot-sector parameters.
func (root *Root) Params() Params {
	return root.volume.params
}

// VolumeLabel returns the volume's label and whether one was present.
func (root *Root) VolumeLabel() (string, bool) {
	return root.volumeLabel, root.hasLabel
}

// Items returns the root directory's top-level entries, in on-disk order.
func (root *Root) Items() []Item {
	return root.items
}
