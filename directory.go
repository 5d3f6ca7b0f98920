package exfat

// Directory is a lazily-opened subdirectory: it carries the shared volume
// handle, its name, and its stream extension, but doesn't read its contents
// until Open is called.
type Directory struct {
	volume     *volumeHandle
	name       string
	attributes FileAttributes
	stream     StreamEntry
}

func newDirectory(volume *volumeHandle, name string, attributes FileAttributes, stream StreamEntry) *Directory {
	return &Directory{
		volume:     volume,
		name:       name,
		attributes: attributes,
		stream:     stream,
	}
}

// Name returns the directory's decoded filename.
func (d *Directory) Name() string {
	return d.name
}

// Attributes returns the directory's FileAttributes.
func (d *Directory) Attributes() FileAttributes {
	return d.attributes
}

// Open reads this directory's entry set, per §4.10: a cluster stream and
// entry reader over its first cluster, running the same dispatch loop as
// the root mount but rejecting the root-only entries (allocation bitmap,
// up-case table, volume label) if encountered.
func (d *Directory) Open() (items []Item, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = panicToError(errRaw)
		}
	}()

	if d.stream.Allocation.FirstCluster == 0 {
		return nil, nil
	}

	csr, err := d.volume.newClusterStream(d.stream.Allocation, d.stream.NoFatChain)
	if err != nil {
		return nil, err
	}

	er := NewEntryReader(csr)
	items = make([]Item, 0)

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

		if ty.TypeImportance() != typeImportanceCritical || ty.TypeCode() != 5 {
			return nil, UnknownEntryError{Index: entry.Index(), Cluster: entry.Cluster()}
		}

		fileEntry, err := assembleFileEntry(entry, er)
		if err != nil {
			return nil, err
		}

		if fileEntry.Attributes.IsDirectory() == true {
			items = append(items, newDirectory(d.volume, fileEntry.Name, fileEntry.Attributes, fileEntry.Stream))
		} else {
			items = append(items, newFile(d.volume, fileEntry.Name, fileEntry.Attributes, fileEntry.Stream))
		}
	}

	return items, nil
}
