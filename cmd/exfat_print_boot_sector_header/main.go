package main

import (
	"fmt"
	"os"

	"github.com/dsoprea/go-logging"
	"github.com/jessevdk/go-flags"

	"github.com/go-exfat/exfat"
)

type rootParameters struct {
	Filepath string `short:"f" long:"filepath" description:"File-path of exFAT filesystem" required:"true"`
}

var (
	rootArguments = new(rootParameters)
)

func main() {
	defer func() {
		if state := recover(); state != nil {
			err := log.Wrap(state.(error))
			log.PrintError(err)
			os.Exit(-1)
		}
	}()

	p := flags.NewParser(rootArguments, flags.Default)

	_, err := p.Parse()
	if err != nil {
		os.Exit(1)
	}

	f, err := os.Open(rootArguments.Filepath)
	log.PanicIf(err)

	defer f.Close()

	root, err := exfat.Open(f)
	log.PanicIf(err)

	params := root.Params()

	fmt.Printf("Boot Sector\n")
	fmt.Printf("===========\n")
	fmt.Printf("\n")
	fmt.Printf("FatOffset: (%d)\n", params.FatOffset)
	fmt.Printf("FatLength: (%d)\n", params.FatLength)
	fmt.Printf("ClusterHeapOffset: (%d)\n", params.ClusterHeapOffset)
	fmt.Printf("ClusterCount: (%d)\n", params.ClusterCount)
	fmt.Printf("FirstClusterOfRootDirectory: (%d)\n", params.FirstClusterOfRootDirectory)
	fmt.Printf("ActiveFat: (%d)\n", params.VolumeFlags.ActiveFat())
	fmt.Printf("BytesPerSector: (%d)\n", params.BytesPerSector())
	fmt.Printf("SectorsPerCluster: (%d)\n", params.SectorsPerCluster())
	fmt.Printf("NumberOfFats: (%d)\n", params.NumberOfFats)

	if label, hasLabel := root.VolumeLabel(); hasLabel == true {
		fmt.Printf("VolumeLabel: [%s]\n", label)
	} else {
		fmt.Printf("VolumeLabel: (none)\n")
	}
}
