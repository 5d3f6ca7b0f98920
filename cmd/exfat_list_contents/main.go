package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dsoprea/go-logging"
	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"

	"github.com/go-exfat/exfat"
)

type rootParameters struct {
	Filepath       string `short:"f" long:"filepath" description:"File-path of exFAT filesystem" required:"true"`
	FilenameFilter string `short:"p" long:"pattern" description:"Filename filter"`
	ShowDetail     bool   `short:"d" long:"detail" description:"Show additional entry detail"`
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

	tree := exfat.NewTree(root)

	err = tree.Visit(func(currentFilepath string, item exfat.Item) error {
		if rootArguments.FilenameFilter != "" {
			// Since the filepaths are separated by Windows-standard backward-
			// slashes, they won't necessarily split correcty on all platforms.
			// Therefore, we'll just use the name from the item.
			isMatched, err := filepath.Match(rootArguments.FilenameFilter, item.Name())
			log.PanicIf(err)

			if isMatched != true {
				return nil
			}
		}

		switch v := item.(type) {
		case *exfat.Directory:
			if rootArguments.ShowDetail == true {
				fmt.Printf("## %s\n\n", currentFilepath)
				fmt.Printf("[Directory] attributes=(%04x)\n\n", uint16(v.Attributes()))
			} else {
				fmt.Printf("%15s %30s %s\n", "<DIR>", "", currentFilepath)
			}

		case *exfat.File:
			if rootArguments.ShowDetail == true {
				fmt.Printf("## %s\n\n", currentFilepath)
				fmt.Printf("[File] attributes=(%04x) size=(%d)\n\n", uint16(v.Attributes()), v.Size())
			} else {
				fmt.Printf("%15s %30s %s\n", humanize.Comma(int64(v.Size())), "", currentFilepath)
			}
		}

		return nil
	})
	log.PanicIf(err)
}
