package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dsoprea/go-logging"
	"github.com/jessevdk/go-flags"

	"github.com/go-exfat/exfat"
)

type rootParameters struct {
	FilesystemFilepath string `short:"f" long:"filesystem-filepath" description:"File-path of exFAT filesystem" required:"true"`
	ExtractFilepath    string `short:"e" long:"extract-filepath" description:"File-path to extract (use backward slashes)" required:"true"`
	OutputFilepath     string `short:"o" long:"output-filepath" description:"File-path to write to ('-' for STDOUT)" required:"true"`
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

	f, err := os.Open(rootArguments.FilesystemFilepath)
	log.PanicIf(err)

	defer f.Close()

	root, err := exfat.Open(f)
	log.PanicIf(err)

	tree := exfat.NewTree(root)

	var found *exfat.File

	err = tree.Visit(func(currentFilepath string, item exfat.Item) error {
		if currentFilepath != rootArguments.ExtractFilepath {
			return nil
		}

		file, ok := item.(*exfat.File)
		if ok != true {
			return nil
		}

		found = file

		return exfat.ErrStopVisit
	})
	log.PanicIf(err)

	if found == nil {
		fmt.Printf("File not found.\n")
		os.Exit(2)
	}

	var g *os.File

	if rootArguments.OutputFilepath == "-" {
		g = os.Stdout
	} else {
		var err error

		g, err = os.Create(rootArguments.OutputFilepath)
		log.PanicIf(err)

		defer func() {
			g.Close()
		}()
	}

	r, err := found.Reader()
	log.PanicIf(err)

	written, err := io.Copy(g, r)
	log.PanicIf(err)

	if rootArguments.OutputFilepath != "-" {
		fmt.Printf("(%d) bytes written.\n", written)
	}
}
