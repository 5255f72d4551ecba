// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// groopm-mstore is a command-line tool for creating and inspecting GroopM
// contig profile databases: the columnar store that backs metagenomic
// binning (package github.com/grailbio/groopm/store, via package
// github.com/grailbio/groopm/datamgr).
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s {createdb,upgrade,select,view,setbins,nukebins} [flags]\n", os.Args[0])
}

func main() {
	shutdown := grail.Init()
	defer shutdown()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	sub, args := os.Args[1], os.Args[2:]

	var err error
	switch sub {
	case "createdb":
		err = runCreateDB(args)
	case "upgrade":
		err = runUpgrade(args)
	case "select":
		err = runSelect(args)
	case "view":
		err = runView(args)
	case "setbins":
		err = runSetBins(args)
	case "nukebins":
		err = runNukeBins(args)
	case "-h", "-help", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", sub)
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error.Printf("%s: %v", sub, err)
		os.Exit(1)
	}
}

// newFlagSet builds a flag.FlagSet for subcommand name, exiting with usage
// on a parse error rather than returning one, matching flag.ExitOnError.
func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ExitOnError)
}
