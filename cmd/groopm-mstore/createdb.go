// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/groopm/datamgr"
)

func runCreateDB(args []string) error {
	fs := newFlagSet("createdb")
	dbPath := fs.String("db", "", "output database path (required)")
	contigsPath := fs.String("contigs", "", "input FASTA/FASTQ path (required)")
	bamList := fs.String("bams", "", "comma-separated list of input BAM paths")
	k := fs.Int("k", 4, "k-mer word length")
	force := fs.Bool("force", false, "overwrite -db if it already exists")
	fs.Parse(args)

	if *dbPath == "" || *contigsPath == "" {
		return fmt.Errorf("createdb requires -db and -contigs")
	}
	var bams []string
	if *bamList != "" {
		bams = strings.Split(*bamList, ",")
	}

	log.Printf("groopm-mstore: creating %s from %s (%d BAMs, k=%d)", *dbPath, *contigsPath, len(bams), *k)
	mgr := datamgr.New(*dbPath)
	if err := mgr.CreateDB(bams, *contigsPath, *k, *force); err != nil {
		return err
	}
	n, err := mgr.NumContigs()
	if err != nil {
		return err
	}
	log.Printf("groopm-mstore: wrote %s with %d contigs", *dbPath, n)
	return nil
}
