// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/grailbio/groopm/datamgr"
)

func runView(args []string) error {
	fs := newFlagSet("view")
	dbPath := fs.String("db", "", "database path (required)")
	fs.Parse(args)
	if *dbPath == "" {
		return fmt.Errorf("view requires -db")
	}

	mgr := datamgr.New(*dbPath)
	meta, err := mgr.Meta()
	if err != nil {
		return err
	}

	fmt.Printf("path:           %s\n", *dbPath)
	fmt.Printf("format version: %d\n", meta.FormatVersion)
	fmt.Printf("contigs:        %s\n", humanize.Comma(int64(meta.NumCons)))
	fmt.Printf("bins:           %s\n", humanize.Comma(int64(meta.NumBins)))
	fmt.Printf("k-mer length:   %d (%s canonical columns)\n", meta.MerSize, humanize.Comma(int64(meta.NumMers)))
	fmt.Printf("BAM columns:    %d (%s)\n", meta.NumStoits, meta.StoitColNames)
	fmt.Printf("clustered:      %v\n", meta.Clustered)
	fmt.Printf("complete:       %v\n", meta.Complete)
	return nil
}
