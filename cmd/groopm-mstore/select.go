// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/grailbio/groopm/datamgr"
	"github.com/grailbio/groopm/store"
)

func runSelect(args []string) error {
	fs := newFlagSet("select")
	dbPath := fs.String("db", "", "database path (required)")
	filter := fs.String("filter", "", store.PredicateHelp)
	fs.Parse(args)
	if *dbPath == "" {
		return fmt.Errorf("select requires -db")
	}

	pred := store.All
	if *filter != "" {
		p, err := store.ParsePredicate(*filter)
		if err != nil {
			return err
		}
		pred = p
	}

	mgr := datamgr.New(*dbPath)
	indices, err := mgr.SelectIndices(pred)
	if err != nil {
		return err
	}
	names, err := mgr.ContigNames(indices)
	if err != nil {
		return err
	}
	lengths, err := mgr.ContigLengths(indices)
	if err != nil {
		return err
	}
	bins, err := mgr.Bins(indices)
	if err != nil {
		return err
	}
	for i, idx := range indices {
		fmt.Printf("%d\t%s\t%d\t%d\n", idx, names[i], lengths[i], bins[i])
	}
	return nil
}
