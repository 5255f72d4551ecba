// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/grailbio/base/log"
	"github.com/grailbio/groopm/datamgr"
)

func runNukeBins(args []string) error {
	fs := newFlagSet("nukebins")
	dbPath := fs.String("db", "", "database path (required)")
	fs.Parse(args)
	if *dbPath == "" {
		return fmt.Errorf("nukebins requires -db")
	}

	mgr := datamgr.New(*dbPath)
	if err := mgr.NukeBins(); err != nil {
		return err
	}
	log.Printf("groopm-mstore: cleared all bin assignments in %s", *dbPath)
	return nil
}
