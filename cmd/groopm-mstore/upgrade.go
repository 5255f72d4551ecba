// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/grailbio/base/log"
	"github.com/grailbio/groopm/datamgr"
)

func runUpgrade(args []string) error {
	fs := newFlagSet("upgrade")
	dbPath := fs.String("db", "", "database path (required)")
	fs.Parse(args)
	if *dbPath == "" {
		return fmt.Errorf("upgrade requires -db")
	}

	mgr := datamgr.New(*dbPath)
	before, err := mgr.Meta()
	if err != nil {
		return err
	}
	if err := mgr.CheckAndUpgrade(); err != nil {
		return err
	}
	after, err := mgr.Meta()
	if err != nil {
		return err
	}
	log.Printf("groopm-mstore: %s: format version %d -> %d", *dbPath, before.FormatVersion, after.FormatVersion)
	return nil
}
