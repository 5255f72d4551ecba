// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/groopm/datamgr"
)

// parseAssignments parses a comma-separated "index:bid,index:bid,..." list,
// as produced by an upstream clustering step.
func parseAssignments(s string) (map[datamgr.RowIndex]int32, error) {
	updates := make(map[datamgr.RowIndex]int32)
	if s == "" {
		return updates, nil
	}
	for _, pair := range strings.Split(s, ",") {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed assignment %q, want index:bid", pair)
		}
		idx, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("malformed row index in %q: %v", pair, err)
		}
		bid, err := strconv.ParseInt(parts[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("malformed bid in %q: %v", pair, err)
		}
		updates[datamgr.RowIndex(idx)] = int32(bid)
	}
	return updates, nil
}

func runSetBins(args []string) error {
	fs := newFlagSet("setbins")
	dbPath := fs.String("db", "", "database path (required)")
	assign := fs.String("assign", "", "comma-separated index:bid assignments, e.g. 0:1,1:1,2:2")
	fs.Parse(args)
	if *dbPath == "" {
		return fmt.Errorf("setbins requires -db")
	}

	updates, err := parseAssignments(*assign)
	if err != nil {
		return err
	}

	mgr := datamgr.New(*dbPath)
	if err := mgr.SetBinAssignments(updates); err != nil {
		return err
	}
	log.Printf("groopm-mstore: applied %d bin assignments to %s", len(updates), *dbPath)
	return nil
}
