// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package biosimd provides table-lookup implementations of a couple of
// .fa/.fastq-specific byte-array operations: reverse-complementing a
// sequence in place, and normalizing a raw sequence to uppercase ACGTN.
package biosimd
