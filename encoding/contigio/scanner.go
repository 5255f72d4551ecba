// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package contigio provides a pull-based scanner that unifies FASTA and
// FASTQ framing into a single stream of (name, sequence) contig records, and
// the post-parse pipeline (sort, k-mer signature, PCA projection) that turns
// a scanned contig set into the profiling tables consumed by the store.
package contigio

import (
	"bufio"
	"io"

	"github.com/grailbio/groopm/biosimd"
	"github.com/pkg/errors"
)

// Sentinel errors returned by Scanner.Err, mirroring the donor fastq
// scanner's taxonomy of framing failures.
var (
	// ErrNoHeader is returned when sequence data appears before any '>' or
	// '@' header line.
	ErrNoHeader = errors.New("contigio: sequence data before any header line")
)

// bufferInitSize is the initial bufio.Scanner buffer size; contigs and reads
// can be much larger than bufio's 64KiB default token limit.
const bufferInitSize = 1 << 20 // 1 MiB

// maxLineSize bounds a single line; well beyond any realistic contig length.
const maxLineSize = 1 << 31

// Record is one parsed contig: its name and (already cleaned) sequence.
type Record struct {
	Name string
	Seq  string
}

// Scanner reads concatenated FASTA and/or FASTQ records from an io.Reader,
// unifying both framings the way the donor's encoding/fastq.Scanner reads
// FASTQ alone. Use like bufio.Scanner:
//
//	var r Record
//	for s.Scan(&r) {
//	    ...
//	}
//	if err := s.Err(); err != nil { ... }
type Scanner struct {
	sc      *bufio.Scanner
	err     error
	pending string // a header line read ahead while finishing the previous record
	hasPend bool
	line    int
}

// NewScanner returns a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, bufferInitSize), maxLineSize)
	return &Scanner{sc: sc}
}

// Err returns the first error encountered by Scan, if any.
func (s *Scanner) Err() error { return s.err }

func (s *Scanner) nextLine() (string, bool) {
	if s.hasPend {
		s.hasPend = false
		line := s.pending
		s.pending = ""
		return line, true
	}
	if !s.sc.Scan() {
		return "", false
	}
	s.line++
	return s.sc.Text(), true
}

func isHeaderByte(b byte) bool { return b == '>' || b == '@' }

func firstToken(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' || s[i] == '\t' {
			return s[:i]
		}
	}
	return s
}

// Scan reads the next record into *rec, returning false at EOF or on error.
//
// Framing rules: a record starts at a line whose first byte is '>' or '@';
// the name is the first whitespace-delimited token after that prefix.
// Sequence lines accumulate until the next header-like line or, for FASTQ, a
// '+' separator followed by quality lines whose total length reaches the
// sequence length. If EOF is reached in the middle of a quality block, the
// record is still emitted (as FASTA, ignoring the partial quality data) —
// a deliberate recovery policy, not a framing error.
func (s *Scanner) Scan(rec *Record) bool {
	if s.err != nil {
		return false
	}
	line, ok := s.nextLine()
	if !ok {
		return false
	}
	if len(line) == 0 || !isHeaderByte(line[0]) {
		s.err = errors.Wrap(ErrNoHeader, "contigio")
		return false
	}
	name := firstToken(line[1:])

	var seq []byte
	for {
		line, ok = s.nextLine()
		if !ok {
			break
		}
		if len(line) > 0 && isHeaderByte(line[0]) {
			s.pending = line
			s.hasPend = true
			break
		}
		if len(line) > 0 && line[0] == '+' {
			// FASTQ quality block: consume quality lines until their total
			// length reaches len(seq), then stop. EOF before that point
			// still yields a valid record (recovery policy above).
			var qualLen int
			for qualLen < len(seq) {
				qline, qok := s.nextLine()
				if !qok {
					break
				}
				qualLen += len(qline)
			}
			break
		}
		seq = append(seq, line...)
	}

	seqBytes := seq
	biosimd.CleanASCIISeqInplace(seqBytes)
	rec.Name = name
	rec.Seq = string(seqBytes)
	return true
}
