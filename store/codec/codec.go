// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package codec encodes and decodes the fixed-width column layout used by
// package store's on-disk tables. It plays the role of the donor's
// encoding/pam/fieldio package, adapted from per-field unsafe-pointer casts
// to plain encoding/binary reads/writes: store's tables are few, small, and
// fixed-width (row counts in the thousands, not per-base-pair scale), so the
// portability of encoding/binary is worth more here than the allocation
// savings fieldio's code-generated unsafe casts buy at PAM's much larger
// per-record scale.
package codec

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// Type identifies a column's on-disk representation.
type Type int

const (
	String Type = iota
	Int32
	Float64
	Bool
)

// Column describes one column of a table's row schema.
type Column struct {
	Name string
	Type Type
	// Width is the fixed byte width of a String column's padded value; zero
	// for all other types, whose width is implied by Type.
	Width int
}

// Schema is the ordered list of columns making up one table's row layout.
type Schema struct {
	Columns []Column
}

// width returns c's fixed on-disk byte width.
func (c Column) width() int {
	switch c.Type {
	case String:
		return c.Width
	case Int32:
		return 4
	case Float64:
		return 8
	case Bool:
		return 1
	}
	panic("codec: unknown column type")
}

// RowSize returns the fixed byte width of one encoded row under s.
func (s Schema) RowSize() int {
	var n int
	for _, c := range s.Columns {
		n += c.width()
	}
	return n
}

// Row is one decoded row: values are string, int32, float64, or bool,
// positionally aligned to Schema.Columns.
type Row []interface{}

// EncodeRow appends the fixed-width encoding of row under schema to buf,
// returning the extended slice.
func EncodeRow(buf []byte, schema Schema, row Row) ([]byte, error) {
	if len(row) != len(schema.Columns) {
		return nil, errors.Errorf("codec: row has %d values, schema has %d columns", len(row), len(schema.Columns))
	}
	for i, col := range schema.Columns {
		switch col.Type {
		case String:
			s, ok := row[i].(string)
			if !ok {
				return nil, errors.Errorf("codec: column %q: expected string, got %T", col.Name, row[i])
			}
			if len(s) > col.Width {
				return nil, errors.Errorf("codec: column %q: value %q exceeds width %d", col.Name, s, col.Width)
			}
			field := make([]byte, col.Width)
			copy(field, s)
			buf = append(buf, field...)
		case Int32:
			v, ok := row[i].(int32)
			if !ok {
				return nil, errors.Errorf("codec: column %q: expected int32, got %T", col.Name, row[i])
			}
			var tmp [4]byte
			binary.LittleEndian.PutUint32(tmp[:], uint32(v))
			buf = append(buf, tmp[:]...)
		case Float64:
			v, ok := row[i].(float64)
			if !ok {
				return nil, errors.Errorf("codec: column %q: expected float64, got %T", col.Name, row[i])
			}
			var tmp [8]byte
			binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v))
			buf = append(buf, tmp[:]...)
		case Bool:
			v, ok := row[i].(bool)
			if !ok {
				return nil, errors.Errorf("codec: column %q: expected bool, got %T", col.Name, row[i])
			}
			if v {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		default:
			return nil, errors.Errorf("codec: column %q: unknown type", col.Name)
		}
	}
	return buf, nil
}

// DecodeRow decodes one row from data, which must be exactly
// schema.RowSize() bytes.
func DecodeRow(data []byte, schema Schema) (Row, error) {
	if len(data) != schema.RowSize() {
		return nil, errors.Errorf("codec: row data is %d bytes, schema wants %d", len(data), schema.RowSize())
	}
	row := make(Row, len(schema.Columns))
	var off int
	for i, col := range schema.Columns {
		w := col.width()
		field := data[off : off+w]
		off += w
		switch col.Type {
		case String:
			end := 0
			for end < len(field) && field[end] != 0 {
				end++
			}
			row[i] = string(field[:end])
		case Int32:
			row[i] = int32(binary.LittleEndian.Uint32(field))
		case Float64:
			row[i] = math.Float64frombits(binary.LittleEndian.Uint64(field))
		case Bool:
			row[i] = field[0] != 0
		}
	}
	return row, nil
}

// EncodeRows encodes every row in rows, concatenated.
func EncodeRows(schema Schema, rows []Row) ([]byte, error) {
	buf := make([]byte, 0, schema.RowSize()*len(rows))
	var err error
	for _, row := range rows {
		buf, err = EncodeRow(buf, schema, row)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// DecodeRows decodes data (as produced by EncodeRows) into numRows rows. A
// zero-column schema (e.g. the coverage table with no BAMs) still carries
// numRows rows, each decoding to an empty Row; EncodeRows likewise produces
// zero bytes regardless of row count, so row count is tracked by the
// caller, not recovered from data's length.
func DecodeRows(data []byte, schema Schema, numRows int) ([]Row, error) {
	rowSize := schema.RowSize()
	if rowSize == 0 {
		rows := make([]Row, numRows)
		for i := range rows {
			rows[i] = Row{}
		}
		return rows, nil
	}
	if len(data) != rowSize*numRows {
		return nil, errors.Errorf("codec: data is %d bytes, expected %d rows of %d bytes", len(data), numRows, rowSize)
	}
	rows := make([]Row, numRows)
	for i := 0; i < numRows; i++ {
		row, err := DecodeRow(data[i*rowSize:(i+1)*rowSize], schema)
		if err != nil {
			return nil, err
		}
		rows[i] = row
	}
	return rows, nil
}

// WriteString writes a length-prefixed string to w, used for the
// table-of-contents rather than fixed-width row data.
func WriteString(w io.Writer, s string) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// ReadString reads a length-prefixed string written by WriteString.
func ReadString(r io.Reader) (string, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
