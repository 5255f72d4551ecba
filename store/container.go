// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package store

import (
	"bytes"
	"encoding/binary"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/groopm/store/codec"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// magic identifies a groopm store container; containerVers is the container
// format's own version (distinct from meta.FormatVersion, which tracks the
// schema of the tables it contains).
const (
	magic         = "GMDB"
	containerVers = 1
	tmpPrefix     = "tmp_"
)

// tocEntry is one table-of-contents entry: enough to locate, decompress,
// verify, and decode a table's data block without touching any other
// table's bytes.
type tocEntry struct {
	Group    string
	Name     string
	Schema   codec.Schema
	NumRows  int
	Offset   int64
	Length   int64
	Checksum uint64
}

// tableImage is an in-memory table ready to be written: its schema and its
// fully decoded rows.
type tableImage struct {
	Group  string
	Name   string
	Schema codec.Schema
	Rows   []codec.Row
}

// rawTableImage is a table carried as already-compressed bytes, used when
// copying an unchanged table forward during an atomic replace: the bytes
// are never decompressed or re-encoded.
type rawTableImage struct {
	Group    string
	Name     string
	Schema   codec.Schema
	NumRows  int
	Data     []byte // compressed bytes, as read from the source container
	Checksum uint64
}

// writeContainer writes a brand-new container file at path containing
// exactly the given tables, compressing and checksumming each one. It
// refuses to overwrite an existing file; callers that want atomic
// replacement use replaceContainer instead.
func writeContainer(path string, tables []tableImage) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Errorf("store: refusing to overwrite existing file %s", path)
	}
	raws := make([]rawTableImage, len(tables))
	for i, t := range tables {
		raw, err := compressTable(t.Schema, t.Rows)
		if err != nil {
			return errors.Wrapf(err, "store: encoding table %s/%s", t.Group, t.Name)
		}
		raws[i] = rawTableImage{
			Group: t.Group, Name: t.Name, Schema: t.Schema,
			NumRows: len(t.Rows), Data: raw.data, Checksum: raw.checksum,
		}
	}
	return writeRawContainer(path, raws)
}

type compressed struct {
	data     []byte
	checksum uint64
}

func compressTable(schema codec.Schema, rows []codec.Row) (compressed, error) {
	encoded, err := codec.EncodeRows(schema, rows)
	if err != nil {
		return compressed{}, err
	}
	h := seahash.New()
	_, _ = h.Write(encoded)
	checksum := h.Sum64()

	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return compressed{}, errors.Wrap(err, "store: creating zstd writer")
	}
	if _, err := zw.Write(encoded); err != nil {
		return compressed{}, errors.Wrap(err, "store: compressing table")
	}
	if err := zw.Close(); err != nil {
		return compressed{}, errors.Wrap(err, "store: closing zstd writer")
	}
	return compressed{data: buf.Bytes(), checksum: checksum}, nil
}

func decompressTable(raw rawTableImage) ([]codec.Row, error) {
	zr, err := zstd.NewReader(bytes.NewReader(raw.Data))
	if err != nil {
		return nil, errors.Wrap(err, "store: creating zstd reader")
	}
	defer zr.Close()
	encoded, err := ioutil.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrap(err, "store: decompressing table")
	}
	h := seahash.New()
	_, _ = h.Write(encoded)
	if h.Sum64() != raw.Checksum {
		return nil, errors.Errorf("store: checksum mismatch for table %s/%s (corrupt file)", raw.Group, raw.Name)
	}
	return codec.DecodeRows(encoded, raw.Schema, raw.NumRows)
}

// writeRawContainer writes a container file whose table bytes are already
// compressed (and, for unchanged tables during a replace, already
// checksummed), appending the table-of-contents and header last.
func writeRawContainer(path string, raws []rawTableImage) error {
	ctx := vcontext.Background()
	f, err := file.Create(ctx, path)
	if err != nil {
		return errors.Wrapf(err, "store: creating %s", path)
	}
	w := f.Writer(ctx)

	var toc []tocEntry
	var offset int64
	for _, raw := range raws {
		if _, err := w.Write(raw.Data); err != nil {
			_ = f.Close(ctx)
			return errors.Wrapf(err, "store: writing table %s/%s", raw.Group, raw.Name)
		}
		toc = append(toc, tocEntry{
			Group: raw.Group, Name: raw.Name, Schema: raw.Schema,
			NumRows: raw.NumRows, Offset: offset, Length: int64(len(raw.Data)),
			Checksum: raw.Checksum,
		})
		offset += int64(len(raw.Data))
	}

	if err := writeTOC(w, toc); err != nil {
		_ = f.Close(ctx)
		return errors.Wrap(err, "store: writing table of contents")
	}
	if err := f.Close(ctx); err != nil {
		return errors.Wrapf(err, "store: closing %s", path)
	}
	return nil
}

// writeTOC appends the table-of-contents and an 8-byte trailer giving its
// byte length, so readTOC can find it by seeking from the end of the
// file without needing a fixed-offset header.
func writeTOC(w io.Writer, toc []tocEntry) error {
	var buf bytes.Buffer
	if _, err := buf.WriteString(magic); err != nil {
		return err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(containerVers)); err != nil {
		return err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(toc))); err != nil {
		return err
	}
	for _, e := range toc {
		if err := codec.WriteString(&buf, e.Group); err != nil {
			return err
		}
		if err := codec.WriteString(&buf, e.Name); err != nil {
			return err
		}
		if err := writeSchema(&buf, e.Schema); err != nil {
			return err
		}
		for _, v := range []int64{int64(e.NumRows), e.Offset, e.Length} {
			if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
				return err
			}
		}
		if err := binary.Write(&buf, binary.LittleEndian, e.Checksum); err != nil {
			return err
		}
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, uint64(buf.Len()))
}

func writeSchema(w io.Writer, s codec.Schema) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s.Columns))); err != nil {
		return err
	}
	for _, c := range s.Columns {
		if err := codec.WriteString(w, c.Name); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint8(c.Type)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(c.Width)); err != nil {
			return err
		}
	}
	return nil
}

func readSchema(r io.Reader) (codec.Schema, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return codec.Schema{}, err
	}
	cols := make([]codec.Column, n)
	for i := range cols {
		name, err := codec.ReadString(r)
		if err != nil {
			return codec.Schema{}, err
		}
		var typ uint8
		if err := binary.Read(r, binary.LittleEndian, &typ); err != nil {
			return codec.Schema{}, err
		}
		var width uint32
		if err := binary.Read(r, binary.LittleEndian, &width); err != nil {
			return codec.Schema{}, err
		}
		cols[i] = codec.Column{Name: name, Type: codec.Type(typ), Width: int(width)}
	}
	return codec.Schema{Columns: cols}, nil
}

// readTOC reads the table-of-contents trailer and entries from data, the
// whole content of a container file.
func readTOC(data []byte) ([]tocEntry, error) {
	if len(data) < 8 {
		return nil, errors.New("store: file too small to contain a table of contents")
	}
	tocLen := binary.LittleEndian.Uint64(data[len(data)-8:])
	if uint64(len(data)) < tocLen+8 {
		return nil, errors.New("store: corrupt table-of-contents length")
	}
	tocStart := len(data) - 8 - int(tocLen)
	r := bytes.NewReader(data[tocStart : len(data)-8])

	magicBuf := make([]byte, len(magic))
	if _, err := io.ReadFull(r, magicBuf); err != nil {
		return nil, err
	}
	if string(magicBuf) != magic {
		return nil, errors.New("store: bad magic; not a groopm store file")
	}
	var vers uint32
	if err := binary.Read(r, binary.LittleEndian, &vers); err != nil {
		return nil, err
	}
	if vers != containerVers {
		return nil, errors.Errorf("store: unsupported container version %d", vers)
	}
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	toc := make([]tocEntry, n)
	for i := range toc {
		group, err := codec.ReadString(r)
		if err != nil {
			return nil, err
		}
		name, err := codec.ReadString(r)
		if err != nil {
			return nil, err
		}
		schema, err := readSchema(r)
		if err != nil {
			return nil, err
		}
		var numRows, off, length int64
		for _, v := range []*int64{&numRows, &off, &length} {
			if err := binary.Read(r, binary.LittleEndian, v); err != nil {
				return nil, err
			}
		}
		var checksum uint64
		if err := binary.Read(r, binary.LittleEndian, &checksum); err != nil {
			return nil, err
		}
		toc[i] = tocEntry{
			Group: group, Name: name, Schema: schema,
			NumRows: int(numRows), Offset: off, Length: length, Checksum: checksum,
		}
	}
	return toc, nil
}

// readContainerFile reads the whole file at path into memory and parses its
// table-of-contents. Store files hold a handful of small tables (contig
// counts in the thousands, not per-base-pair scale), so whole-file reads
// keep the implementation simple at negligible cost.
func readContainerFile(path string) ([]byte, []tocEntry, error) {
	ctx := vcontext.Background()
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "store: opening %s", path)
	}
	defer f.Close(ctx)
	data, err := ioutil.ReadAll(f.Reader(ctx))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "store: reading %s", path)
	}
	toc, err := readTOC(data)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "store: parsing table of contents of %s", path)
	}
	return data, toc, nil
}

func readRawTable(data []byte, e tocEntry) rawTableImage {
	return rawTableImage{
		Group: e.Group, Name: e.Name, Schema: e.Schema, NumRows: e.NumRows,
		Data: data[e.Offset : e.Offset+e.Length], Checksum: e.Checksum,
	}
}

// tmpPath returns the path of the temporary sibling file used to stage an
// atomic replace of path.
func tmpPath(path string) string {
	dir, base := filepath.Split(path)
	return filepath.Join(dir, tmpPrefix+base)
}

// replaceContainer atomically replaces the table named (group,name) in the
// container at path: every other table's compressed bytes are copied
// forward unchanged, the named table is re-encoded from newRows, and the
// result is staged at path's tmp_ sibling and renamed over path.
//
// A stale tmp_ sibling left over from a crashed previous replace is removed
// first; this is the crash-recovery mechanism (see SPEC_FULL.md §5).
func replaceContainer(path, group, name string, schema codec.Schema, newRows []codec.Row) error {
	tmp := tmpPath(path)
	if _, err := os.Stat(tmp); err == nil {
		if err := os.Remove(tmp); err != nil {
			return errors.Wrapf(err, "store: removing stale %s", tmp)
		}
	}

	data, toc, err := readContainerFile(path)
	if err != nil {
		return err
	}

	raw, err := compressTable(schema, newRows)
	if err != nil {
		return errors.Wrapf(err, "store: encoding replacement table %s/%s", group, name)
	}

	var raws []rawTableImage
	replaced := false
	for _, e := range toc {
		if e.Group == group && e.Name == name {
			raws = append(raws, rawTableImage{
				Group: group, Name: name, Schema: schema,
				NumRows: len(newRows), Data: raw.data, Checksum: raw.checksum,
			})
			replaced = true
			continue
		}
		raws = append(raws, readRawTable(data, e))
	}
	if !replaced {
		raws = append(raws, rawTableImage{
			Group: group, Name: name, Schema: schema,
			NumRows: len(newRows), Data: raw.data, Checksum: raw.checksum,
		})
	}

	if err := writeRawContainer(tmp, raws); err != nil {
		return errors.Wrapf(err, "store: staging replacement at %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "store: renaming %s over %s", tmp, path)
	}
	return nil
}
