package storage

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"

	"github.com/porticolabs/portico/portico"
)

// Snapshot file layout:
//
//	magic "PTCOSNAP" | version u16 | kind byte | flags byte |
//	snapshot uuid [16] | created-at unix seconds i64 (all big endian)
//	payload: snappy-framed stream of records
//	         record: uvarint(len k) k uvarint(len v) v
//	         terminated by a zero-length key, then uvarint record count
//
// The header is read and validated before any payload byte is consumed,
// so an incompatible snapshot is rejected without touching target data.
const (
	snapshotMagic   = "PTCOSNAP"
	snapshotVersion = uint16(1)
	headerSize      = len(snapshotMagic) + 2 + 1 + 1 + 16 + 8
)

// SnapshotHeader describes a snapshot file.
type SnapshotHeader struct {
	Version   uint16
	Kind      BackendKind
	ID        uuid.UUID
	CreatedAt time.Time
}

var kindTags = map[BackendKind]byte{
	KindMem:    1,
	KindBadger: 2,
	KindSQLite: 3,
}

func kindFromTag(tag byte) (BackendKind, bool) {
	for k, t := range kindTags {
		if t == tag {
			return k, true
		}
	}
	return "", false
}

// WriteSnapshot produces a self-consistent snapshot of the store at dest.
// The file is staged as dest.tmp, fsynced, and renamed into place so a
// failure never leaves a truncated snapshot under the final name.
func WriteSnapshot(s Store, dest string) error {
	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return portico.NewDiagnostic(portico.CategoryIO,
			"snapshot::create", "cannot create snapshot file %q", tmp).WithCause(err)
	}
	cleanup := func() {
		f.Close()
		os.Remove(tmp)
	}

	hdr := SnapshotHeader{
		Version:   snapshotVersion,
		Kind:      s.Kind(),
		ID:        uuid.New(),
		CreatedAt: time.Now(),
	}
	bw := bufio.NewWriter(f)
	if err := writeHeader(bw, hdr); err != nil {
		cleanup()
		return err
	}

	sw := snappy.NewBufferedWriter(bw)
	cw := &countingWriter{w: sw}
	if err := s.Checkpoint(cw); err != nil {
		cleanup()
		return portico.NewDiagnostic(portico.CategoryIO,
			"snapshot::checkpoint", "checkpoint failed while writing snapshot").WithCause(err)
	}
	if err := writeTerminator(cw.w, cw.records); err != nil {
		cleanup()
		return err
	}
	if err := sw.Close(); err != nil {
		cleanup()
		return err
	}
	if err := bw.Flush(); err != nil {
		cleanup()
		return err
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return portico.NewDiagnostic(portico.CategoryIO,
			"snapshot::rename", "cannot move snapshot into place at %q", dest).WithCause(err)
	}
	return nil
}

// ReadHeader opens a snapshot file and validates magic, version and kind
// tag. The returned reader is positioned at the start of the payload.
func ReadHeader(src string) (*SnapshotHeader, io.ReadCloser, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, nil, portico.NewDiagnostic(portico.CategoryIO,
			"snapshot::open", "cannot open snapshot file %q", src).WithCause(err)
	}
	hdr, err := readHeader(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return hdr, f, nil
}

// VerifyKind rejects snapshots produced on a different backend kind.
func VerifyKind(hdr *SnapshotHeader, want BackendKind) error {
	if hdr.Kind != want {
		return portico.NewDiagnostic(portico.CategoryIncompatibleSnapshot,
			"snapshot::kind_mismatch",
			"snapshot was produced on backend kind %q but the target handle uses %q",
			hdr.Kind, want)
	}
	return nil
}

// Staged is a fully loaded replacement store that has not yet been
// swapped in. Commit finishes the swap; Abort discards the staging area.
// Between StageRestore and Commit the live store is untouched, so a
// restore that fails partway leaves the original contents intact.
type Staged struct {
	kind     BackendKind
	livePath string
	tmpPath  string
	opts     Options
	memData  map[string][]byte // staging for the mem backend
}

// StageRestore validates the snapshot against the target kind and loads
// its full payload into a staging store beside the live path. The live
// store may keep serving reads while staging runs.
func StageRestore(kind BackendKind, livePath, src string, opts Options) (*Staged, error) {
	hdr, rc, err := ReadHeader(src)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	if err := VerifyKind(hdr, kind); err != nil {
		return nil, err
	}

	payload := snappy.NewReader(bufio.NewReader(rc))

	if kind == KindMem {
		data := make(map[string][]byte)
		err := ReadRecords(payload, func(k, v []byte) error {
			data[string(k)] = append([]byte(nil), v...)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return &Staged{kind: kind, memData: data}, nil
	}

	tmpPath := livePath + ".restore"
	if err := os.RemoveAll(tmpPath); err != nil {
		return nil, err
	}
	stagingOpts := opts
	stagingOpts.ReadOnly = false
	stagingOpts.CreateIfMissing = true
	staging, err := Open(kind, tmpPath, stagingOpts)
	if err != nil {
		return nil, err
	}

	// Load in bounded batches; the staging store is private, so splitting
	// the load across transactions is safe.
	const batchSize = 1000
	var tx Tx
	inBatch := 0
	err = ReadRecords(payload, func(k, v []byte) error {
		if tx == nil {
			var terr error
			if tx, terr = staging.Transact(true); terr != nil {
				return terr
			}
		}
		if perr := tx.Put(k, v); perr != nil {
			return perr
		}
		inBatch++
		if inBatch >= batchSize {
			inBatch = 0
			committed := tx
			tx = nil
			return committed.Commit()
		}
		return nil
	})
	if err == nil && tx != nil {
		err = tx.Commit()
		tx = nil
	}
	if err != nil {
		if tx != nil {
			tx.Rollback()
		}
		staging.Close()
		os.RemoveAll(tmpPath)
		return nil, portico.NewDiagnostic(portico.CategoryIO,
			"snapshot::load", "failed to load snapshot payload").WithCause(err)
	}
	if err := staging.Close(); err != nil {
		os.RemoveAll(tmpPath)
		return nil, err
	}

	return &Staged{kind: kind, livePath: livePath, tmpPath: tmpPath, opts: opts}, nil
}

// Commit swaps the staged contents in and returns the replacement store.
// For file backends the caller must have closed the live store first.
// If the swap cannot complete, the original contents are moved back.
func (st *Staged) Commit(live Store) (Store, error) {
	if st.kind == KindMem {
		ms, ok := live.(*MemStore)
		if !ok {
			return nil, fmt.Errorf("staged mem restore against non-mem store")
		}
		ms.replaceContents(st.memData)
		return ms, nil
	}

	oldPath := st.livePath + ".old"
	if err := os.RemoveAll(oldPath); err != nil {
		os.RemoveAll(st.tmpPath)
		return nil, err
	}
	if err := os.Rename(st.livePath, oldPath); err != nil {
		os.RemoveAll(st.tmpPath)
		return nil, err
	}
	if err := os.Rename(st.tmpPath, st.livePath); err != nil {
		// Put the original back; the store is still whole.
		os.Rename(oldPath, st.livePath)
		os.RemoveAll(st.tmpPath)
		return nil, err
	}
	os.RemoveAll(oldPath)

	reopened, err := Open(st.kind, st.livePath, st.opts)
	if err != nil {
		return nil, err
	}
	return reopened, nil
}

// Abort discards the staging area.
func (st *Staged) Abort() {
	if st.tmpPath != "" {
		os.RemoveAll(st.tmpPath)
	}
}

func writeHeader(w io.Writer, hdr SnapshotHeader) error {
	buf := make([]byte, 0, headerSize)
	buf = append(buf, snapshotMagic...)
	buf = binary.BigEndian.AppendUint16(buf, hdr.Version)
	tag, ok := kindTags[hdr.Kind]
	if !ok {
		return fmt.Errorf("no snapshot tag for backend kind %q", hdr.Kind)
	}
	buf = append(buf, tag, 0)
	buf = append(buf, hdr.ID[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(hdr.CreatedAt.Unix()))
	_, err := w.Write(buf)
	return err
}

func readHeader(r io.Reader) (*SnapshotHeader, error) {
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, portico.NewDiagnostic(portico.CategoryIncompatibleSnapshot,
			"snapshot::truncated_header", "snapshot file is too short to be valid").WithCause(err)
	}
	if string(buf[:len(snapshotMagic)]) != snapshotMagic {
		return nil, portico.NewDiagnostic(portico.CategoryIncompatibleSnapshot,
			"snapshot::bad_magic", "file is not a portico snapshot")
	}
	off := len(snapshotMagic)
	version := binary.BigEndian.Uint16(buf[off : off+2])
	if version != snapshotVersion {
		return nil, portico.NewDiagnostic(portico.CategoryIncompatibleSnapshot,
			"snapshot::version_mismatch", "snapshot format version %d is not supported", version)
	}
	off += 2
	kind, ok := kindFromTag(buf[off])
	if !ok {
		return nil, portico.NewDiagnostic(portico.CategoryIncompatibleSnapshot,
			"snapshot::unknown_kind", "snapshot carries unknown backend kind tag %d", buf[off])
	}
	off += 2 // kind + flags
	var id uuid.UUID
	copy(id[:], buf[off:off+16])
	off += 16
	created := int64(binary.BigEndian.Uint64(buf[off : off+8]))

	return &SnapshotHeader{
		Version:   version,
		Kind:      kind,
		ID:        id,
		CreatedAt: time.Unix(created, 0),
	}, nil
}

// writeRecord emits one length-prefixed key/value record as a single
// write. Shared with the Checkpoint implementations of every backend.
func writeRecord(w io.Writer, k, v []byte) error {
	buf := make([]byte, 0, 2*binary.MaxVarintLen64+len(k)+len(v))
	buf = binary.AppendUvarint(buf, uint64(len(k)))
	buf = append(buf, k...)
	buf = binary.AppendUvarint(buf, uint64(len(v)))
	buf = append(buf, v...)
	_, err := w.Write(buf)
	return err
}

func writeTerminator(w io.Writer, count uint64) error {
	var buf [binary.MaxVarintLen64 + 1]byte
	buf[0] = 0 // zero-length key marks the end
	n := binary.PutUvarint(buf[1:], count)
	_, err := w.Write(buf[:n+1])
	return err
}

// ReadRecords consumes a snapshot payload record stream, calling fn for
// each key/value pair, and validates the trailing record count. The byte
// slices passed to fn are reused between calls; fn must copy what it
// keeps.
func ReadRecords(r io.Reader, fn func(k, v []byte) error) error {
	br := bufio.NewReader(r)
	var count uint64
	for {
		klen, err := binary.ReadUvarint(br)
		if err != nil {
			return fmt.Errorf("corrupt snapshot payload: %w", err)
		}
		if klen == 0 {
			want, err := binary.ReadUvarint(br)
			if err != nil {
				return fmt.Errorf("corrupt snapshot trailer: %w", err)
			}
			if want != count {
				return fmt.Errorf("snapshot record count mismatch: have %d, trailer says %d", count, want)
			}
			return nil
		}
		k := make([]byte, klen)
		if _, err := io.ReadFull(br, k); err != nil {
			return fmt.Errorf("corrupt snapshot payload: %w", err)
		}
		vlen, err := binary.ReadUvarint(br)
		if err != nil {
			return fmt.Errorf("corrupt snapshot payload: %w", err)
		}
		v := make([]byte, vlen)
		if _, err := io.ReadFull(br, v); err != nil {
			return fmt.Errorf("corrupt snapshot payload: %w", err)
		}
		count++
		if err := fn(k, v); err != nil {
			return err
		}
	}
}

// countingWriter counts records emitted by Checkpoint. writeRecord emits
// exactly one Write call per record, so the count is the call count.
type countingWriter struct {
	w       io.Writer
	records uint64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.records++
	return c.w.Write(p)
}
