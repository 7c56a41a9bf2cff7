// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package export

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/lzy107/functrace/internal/trace/event"
)

// SchemaVersion is the document version written by this package.
// Bump it when the Document layout changes.
const SchemaVersion = 1

// ErrUnsupportedVersion is returned when decoding a document written by a
// newer schema.
var ErrUnsupportedVersion = errors.New("unsupported trace schema version")

// Addr is an opaque address or identifier rendered as hex in JSON.
type Addr uint64

// String returns the address as 0x-prefixed lowercase hex.
func (a Addr) String() string {
	return "0x" + strconv.FormatUint(uint64(a), 16)
}

// MarshalJSON implements json.Marshaler.
func (a Addr) MarshalJSON() ([]byte, error) {
	return strconv.AppendQuote(nil, a.String()), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Addr) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("address must be a hex string: %w", err)
	}
	v, err := ParseAddr(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// ParseAddr parses a 0x-prefixed hexadecimal address.
func ParseAddr(s string) (Addr, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return 0, fmt.Errorf("invalid address %q: missing 0x prefix", s)
	}
	v, err := strconv.ParseUint(s[2:], 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return Addr(v), nil
}

// Record is the serialized form of one event.
type Record struct {
	Type      string `json:"type" msgpack:"type"`
	Func      Addr   `json:"func" msgpack:"func"`
	Caller    Addr   `json:"caller" msgpack:"caller"`
	Timestamp uint64 `json:"timestamp" msgpack:"timestamp"`
	ThreadID  Addr   `json:"thread_id" msgpack:"thread_id"`
	Depth     int64  `json:"depth" msgpack:"depth"`
	RecordID  uint64 `json:"record_id" msgpack:"record_id"`
}

// NewRecord converts an event to its serialized form.
func NewRecord(ev event.Event) Record {
	return Record{
		Type:      ev.Kind.String(),
		Func:      Addr(ev.Func),
		Caller:    Addr(ev.Caller),
		Timestamp: ev.Timestamp,
		ThreadID:  Addr(ev.ThreadID),
		Depth:     ev.Depth,
		RecordID:  ev.Seq,
	}
}

// Event parses the record back into the event it was built from.
func (r Record) Event() (event.Event, error) {
	kind, err := event.ParseKind(r.Type)
	if err != nil {
		return event.Event{}, fmt.Errorf("record %d: %w", r.RecordID, err)
	}
	return event.Event{
		Kind:      kind,
		Func:      uintptr(r.Func),
		Caller:    uintptr(r.Caller),
		Timestamp: r.Timestamp,
		ThreadID:  uint64(r.ThreadID),
		Depth:     r.Depth,
		Seq:       r.RecordID,
	}, nil
}

// Document is the top-level trace file object.
type Document struct {
	Version   int      `json:"version" msgpack:"version"`
	Session   string   `json:"session,omitempty" msgpack:"session,omitempty"`
	TotalTime uint64   `json:"total_time" msgpack:"total_time"` // microseconds from Init to Fini
	Recorded  uint64   `json:"recorded" msgpack:"recorded"`
	Dropped   uint64   `json:"dropped" msgpack:"dropped"`
	Records   []Record `json:"records" msgpack:"records"`
}

// NewDocument builds a document for a drained buffer. Each call gets a
// fresh session id.
func NewDocument(events []event.Event, totalMicros, dropped uint64) *Document {
	recs := make([]Record, len(events))
	for i, ev := range events {
		recs[i] = NewRecord(ev)
	}
	return &Document{
		Version:   SchemaVersion,
		Session:   uuid.Must(uuid.NewV7()).String(),
		TotalTime: totalMicros,
		Recorded:  uint64(len(events)),
		Dropped:   dropped,
		Records:   recs,
	}
}

// Events parses every record back into an event.
func (d *Document) Events() ([]event.Event, error) {
	out := make([]event.Event, 0, len(d.Records))
	for _, r := range d.Records {
		ev, err := r.Event()
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// Encode writes doc to w. FormatAuto encodes JSON.
func Encode(w io.Writer, doc *Document, f Format) error {
	if doc.Records == nil {
		cp := *doc
		cp.Records = []Record{}
		doc = &cp
	}

	switch f {
	case FormatAuto, FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode json trace: %w", err)
		}
	case FormatMsgpack:
		if err := msgpack.NewEncoder(w).Encode(doc); err != nil {
			return fmt.Errorf("encode msgpack trace: %w", err)
		}
	default:
		return fmt.Errorf("encode trace: %w: %s", ErrUnknownFormat, f)
	}
	return nil
}

// Decode reads one document from r. FormatAuto sniffs the first byte:
// a JSON document starts with '{', anything else is read as MessagePack.
func Decode(r io.Reader, f Format) (*Document, error) {
	if f == FormatAuto {
		br := bufio.NewReader(r)
		f = sniff(br)
		r = br
	}

	var doc Document
	switch f {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode json trace: %w", err)
		}
	case FormatMsgpack:
		if err := msgpack.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode msgpack trace: %w", err)
		}
	default:
		return nil, fmt.Errorf("decode trace: %w: %s", ErrUnknownFormat, f)
	}

	// Version 0 is a file from before the version field existed.
	if doc.Version < 0 || doc.Version > SchemaVersion {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrUnsupportedVersion, doc.Version, SchemaVersion)
	}
	if doc.Records == nil {
		doc.Records = []Record{}
	}
	return &doc, nil
}

func sniff(br *bufio.Reader) Format {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return FormatJSON
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		_ = br.UnreadByte()
		if b == '{' {
			return FormatJSON
		}
		return FormatMsgpack
	}
}

// WriteFile encodes doc into path, creating parent directories as needed.
// FormatAuto picks the format from the file extension. The file is closed
// on every return path.
func WriteFile(path string, doc *Document, f Format) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create trace directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trace file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close trace file: %w", cerr)
		}
	}()

	bw := bufio.NewWriter(file)
	if err := Encode(bw, doc, f.Resolve(path)); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write trace file: %w", err)
	}
	return nil
}

// ReadFile loads a trace file. With FormatAuto the content decides.
func ReadFile(path string, f Format) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trace file: %w", err)
	}
	doc, err := Decode(bytes.NewReader(data), f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}
