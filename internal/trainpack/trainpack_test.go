package trainpack

import (
	"bytes"
	"io"
	"testing"
)

func sampleRecord() Record {
	var r Record
	for i := range r.PackedSFEN {
		r.PackedSFEN[i] = byte(i)
	}
	r.Score = -1234
	r.Move = 0xBEEF
	r.GamePly = 77
	r.Result = -1
	return r
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	r := sampleRecord()
	buf := r.Encode()
	if len(buf) != RecordSize {
		t.Fatalf("encoded length = %d, want %d", len(buf), RecordSize)
	}
	got := Decode(buf)
	if got != r {
		t.Errorf("Decode(Encode(r)) = %+v, want %+v", got, r)
	}
}

func TestWriterReaderRoundTrip(t *testing.T) {
	records := []Record{sampleRecord(), {}, sampleRecord()}
	records[1].Result = 1

	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, r := range records {
		if err := w.Write(r); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	if buf.Len() != len(records)*RecordSize {
		t.Fatalf("buffer length = %d, want %d", buf.Len(), len(records)*RecordSize)
	}

	rd := NewReader(&buf)
	for i, want := range records {
		got, err := rd.Read()
		if err != nil {
			t.Fatalf("Read record %d: %v", i, err)
		}
		if got != want {
			t.Errorf("record %d = %+v, want %+v", i, got, want)
		}
	}

	if _, err := rd.Read(); err != io.EOF {
		t.Fatalf("final Read error = %v, want io.EOF", err)
	}
}

func TestReaderTruncatedRecord(t *testing.T) {
	buf := bytes.NewReader(make([]byte, RecordSize-1))
	rd := NewReader(buf)
	if _, err := rd.Read(); err == nil || err == io.EOF {
		t.Fatalf("expected a wrapped error for a truncated record, got %v", err)
	}
}
