package store

import (
	"os"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "shogi-store-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	st, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestPutAndGetActiveWeights(t *testing.T) {
	st := openTestStore(t)
	data := []byte("fake nnue weight bytes for testing")

	sum, err := st.PutWeights("weights.nnue", data)
	if err != nil {
		t.Fatalf("PutWeights: %v", err)
	}

	rec, ok, err := st.GetActiveWeights()
	if err != nil {
		t.Fatalf("GetActiveWeights: %v", err)
	}
	if !ok {
		t.Fatal("expected an active weights record")
	}
	if rec.Filename != "weights.nnue" {
		t.Errorf("Filename = %q, want weights.nnue", rec.Filename)
	}
	if rec.Checksum != sum {
		t.Errorf("Checksum = %d, want %d", rec.Checksum, sum)
	}
	if string(rec.Data) != string(data) {
		t.Error("stored data does not match what was put")
	}
}

func TestGetWeightsByChecksumMiss(t *testing.T) {
	st := openTestStore(t)
	_, ok, err := st.GetWeightsByChecksum(0xDEADBEEF)
	if err != nil {
		t.Fatalf("GetWeightsByChecksum: %v", err)
	}
	if ok {
		t.Fatal("expected a miss for an unknown checksum")
	}
}

func TestGetActiveWeightsNoneStored(t *testing.T) {
	st := openTestStore(t)
	_, ok, err := st.GetActiveWeights()
	if err != nil {
		t.Fatalf("GetActiveWeights: %v", err)
	}
	if ok {
		t.Fatal("expected no active weights in a fresh store")
	}
}

func TestCorrectionSnapshotRoundTrip(t *testing.T) {
	st := openTestStore(t)
	table := []int16{1, -2, 3, -4, 5}

	if err := st.PutCorrectionSnapshot("slot-a", table); err != nil {
		t.Fatalf("PutCorrectionSnapshot: %v", err)
	}

	got, ok, err := st.GetCorrectionSnapshot("slot-a")
	if err != nil {
		t.Fatalf("GetCorrectionSnapshot: %v", err)
	}
	if !ok {
		t.Fatal("expected a stored snapshot for slot-a")
	}
	if len(got) != len(table) {
		t.Fatalf("length = %d, want %d", len(got), len(table))
	}
	for i := range table {
		if got[i] != table[i] {
			t.Errorf("table[%d] = %d, want %d", i, got[i], table[i])
		}
	}

	if _, ok, err := st.GetCorrectionSnapshot("slot-b"); err != nil || ok {
		t.Fatalf("expected a miss for an unrelated slot, got ok=%v err=%v", ok, err)
	}
}
