package wire

import "testing"

func TestBatchEntryRoundtrip(t *testing.T) {
	entries := []BatchEntry{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("bb"), Value: []byte("")},
		{Key: []byte(""), Value: []byte("orphan-value")},
	}
	buf := make([]byte, 0, 256)
	total := 0
	for _, e := range entries {
		total += e.EncodedSize()
	}
	scratch := make([]byte, total)
	pos := 0
	for _, e := range entries {
		n, err := EncodeBatchEntry(scratch[pos:], e)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		pos += n
	}
	buf = scratch[:pos]

	got, err := DecodeBatch(buf, len(buf))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("got %d entries, want %d", len(got), len(entries))
	}
	for i, e := range entries {
		if string(got[i].Key) != string(e.Key) || string(got[i].Value) != string(e.Value) {
			t.Fatalf("entry %d: got %+v want %+v", i, got[i], e)
		}
	}
}

func TestDecodeBatchTruncated(t *testing.T) {
	if _, err := DecodeBatch([]byte{1, 0, 0}, 3); err == nil {
		t.Fatal("expected error on truncated buffer")
	}
}
