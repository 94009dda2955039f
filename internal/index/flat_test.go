package index

import (
	"bytes"
	"errors"
	"testing"
)

func TestFlatSearchOrdersByDistance(t *testing.T) {
	flat, err := NewFlat(2)
	if err != nil {
		t.Fatal(err)
	}

	err = flat.Add([]string{"a", "b", "c", "d"}, [][]float32{{0, 0}, {3, 4}, {1, 0}, {0, 1}})
	if err != nil {
		t.Fatal(err)
	}

	hits, err := flat.Search([]float32{0, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}

	if len(hits) != 4 {
		t.Fatalf("expected all 4 rows when k exceeds corpus, got %d", len(hits))
	}

	expected := []Hit{{Position: 0, Distance: 0}, {Position: 2, Distance: 1}, {Position: 3, Distance: 1}, {Position: 1, Distance: 25}}
	for i, hit := range hits {
		if hit != expected[i] {
			t.Fatalf("hit %d: expected %+v, got %+v", i, expected[i], hit)
		}
	}

	for i := 1; i < len(hits); i++ {
		if hits[i].Distance < hits[i-1].Distance {
			t.Fatalf("distances decrease at %d: %+v", i, hits)
		}
	}
}

func TestFlatSearchK(t *testing.T) {
	flat, _ := NewFlat(1)
	vectors := make([][]float32, 15)
	ids := make([]string, 15)
	for i := range vectors {
		vectors[i] = []float32{float32(i)}
		ids[i] = string(rune('a' + i))
	}
	if err := flat.Add(ids, vectors); err != nil {
		t.Fatal(err)
	}

	hits, _ := flat.Search([]float32{0}, 3)
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}

	hits, _ = flat.Search([]float32{0}, 0)
	if len(hits) != DefaultK {
		t.Fatalf("expected default k %d, got %d", DefaultK, len(hits))
	}
}

func TestFlatRejectsDimensionMismatch(t *testing.T) {
	flat, _ := NewFlat(3)

	if err := flat.Add([]string{"a"}, [][]float32{{1, 2}}); err == nil {
		t.Fatal("expected add dimension error")
	}
	if flat.Len() != 0 {
		t.Fatalf("expected no rows after failed add, got %d", flat.Len())
	}

	if err := flat.Add([]string{"a", "b"}, [][]float32{{1, 2, 3}}); err == nil {
		t.Fatal("expected length mismatch error")
	}

	if _, err := flat.Search([]float32{1}, 1); err == nil {
		t.Fatal("expected query dimension error")
	}

	if _, err := NewFlat(0); err == nil {
		t.Fatal("expected error for zero dimension")
	}
}

func TestFlatEncodingRoundTrip(t *testing.T) {
	flat, _ := NewFlat(3)
	_ = flat.Add([]string{"first", "second"}, [][]float32{{1.5, -2, 0}, {0.25, 8, -1}})

	var buf bytes.Buffer
	n, err := flat.WriteTo(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(buf.Len()) {
		t.Fatalf("WriteTo reported %d bytes, buffer has %d", n, buf.Len())
	}

	decoded, err := ReadFlat(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}

	if decoded.Dim() != 3 || decoded.Len() != 2 {
		t.Fatalf("unexpected shape dim=%d len=%d", decoded.Dim(), decoded.Len())
	}

	ids := decoded.IDs()
	if ids[0] != "first" || ids[1] != "second" {
		t.Fatalf("unexpected ids %v", ids)
	}

	hits, _ := decoded.Search([]float32{0.25, 8, -1}, 1)
	if hits[0].Position != 1 || hits[0].Distance != 0 {
		t.Fatalf("unexpected hit after decode: %+v", hits[0])
	}
}

func TestReadFlatCorrupt(t *testing.T) {
	flat, _ := NewFlat(2)
	_ = flat.Add([]string{"a"}, [][]float32{{1, 2}})
	var buf bytes.Buffer
	_, _ = flat.WriteTo(&buf)
	valid := buf.Bytes()

	cases := map[string][]byte{
		"empty":     nil,
		"bad magic": append([]byte("NOPE"), valid[4:]...),
		"truncated": valid[:len(valid)-3],
		"trailing":  append(append([]byte{}, valid...), 0x01),
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ReadFlat(bytes.NewReader(data)); !errors.Is(err, ErrCorrupt) {
				t.Fatalf("expected ErrCorrupt, got %v", err)
			}
		})
	}
}
