package survey

import (
	"errors"
	"math/rand"
	"testing"
)

func docPool(n int) []InstructionDoc {
	out := make([]InstructionDoc, n)
	for i := range out {
		out[i] = InstructionDoc{ID: int64(i + 1), Title: "doc", Kind: MediaPDF, Active: true}
	}
	return out
}

func TestSampleEmptyPool(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	if _, err := Sample(r, nil, 5); !errors.Is(err, ErrEmptyPool) {
		t.Fatalf("want ErrEmptyPool, got %v", err)
	}
}

func TestSampleClampsToPoolSize(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	got, err := Sample(r, docPool(3), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("want 3 docs, got %d", len(got))
	}
}

func TestSampleNoDuplicates(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		got, err := Sample(r, docPool(10), 5)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 5 {
			t.Fatalf("want 5 docs, got %d", len(got))
		}
		seen := map[int64]bool{}
		for _, d := range got {
			if seen[d.ID] {
				t.Fatalf("duplicate doc %d in sample", d.ID)
			}
			seen[d.ID] = true
		}
	}
}
