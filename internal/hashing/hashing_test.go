package hashing

import "testing"

func TestDigestIsPure(t *testing.T) {
	a := Digest(Scalar(int64(42)), Bytes([]byte("x")))
	b := Digest(Scalar(int64(42)), Bytes([]byte("x")))
	if a != b {
		t.Fatalf("equal fields produced different digests: %s vs %s", a, b)
	}
}

func TestDigestDistinguishesFields(t *testing.T) {
	a := Digest(Scalar(int64(1)))
	b := Digest(Scalar(int64(2)))
	if a == b {
		t.Fatalf("distinct fields produced the same digest")
	}
}

func TestSequenceOrderMatters(t *testing.T) {
	a := Sequence([]int{1, 2})
	b := Sequence([]int{2, 1})
	if string(a) == string(b) {
		t.Fatalf("sequence encoding ignored element order")
	}
}
