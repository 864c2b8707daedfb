package slab

import "testing"

func TestSlabInsertGetRemove(t *testing.T) {
	s := New[string](4)

	a := s.Insert("a")
	b := s.Insert("b")

	if got, ok := s.Get(a); !ok || got != "a" {
		t.Fatalf("Get(%d) = %q, %v; want \"a\", true", a, got, ok)
	}
	if s.Len() != 2 {
		t.Fatalf("Len() = %d; want 2", s.Len())
	}

	s.Remove(a)
	if s.Contains(a) {
		t.Fatalf("Contains(%d) = true after Remove", a)
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d; want 1", s.Len())
	}

	c := s.Insert("c")
	if c != a {
		t.Fatalf("Insert did not reuse freed token: got %d, want %d", c, a)
	}
	if got, ok := s.Get(b); !ok || got != "b" {
		t.Fatalf("Get(%d) = %q, %v; want \"b\", true", b, got, ok)
	}
}

func TestSlabGetMissing(t *testing.T) {
	s := New[int](1)
	if _, ok := s.Get(0); ok {
		t.Fatal("Get on empty slab returned ok=true")
	}
	if _, ok := s.Get(-1); ok {
		t.Fatal("Get(-1) returned ok=true")
	}
}

func TestSlabCap(t *testing.T) {
	s := New[int](0)
	s.Insert(1)
	s.Insert(2)
	if s.Cap() != 2 {
		t.Fatalf("Cap() = %d; want 2", s.Cap())
	}
	s.Remove(0)
	if s.Cap() != 2 {
		t.Fatalf("Cap() after Remove = %d; want 2 (slot stays allocated)", s.Cap())
	}
}
