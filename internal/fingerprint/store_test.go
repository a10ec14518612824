package fingerprint

import (
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetAbsent(t *testing.T) {
	s := newTestStore(t)

	fp, ok, err := s.Get("https://cfp.example.org/api/conference/rooms")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok || fp != "" {
		t.Errorf("Get = %q, %v; want absent", fp, ok)
	}
}

func TestPutGetLastWriterWins(t *testing.T) {
	s := newTestStore(t)
	url := "https://cfp.example.org/api/conference/rooms"

	if err := s.Put(url, "aaa"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(url, "bbb"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	fp, ok, err := s.Get(url)
	if err != nil || !ok {
		t.Fatalf("Get = %q, %v, %v", fp, ok, err)
	}
	if fp != "bbb" {
		t.Errorf("fp = %q, want bbb", fp)
	}

	all, err := s.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 1 || all[SanitizeKey(url)] != "bbb" {
		t.Errorf("All = %v", all)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	url := "https://cfp.example.org/api/conference/news"

	if err := s.Delete(url); err != nil {
		t.Fatalf("Delete of absent key: %v", err)
	}
	if err := s.Put(url, "abc"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Delete(url); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, err := s.Get(url); err != nil || ok {
		t.Errorf("Get after Delete = %v, %v; want absent", ok, err)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	url := "https://cfp.example.org/api/conference/tracks"

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Put(url, "abc"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	fp, ok, err := s.Get(url)
	if err != nil || !ok || fp != "abc" {
		t.Errorf("Get after reopen = %q, %v, %v", fp, ok, err)
	}
}

func TestClosedStore(t *testing.T) {
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	s.Close()

	if _, _, err := s.Get("x"); err != ErrClosed {
		t.Errorf("Get after Close: err = %v, want ErrClosed", err)
	}
	if err := s.Put("x", "y"); err != ErrClosed {
		t.Errorf("Put after Close: err = %v, want ErrClosed", err)
	}
}

func TestSanitizeKey(t *testing.T) {
	tests := map[string]string{
		"https://cfp.example.org/api/rooms?x=1": "https___cfp_example_org_api_rooms_x_1",
		"already_clean_123":                  "already_clean_123",
		"a b":                                "a_b",
	}
	for in, want := range tests {
		if got := SanitizeKey(in); got != want {
			t.Errorf("SanitizeKey(%q) = %q, want %q", in, got, want)
		}
		if SanitizeKey(in) != SanitizeKey(in) {
			t.Errorf("SanitizeKey(%q) is not deterministic", in)
		}
	}
}

func TestCompute(t *testing.T) {
	// md5("") is well known.
	if got := Compute(nil); got != "d41d8cd98f00b204e9800998ecf8427e" {
		t.Errorf("Compute(nil) = %q", got)
	}
	if Compute([]byte("a")) == Compute([]byte("b")) {
		t.Error("distinct bodies produced the same fingerprint")
	}
}
