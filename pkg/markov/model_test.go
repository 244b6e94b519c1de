package markov

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"testing/iotest"
)

func TestBuild(t *testing.T) {
	m := buildTestModel(t, "abcbab", 2)

	expected := map[Window][]Successor{
		"ab": {{Byte: 'c', Freq: 1}},
		"bc": {{Byte: 'b', Freq: 1}},
		"cb": {{Byte: 'a', Freq: 1}},
		"ba": {{Byte: 'b', Freq: 1}},
	}
	if m.Len() != len(expected) {
		t.Fatalf("expected %d windows, got %d", len(expected), m.Len())
	}
	for w, want := range expected {
		if got := m.Successors(w); !reflect.DeepEqual(got, want) {
			t.Errorf("Successors(%s) = %+v, want %+v", w, got, want)
		}
	}

	wantOrder := []Window{"ab", "bc", "cb", "ba"}
	if got := m.Windows(); !reflect.DeepEqual(got, wantOrder) {
		t.Errorf("Windows() = %v, want %v", got, wantOrder)
	}
	if start, ok := m.Start(); !ok || start != "ab" {
		t.Errorf("Start() = %s, %v; want \"ab\", true", start, ok)
	}
	if m.Order() != 2 || m.CorpusSize() != 6 {
		t.Errorf("got order %d and corpus size %d, want 2 and 6", m.Order(), m.CorpusSize())
	}
}

func TestBuildDegenerateCorpus(t *testing.T) {
	testCases := []struct {
		corpus string
		order  int
	}{
		{"", 1},
		{"a", 1},
		{"", 3},
		{"abc", 3},
	}
	for _, tc := range testCases {
		m := buildTestModel(t, tc.corpus, tc.order)
		if m.Len() != 0 {
			t.Errorf("Build(%q, %d): expected an empty model, got %d windows", tc.corpus, tc.order, m.Len())
		}
		if _, ok := m.Start(); ok {
			t.Errorf("Build(%q, %d): expected no start window", tc.corpus, tc.order)
		}
	}
}

func TestBuildInvalidOrder(t *testing.T) {
	for _, order := range []int{0, -1} {
		if _, err := Build([]byte("abc"), order); !errors.Is(err, ErrInvalidOrder) {
			t.Errorf("Build with order %d: expected ErrInvalidOrder, got %v", order, err)
		}
		if _, err := NewBuilder(order); !errors.Is(err, ErrInvalidOrder) {
			t.Errorf("NewBuilder with order %d: expected ErrInvalidOrder, got %v", order, err)
		}
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	corpus := randomCorpus(7, 2000)
	a, _ := Build(corpus, 3)
	b, _ := Build(corpus, 3)
	if !reflect.DeepEqual(a.Export(), b.Export()) {
		t.Error("building the same corpus twice produced different models")
	}
}

// TestBuildCoverage checks the table against a brute-force scan of the corpus:
// every window occurs in the corpus and its successors are exactly the bytes
// that followed it.
func TestBuildCoverage(t *testing.T) {
	for _, order := range []int{1, 2, 4} {
		t.Run(fmt.Sprintf("Order%d", order), func(t *testing.T) {
			corpus := randomCorpus(uint64(order), 1500)
			m, err := Build(corpus, order)
			if err != nil {
				t.Fatal(err)
			}

			expected := make(map[Window]map[byte]int)
			for i := 0; i+order < len(corpus); i++ {
				w := NewWindow(corpus[i : i+order])
				if expected[w] == nil {
					expected[w] = make(map[byte]int)
				}
				expected[w][corpus[i+order]]++
			}

			if m.Len() != len(expected) {
				t.Fatalf("expected %d windows, got %d", len(expected), m.Len())
			}
			for w, want := range expected {
				got := m.Successors(w)
				if len(got) != len(want) {
					t.Errorf("window %s: expected %d successors, got %d", w, len(want), len(got))
					continue
				}
				for i, s := range got {
					if i > 0 && got[i-1].Byte >= s.Byte {
						t.Errorf("window %s: successors not sorted or duplicated: %+v", w, got)
					}
					if want[s.Byte] != s.Freq {
						t.Errorf("window %s: successor %q has freq %d, want %d", w, s.Byte, s.Freq, want[s.Byte])
					}
				}
			}
		})
	}
}

func TestBuilderChunkedWrites(t *testing.T) {
	corpus := randomCorpus(42, 64)
	const order = 3
	whole := buildTestModel(t, string(corpus), order).Export()

	for split := 0; split <= len(corpus); split++ {
		b, _ := NewBuilder(order)
		_, _ = b.Write(corpus[:split])
		_, _ = b.Write(corpus[split:])
		if got := b.Model().Export(); !reflect.DeepEqual(got, whole) {
			t.Fatalf("split at %d: chunked model differs from one-shot model", split)
		}
	}

	// One byte at a time.
	b, _ := NewBuilder(order)
	for i := range corpus {
		_, _ = b.Write(corpus[i : i+1])
	}
	if got := b.Model().Export(); !reflect.DeepEqual(got, whole) {
		t.Error("byte-by-byte model differs from one-shot model")
	}
}

func TestBuilderModelIsSnapshot(t *testing.T) {
	b, _ := NewBuilder(1)
	_, _ = b.Write([]byte("ab"))
	first := b.Model()
	_, _ = b.Write([]byte("ac"))

	if got := first.Successors("a"); len(got) != 1 || got[0].Byte != 'b' {
		t.Errorf("earlier snapshot changed after more writes: %+v", got)
	}
	if got := b.Model().Successors("a"); len(got) != 2 {
		t.Errorf("expected 2 successors for 'a' in the new snapshot, got %+v", got)
	}
}

func TestBuildFromReader(t *testing.T) {
	ctx := context.Background()
	corpus := "one fish two fish. red fish blue fish."

	m, err := BuildFromReader(ctx, iotest.OneByteReader(strings.NewReader(corpus)), 2)
	if err != nil {
		t.Fatalf("BuildFromReader() failed: %v", err)
	}
	if !reflect.DeepEqual(m.Export(), buildTestModel(t, corpus, 2).Export()) {
		t.Error("model read from a stream differs from model built in one shot")
	}

	_, err = BuildFromReader(ctx, iotest.ErrReader(errors.New("boom")), 2)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected read error to be returned, got %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err = BuildFromReader(cancelled, strings.NewReader(corpus), 2); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestModelAccessorsReturnCopies(t *testing.T) {
	m := buildTestModel(t, "abcbab", 2)

	succ := m.Successors("ab")
	succ[0].Byte = 'z'
	if m.Successors("ab")[0].Byte != 'c' {
		t.Error("modifying the result of Successors changed the model")
	}

	windows := m.Windows()
	windows[0] = "zz"
	if start, _ := m.Start(); start != "ab" {
		t.Error("modifying the result of Windows changed the model")
	}

	if m.Successors("zz") != nil {
		t.Error("expected nil successors for an unknown window")
	}
}

func TestStartFrom(t *testing.T) {
	m := buildTestModel(t, "abcbab", 2)

	testCases := []struct {
		seed     string
		expected Window
		ok       bool
	}{
		{"xxcb", "cb", true},
		{"ab", "ab", true},
		{"b", "", false},
		{"zz", "", false},
	}
	for _, tc := range testCases {
		w, ok := m.StartFrom([]byte(tc.seed))
		if w != tc.expected || ok != tc.ok {
			t.Errorf("StartFrom(%q) = %s, %v; want %s, %v", tc.seed, w, ok, tc.expected, tc.ok)
		}
	}
}

func TestRandomStart(t *testing.T) {
	m := buildTestModel(t, "abcbab", 2)
	if w, ok := m.RandomStart(fixedRand(2)); !ok || w != "cb" {
		t.Errorf("RandomStart(2) = %s, %v; want \"cb\", true", w, ok)
	}
	empty := buildTestModel(t, "", 2)
	if _, ok := empty.RandomStart(fixedRand(0)); ok {
		t.Error("expected no random start for an empty model")
	}

	// A nil source falls back to a random one.
	for i := 0; i < 20; i++ {
		w, ok := m.RandomStart(nil)
		if !ok || !m.Contains(w) {
			t.Fatalf("RandomStart(nil) = %s, %v; want a window of the model", w, ok)
		}
	}
	if _, ok := empty.RandomStart(nil); ok {
		t.Error("expected no random start for an empty model with a nil source")
	}
}

func TestWindowSlide(t *testing.T) {
	w := NewWindow([]byte("abc"))
	if got := w.Slide('d'); got != "bcd" {
		t.Errorf("Slide('d') = %s, want \"bcd\"", got)
	}
	if w != "abc" {
		t.Errorf("Slide modified the receiver: %s", w)
	}
	if got := NewWindow([]byte{0, 0xff}).String(); got != `"\x00\xff"` {
		t.Errorf("String() = %s", got)
	}
}

func BenchmarkBuild(b *testing.B) {
	corpus := createBenchmarkCorpus()

	for _, order := range []int{1, 2, 3, 4, 5} {
		b.Run(fmt.Sprintf("Order%d", order), func(b *testing.B) {
			b.SetBytes(int64(len(corpus)))
			b.ReportAllocs()
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				if _, err := Build(corpus, order); err != nil {
					b.Fatalf("Build() failed: %v", err)
				}
			}
		})
	}
}
