package markov

import (
	"go/build"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// fixedRand always draws the same index, wrapped into range.
type fixedRand int

func (f fixedRand) IntN(n int) int {
	return int(f) % n
}

// recordingRand draws from a seeded PCG source and records every bound it is
// asked for.
type recordingRand struct {
	src    *rand.Rand
	bounds []int
}

func newRecordingRand(seed uint64) *recordingRand {
	return &recordingRand{src: rand.New(rand.NewPCG(seed, seed))}
}

func (r *recordingRand) IntN(n int) int {
	r.bounds = append(r.bounds, n)
	return r.src.IntN(n)
}

// buildTestModel builds a model and fails the test on error.
func buildTestModel(t testing.TB, corpus string, order int) *Model {
	t.Helper()
	m, err := Build([]byte(corpus), order)
	if err != nil {
		t.Fatalf("Build(%q, %d) error = %v", corpus, order, err)
	}
	return m
}

// randomCorpus returns n bytes drawn from a small alphabet so that windows
// repeat and successor sets have several members.
func randomCorpus(seed uint64, n int) []byte {
	const alphabet = "abcde "
	r := rand.New(rand.NewPCG(seed, 0))
	corpus := make([]byte, n)
	for i := range corpus {
		corpus[i] = alphabet[r.IntN(len(alphabet))]
	}
	return corpus
}

var (
	benchmarkCorpus []byte
	corpusOnce      sync.Once
)

// createBenchmarkCorpus reads Go source files to create a corpus for benchmarking.
func createBenchmarkCorpus() []byte {
	corpusOnce.Do(func() {
		var sb strings.Builder
		goRoot := build.Default.GOROOT
		filesToRead := []string{
			filepath.Join(goRoot, "src/net/http/server.go"),
			filepath.Join(goRoot, "src/go/parser/parser.go"),
			filepath.Join(goRoot, "src/encoding/json/encode.go"),
		}

		for _, file := range filesToRead {
			content, err := os.ReadFile(file)
			if err != nil {
				benchmarkCorpus = []byte("this is a fallback corpus for benchmarking. it is not very long but will prevent a crash. ")
				return
			}
			sb.Write(content)
			sb.WriteString("\n")
		}
		benchmarkCorpus = []byte(sb.String())
	})
	return benchmarkCorpus
}
