package markov

import (
	"context"
	"database/sql"
	"go/build"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	_ "modernc.org/sqlite"
)

// setupTestDB creates a new SQLite database in a temp dir and a Store for testing.
// It uses t.Cleanup to ensure resources are released.
func setupTestDB(t *testing.T) (*sql.DB, *Store) {
	dbFile := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", dbFile+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}

	s, err := NewStore(db, NewDefaultTokenizer())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(s.Close)

	return db, s
}

// setupTestDBWithTraining is a convenience helper that also trains a default model.
func setupTestDBWithTraining(t *testing.T) (context.Context, *Store, ModelInfo) {
	_, s := setupTestDB(t)
	ctx := context.Background()
	modelInfo := ModelInfo{Name: "test_model"}

	if err := s.InsertModel(ctx, modelInfo); err != nil {
		t.Fatalf("setup: InsertModel() failed: %v", err)
	}
	modelInfo, err := s.GetModelInfo(ctx, modelInfo.Name)
	if err != nil {
		t.Fatalf("setup: GetModelInfo() failed: %v", err)
	}
	trainingData := "one fish two fish red fish blue fish"
	if err := s.Train(ctx, modelInfo, strings.NewReader(trainingData)); err != nil {
		t.Fatalf("setup: Train() failed: %v", err)
	}
	return ctx, s, modelInfo
}

// setupTestDBBench creates a database for benchmarking.
func setupTestDBBench(b *testing.B) (*sql.DB, *Store) {
	dbFile := filepath.Join(b.TempDir(), "bench.db")
	db, err := sql.Open("sqlite", dbFile+"?_pragma=journal_mode(WAL)&_pragma=synchronous(OFF)")
	if err != nil {
		b.Fatalf("failed to open database: %v", err)
	}
	b.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		b.Fatalf("failed to set up schema: %v", err)
	}

	s, err := NewStore(db, NewDefaultTokenizer())
	if err != nil {
		b.Fatalf("NewStore() error = %v", err)
	}
	b.Cleanup(s.Close)

	return db, s
}

var (
	benchmarkCorpus string
	corpusOnce      sync.Once
)

// createBenchmarkCorpus reads Go source files to create a corpus for benchmarking.
func createBenchmarkCorpus() string {
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
				benchmarkCorpus = "this is a fallback corpus for benchmarking. it is not very long but will prevent a crash. "
				return
			}
			sb.Write(content)
			sb.WriteString("\n")
		}
		benchmarkCorpus = sb.String()
	})
	return benchmarkCorpus
}

// mustBuild builds a network from space-separated tokens or fails the test.
func mustBuild(t testing.TB, text string) *CountNetwork {
	t.Helper()
	n, err := Build(strings.Fields(text))
	if err != nil {
		t.Fatalf("Build(%q) failed: %v", text, err)
	}
	return n
}
