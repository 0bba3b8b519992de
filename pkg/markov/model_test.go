package markov

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestInsertAndGetModelInfo(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	// Test success case
	modelInfo := ModelInfo{Name: "test_model"}
	if err := s.InsertModel(ctx, modelInfo); err != nil {
		t.Fatalf("InsertModel() failed: %v", err)
	}

	m, err := s.GetModelInfo(ctx, "test_model")
	if err != nil {
		t.Errorf("GetModelInfo: expected no error, got %v", err)
	}
	if m.Name != "test_model" || m.Id == 0 {
		t.Errorf("got unexpected model info: %+v", m)
	}

	// Test failure case (nonexistent)
	_, err = s.GetModelInfo(ctx, "nonexistent_model")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows for nonexistent model, got %v", err)
	}

	// Test failure case (duplicate name)
	err = s.InsertModel(ctx, modelInfo)
	if err == nil {
		t.Errorf("expected an error when inserting a model with a duplicate name, but got nil")
	}

	// Test failure case (empty name)
	err = s.InsertModel(ctx, ModelInfo{})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for an empty name, got %v", err)
	}
}

func TestGetModelInfos(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	_ = s.InsertModel(ctx, ModelInfo{Name: "test_model"})
	_ = s.InsertModel(ctx, ModelInfo{Name: "another_model"})

	models, err := s.GetModelInfos(ctx)
	if err != nil {
		t.Fatalf("GetModelInfos failed: %v", err)
	}
	if len(models) != 2 {
		t.Errorf("expected 2 models, got %d", len(models))
	}
	if _, ok := models["test_model"]; !ok {
		t.Error("expected to find 'test_model'")
	}
	if _, ok := models["another_model"]; !ok {
		t.Error("expected to find 'another_model'")
	}
}

func TestRemoveModel(t *testing.T) {
	db, s := setupTestDB(t)
	ctx := context.Background()

	m1 := ModelInfo{Name: "to_delete"}
	m2 := ModelInfo{Name: "to_keep"}
	_ = s.InsertModel(ctx, m1)
	_ = s.InsertModel(ctx, m2)
	m1, _ = s.GetModelInfo(ctx, m1.Name)
	m2, _ = s.GetModelInfo(ctx, m2.Name)
	_ = s.Train(ctx, m1, strings.NewReader("delete this data"))
	_ = s.Train(ctx, m2, strings.NewReader("keep this data"))

	if err := s.RemoveModel(ctx, m1); err != nil {
		t.Fatalf("RemoveModel failed: %v", err)
	}

	// Verify model m1 is gone
	_, err := s.GetModelInfo(ctx, m1.Name)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected ErrNoRows for deleted model, got %v", err)
	}

	// Verify chains for m1 are gone
	var count int
	_ = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM markov_chains WHERE model_id = ?", m1.Id).Scan(&count)
	if count != 0 {
		t.Errorf("expected 0 chains for deleted model, found %d", count)
	}

	// Verify model m2 and its chains still exist
	_ = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM markov_chains WHERE model_id = ?", m2.Id).Scan(&count)
	if count == 0 {
		t.Error("expected chains for kept model to exist, but found 0")
	}
}

func TestVocabLookup(t *testing.T) {
	ctx, s, _ := setupTestDBWithTraining(t)

	id, err := s.VocabStr(ctx, "fish")
	if err != nil {
		t.Fatalf("VocabStr('fish') failed: %v", err)
	}

	text, err := s.VocabInt(ctx, id)
	if err != nil {
		t.Fatalf("VocabInt(%d) failed: %v", id, err)
	}
	if text != "fish" {
		t.Errorf("expected 'fish', got '%s'", text)
	}

	if _, err = s.VocabStr(ctx, "green"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows for unknown token, got %v", err)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx, s, modelInfo := setupTestDBWithTraining(t)

	original, err := s.LoadNetwork(ctx, modelInfo)
	if err != nil {
		t.Fatalf("LoadNetwork failed: %v", err)
	}

	// 1. Export the trained model to an in-memory buffer
	var buf bytes.Buffer
	if err := s.ExportModel(ctx, modelInfo, &buf); err != nil {
		t.Fatalf("ExportModel failed: %v", err)
	}
	exported := buf.Bytes()

	// 2. Set up a completely new, empty database
	_, s2 := setupTestDB(t)
	// Occupy the first vocabulary ids so the import has to re-map.
	_ = s2.InsertModel(ctx, ModelInfo{Name: "other"})
	other, _ := s2.GetModelInfo(ctx, "other")
	_ = s2.Train(ctx, other, strings.NewReader("unrelated words here"))

	// 3. Import from the buffer into the new DB
	if err := s2.ImportModel(ctx, bytes.NewReader(exported)); err != nil {
		t.Fatalf("ImportModel failed: %v", err)
	}

	// 4. Verify the imported network matches, order included
	importedModel, err := s2.GetModelInfo(ctx, modelInfo.Name)
	if err != nil {
		t.Fatalf("could not get imported model info: %v", err)
	}
	imported, err := s2.LoadNetwork(ctx, importedModel)
	if err != nil {
		t.Fatalf("LoadNetwork on imported model failed: %v", err)
	}
	if !reflect.DeepEqual(imported.Tokens(), original.Tokens()) {
		t.Errorf("predecessors differ: %v vs %v", imported.Tokens(), original.Tokens())
	}
	for _, prev := range original.Tokens() {
		if !reflect.DeepEqual(imported.Successors(prev), original.Successors(prev)) {
			t.Errorf("successors of %q differ: %+v vs %+v", prev, imported.Successors(prev), original.Successors(prev))
		}
	}

	// 5. Importing again merges, doubling every frequency
	if err := s2.ImportModel(ctx, bytes.NewReader(exported)); err != nil {
		t.Fatalf("second ImportModel failed: %v", err)
	}
	merged, _ := s2.LoadNetwork(ctx, importedModel)
	if got, want := merged.Count("fish", "two"), 2*original.Count("fish", "two"); got != want {
		t.Errorf("expected merged fish->two frequency %d, got %d", want, got)
	}
}

func TestImportModelRejectsBadInput(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	testCases := []struct {
		name  string
		model ExportedModel
	}{
		{
			name:  "missing name",
			model: ExportedModel{Vocabulary: map[string]int{"a": 1}},
		},
		{
			name: "unknown token id",
			model: ExportedModel{
				Name:       "broken",
				Vocabulary: map[string]int{"a": 1},
				Chains:     []ExportedChain{{PrevTokenID: 1, NextTokenID: 2, Frequency: 1, Order: 1}},
			},
		},
		{
			name: "zero frequency",
			model: ExportedModel{
				Name:       "zero",
				Vocabulary: map[string]int{"a": 1, "b": 2},
				Chains:     []ExportedChain{{PrevTokenID: 1, NextTokenID: 2, Frequency: 0, Order: 1}},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, _ := json.Marshal(tc.model)
			if err := s.ImportModel(ctx, bytes.NewReader(data)); err == nil {
				t.Error("expected an error but got none")
			}
		})
	}

	if err := s.ImportModel(ctx, strings.NewReader("{not json")); err == nil {
		t.Error("expected an error for malformed json")
	}

	// Failed imports are rolled back entirely.
	models, _ := s.GetModelInfos(ctx)
	if len(models) != 0 {
		t.Errorf("expected no models after failed imports, got %v", models)
	}
}

func TestImportModelInsertFailure(t *testing.T) {
	db, s := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, `CREATE TRIGGER block_models BEFORE INSERT ON markov_models BEGIN SELECT RAISE(ABORT, 'models are read-only'); END;`); err != nil {
		t.Fatalf("failed to create trigger: %v", err)
	}

	data, _ := json.Marshal(ExportedModel{
		Name:       "blocked",
		Vocabulary: map[string]int{"a": 1, "b": 2},
		Chains:     []ExportedChain{{PrevTokenID: 1, NextTokenID: 2, Frequency: 1, Order: 1}},
	})
	if err := s.ImportModel(ctx, bytes.NewReader(data)); err == nil {
		t.Fatal("expected an error when the model row cannot be inserted")
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM markov_chains").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("expected no chains after a failed model insert, got %d", count)
	}
}
