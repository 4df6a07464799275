package catalog

import (
	"context"
	"fmt"
	"testing"

	"legato/pkg/models"
)

func TestValidateStructure(t *testing.T) {
	e := newTestEngine(t, testEngineOptions(t.TempDir()))
	ctx := context.Background()

	files := make([]models.MediaFile, 10)
	for i := range files {
		files[i] = trackFile(fmt.Sprintf("/music/a/%02d.mp3", i), "A", "X", fmt.Sprintf("T%d", i), uint32(i+1))
	}
	if _, err := e.BulkStore(ctx, files, false); err != nil {
		t.Fatalf("Failed to store: %v", err)
	}
	if _, err := e.Store(ctx, trackFile("/music/a/extra.mp3", "A", "X", "Extra", 11)); err != nil {
		t.Fatalf("Failed to store: %v", err)
	}

	report, err := e.ValidateStructure(ctx)
	if err != nil {
		t.Fatalf("Failed to validate: %v", err)
	}
	if report.Batches != 2 {
		t.Errorf("Expected 2 batches, got %d", report.Batches)
	}
	if report.Records != 11 {
		t.Errorf("Expected 11 records, got %d", report.Records)
	}
	if report.LogicalSize <= headerSize {
		t.Errorf("Expected the frontier past the header, got %d", report.LogicalSize)
	}
}

func TestValidateStructureEmpty(t *testing.T) {
	e := newTestEngine(t, testEngineOptions(t.TempDir()))

	report, err := e.ValidateStructure(context.Background())
	if err != nil {
		t.Fatalf("Failed to validate: %v", err)
	}
	if report.Batches != 0 || report.Records != 0 {
		t.Errorf("Expected an empty report, got %+v", report)
	}
	if report.LogicalSize != headerSize {
		t.Errorf("Expected the frontier at the header, got %d", report.LogicalSize)
	}
}

func TestValidateStructureDetectsCorruption(t *testing.T) {
	e := newTestEngine(t, testEngineOptions(t.TempDir()))
	ctx := context.Background()

	if _, err := e.Store(ctx, trackFile("/music/a/01.mp3", "A", "X", "One", 1)); err != nil {
		t.Fatalf("Failed to store: %v", err)
	}

	// Flip a payload byte inside the committed region so the frame CRC no
	// longer matches.
	logical := e.data.logicalSize.Load()
	e.data.mu.Lock()
	e.data.data[logical-5] ^= 0xFF
	e.data.mu.Unlock()

	if _, err := e.ValidateStructure(ctx); !IsCode(err, ErrCorrupt) {
		t.Errorf("Expected corruption detected, got %v", err)
	}
}

func TestValidateStructureClosed(t *testing.T) {
	e, err := NewEngine(testEngineOptions(t.TempDir()))
	if err != nil {
		t.Fatalf("Failed to open engine: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Failed to close engine: %v", err)
	}

	if _, err := e.ValidateStructure(context.Background()); !IsCode(err, ErrTransactionFailed) {
		t.Errorf("Expected a closed engine rejected, got %v", err)
	}
}

func TestValidateStructureCanceled(t *testing.T) {
	e := newTestEngine(t, testEngineOptions(t.TempDir()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.ValidateStructure(ctx); err == nil {
		t.Error("Expected a canceled context rejected")
	}
}
