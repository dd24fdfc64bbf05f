package main

import (
	"log/slog"
	"testing"

	"github.com/menta2k/sprite-extractor/internal/config"
)

func TestParseSize(t *testing.T) {
	w, h, err := parseSize("32x16")
	if err != nil || w != 32 || h != 16 {
		t.Errorf("Expected 32x16, got %dx%d (%v)", w, h, err)
	}
	w, h, err = parseSize("24")
	if err != nil || w != 24 || h != 24 {
		t.Errorf("Expected 24x24, got %dx%d (%v)", w, h, err)
	}
	if _, _, err := parseSize("axb"); err == nil {
		t.Error("Expected error for invalid size")
	}
}

func TestParseBoxes(t *testing.T) {
	boxes, err := parseBoxes("0,0,16,16; 20,4,-8,10 ;")
	if err != nil {
		t.Fatalf("parseBoxes failed: %v", err)
	}
	if len(boxes) != 2 || boxes[1].W != -8 {
		t.Errorf("Unexpected boxes %+v", boxes)
	}
	if _, err := parseBoxes("1,2,3"); err == nil {
		t.Error("Expected error for short box")
	}
}

func TestBaseName(t *testing.T) {
	if got := baseName("https://example.com/img/sheet.png?raw=1"); got != "sheet.png" {
		t.Errorf("Expected sheet.png, got %s", got)
	}
	if got := baseName("local/sheet.png"); got != "local/sheet.png" {
		t.Errorf("Expected path unchanged, got %s", got)
	}
}

func TestParseLevel(t *testing.T) {
	l, err := parseLevel("warn")
	if err != nil || l != slog.LevelWarn {
		t.Errorf("Expected warn, got %v (%v)", l, err)
	}
	if _, err := parseLevel("loud"); err == nil {
		t.Error("Expected error for unknown level")
	}
}

func TestLoadConfigExplicitMissing(t *testing.T) {
	if _, err := loadConfig(t.TempDir() + "/missing.yaml"); err == nil {
		t.Error("Expected error for missing explicit config")
	}
	if cfg, err := loadConfig(""); err != nil || cfg == nil {
		t.Errorf("Expected a config, got %v", err)
	}
}

func TestInitLoggerWithFile(t *testing.T) {
	defer slog.SetDefault(slog.Default())
	cfg := config.Default().Logging
	cfg.File = t.TempDir() + "/logs/run.log"
	cleanup, err := initLogger(cfg)
	if err != nil {
		t.Fatalf("initLogger failed: %v", err)
	}
	slog.Debug("hello")
	cleanup()
}
