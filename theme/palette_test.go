package theme

import (
	"strings"
	"testing"
)

func TestDefaultPalette(t *testing.T) {
	p := DefaultPalette()
	if p.Name != "plasma" {
		t.Errorf("Expected plasma, got %s", p.Name)
	}
	if len(p.Colors) != 11 {
		t.Fatalf("Expected 11 colors, got %d", len(p.Colors))
	}
	if got := p.Lookup(0); got != (RGB{13, 8, 135}) {
		t.Errorf("Expected first color at 0, got %v", got)
	}
	if got := p.Lookup(1); got != (RGB{240, 249, 33}) {
		t.Errorf("Expected last color at 1, got %v", got)
	}
}

func TestParseGPL(t *testing.T) {
	src := "GIMP Palette\nName: two\n# comment\n0 0 0 black\n200 100 50\nbad line\n"
	p, err := ParseGPL(strings.NewReader(src), "test")
	if err != nil {
		t.Fatalf("ParseGPL failed: %v", err)
	}
	if len(p.Colors) != 2 {
		t.Fatalf("Expected 2 colors, got %d", len(p.Colors))
	}
	if got := p.Lookup(0.5); got != (RGB{100, 50, 25}) {
		t.Errorf("Expected midpoint {100 50 25}, got %v", got)
	}

	if _, err := ParseGPL(strings.NewReader("GIMP Palette\n"), "empty"); err == nil {
		t.Error("Expected an error for a palette without colors")
	}
}

func TestLoadGPLEmptyPath(t *testing.T) {
	p, err := LoadGPL("")
	if err != nil {
		t.Fatalf("LoadGPL failed: %v", err)
	}
	if p.Name != "plasma" {
		t.Errorf("Expected the built-in palette, got %s", p.Name)
	}
}
