package main

import (
	"os"
	"testing"
)

func TestApplyEnvOverridesBasic(t *testing.T) {
	base := baseConfig()

	os.Setenv("DETECTD_BATCH_PATH_LISTS", "a.txt,b.txt,c.txt")
	os.Setenv("DETECTD_BATCH_CLASSES", "20")
	t.Cleanup(func() {
		os.Unsetenv("DETECTD_BATCH_PATH_LISTS")
		os.Unsetenv("DETECTD_BATCH_CLASSES")
	})
	if err := applyEnvOverrides(base, map[string]struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(base.pathLists) != 3 {
		t.Fatalf("expected 3 path lists, got %v", base.pathLists)
	}
	if base.classes != 20 {
		t.Fatalf("expected classes override, got %d", base.classes)
	}
}

func TestApplyEnvOverridesFlagPrecedence(t *testing.T) {
	base := baseConfig()
	base.classes = 80
	os.Setenv("DETECTD_BATCH_CLASSES", "5")
	t.Cleanup(func() { os.Unsetenv("DETECTD_BATCH_CLASSES") })
	if err := applyEnvOverrides(base, map[string]struct{}{"classes": {}}); err != nil {
		t.Fatalf("err: %v", err)
	}
	if base.classes != 80 {
		t.Fatalf("expected classes unchanged 80, got %d", base.classes)
	}
}

func TestApplyEnvOverridesBadInt(t *testing.T) {
	base := baseConfig()
	os.Setenv("DETECTD_BATCH_CLASSES", "notint")
	t.Cleanup(func() { os.Unsetenv("DETECTD_BATCH_CLASSES") })
	if err := applyEnvOverrides(base, map[string]struct{}{}); err == nil {
		t.Fatalf("expected error for bad integer")
	}
}
