package bank

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRegistryScanAndPersistence(t *testing.T) {
	dir := t.TempDir()
	banksDir := filepath.Join(dir, "banks")
	if err := os.MkdirAll(banksDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"anatomy.db", "physiology.db", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(banksDir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	settings := filepath.Join(dir, "watch_folders.json")

	reg := NewRegistry(settings)
	if err := reg.AddFolder(banksDir); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := reg.AddFolder(banksDir); err != nil { // duplicate is a no-op
		t.Fatalf("re-add: %v", err)
	}
	banks := reg.Scan()
	if len(banks) != 2 {
		t.Fatalf("banks = %+v", banks)
	}
	if banks[0].Title != "anatomy" || banks[1].Title != "physiology" {
		t.Fatalf("titles = %s, %s", banks[0].Title, banks[1].Title)
	}

	// folders survive a restart
	reloaded := NewRegistry(settings)
	if got := len(reloaded.Folders()); got != 1 {
		t.Fatalf("folders after reload = %d", got)
	}

	if err := reloaded.RemoveFolder(banksDir); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := reloaded.Scan(); len(got) != 0 {
		t.Fatalf("banks after remove = %+v", got)
	}
}
