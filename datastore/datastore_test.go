package datastore

import (
	"path/filepath"
	"testing"
)

func TestDataStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ds.json")

	ds, err := NewWithConfig(&Config{FilePath: path, BackupCount: 1})
	if err != nil {
		t.Fatal(err)
	}
	ds.Add("chat:1", map[string]any{"title": "general", "settings": map[string]any{"interject_p": 10}})
	ds.Add("app", map[string]any{"style": "boss"})
	if err := ds.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ds, err = NewWithConfig(&Config{FilePath: path})
	if err != nil {
		t.Fatal(err)
	}
	defer ds.Close()

	var rec struct {
		Title    string         `json:"title"`
		Settings map[string]any `json:"settings"`
	}
	ok, err := ds.Decode("chat:1", &rec)
	if err != nil || !ok {
		t.Fatalf("Decode = %v, %v", ok, err)
	}
	if rec.Title != "general" || rec.Settings["interject_p"] != float64(10) {
		t.Fatalf("decoded = %+v", rec)
	}
	if keys := ds.Keys("chat:"); len(keys) != 1 || keys[0] != "chat:1" {
		t.Fatalf("Keys = %v", keys)
	}
}
