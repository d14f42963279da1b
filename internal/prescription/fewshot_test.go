package prescription

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFewShotDir(t *testing.T, skip string) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string][]byte{
		"manuscritas/manuscrita01.jpg": jpegHeader,
		"manuscritas/manuscrita02.jpg": jpegHeader,
		"digitadas/digitada01.jpg":     jpegHeader,
		"digitadas/digitada02.png":     pngHeader,
	}
	for name, data := range files {
		if name == skip {
			continue
		}
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, data, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestLoadFewShot(t *testing.T) {
	set, err := LoadFewShot(writeFewShotDir(t, ""))
	if err != nil {
		t.Fatalf("LoadFewShot() error = %v", err)
	}
	if len(set.Handwritten) != 2 || len(set.Typed) != 2 {
		t.Fatalf("got %d handwritten, %d typed", len(set.Handwritten), len(set.Typed))
	}
	if set.Handwritten[0].Name != "manuscrita01.jpg" || set.Handwritten[1].Name != "manuscrita02.jpg" {
		t.Errorf("handwritten order = %s, %s", set.Handwritten[0].Name, set.Handwritten[1].Name)
	}
	if set.Typed[1].MIMEType != MIMEPNG {
		t.Errorf("digitada02 MIME = %q, want %q", set.Typed[1].MIMEType, MIMEPNG)
	}
}

func TestLoadFewShotMissingFile(t *testing.T) {
	if _, err := LoadFewShot(writeFewShotDir(t, "digitadas/digitada02.png")); err == nil {
		t.Error("LoadFewShot() expected error for missing example")
	}
}
