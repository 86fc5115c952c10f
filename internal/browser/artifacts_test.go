package browser

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDirSinkWritesTimestampedPNG(t *testing.T) {
	dir := t.TempDir()
	sink := DirSink{
		Dir: filepath.Join(dir, "shots"),
		Now: func() time.Time { return time.Date(2026, 7, 10, 6, 30, 0, 0, time.UTC) },
	}

	path, err := sink.Save("failure", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasSuffix(path, "failure-20260710-063000.png") {
		t.Fatalf("path = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(data, []byte("png-bytes")) {
		t.Fatal("content mismatch")
	}
}
