package browser

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DirSink writes diagnostic screenshots under Dir, one PNG per snapshot,
// timestamped so successive failures never overwrite each other.
type DirSink struct {
	Dir string
	Now func() time.Time
}

func (s DirSink) Save(name string, png []byte) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", err
	}
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	path := filepath.Join(s.Dir, fmt.Sprintf("%s-%s.png", name, now.Format("20060102-150405")))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
