package zonefile

import (
	"fmt"
	"os"
	"path/filepath"
)

// LoadDir parses every regular file directly under dir (or, when nested is
// true, every regular file anywhere beneath dir) as a master zone file.
// A malformed zone file is fatal: it aborts the whole load rather than
// silently skipping one zone.
func LoadDir(dir string, nested bool) ([]*Zone, error) {
	var paths []string
	if nested {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("zonefile: walk %s: %w", dir, err)
		}
	} else {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("zonefile: read %s: %w", dir, err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				paths = append(paths, filepath.Join(dir, e.Name()))
			}
		}
	}

	zones := make([]*Zone, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("zonefile: open %s: %w", path, err)
		}
		zone, err := Parse(f)
		closeErr := f.Close()
		if err != nil {
			return nil, fmt.Errorf("zonefile: parse %s: %w", path, err)
		}
		if closeErr != nil {
			return nil, fmt.Errorf("zonefile: close %s: %w", path, closeErr)
		}
		zones = append(zones, zone)
	}
	return zones, nil
}
