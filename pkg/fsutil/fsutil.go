// Package fsutil holds the small filesystem helpers the server's data
// directory handling needs.
package fsutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// CheckAndMkdir ensures dir exists, creating it (and any parents) if
// absent, and fails if the path exists but is not a directory.
func CheckAndMkdir(dir string) error {
	stat, err := os.Stat(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
		stat, err = os.Stat(dir)
		if err != nil {
			return err
		}
	}
	if !stat.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

// SizeOfDir sums the apparent size of every regular file under path.
func SizeOfDir(path string) (int64, error) {
	var total int64
	err := filepath.Walk(path, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Exists reports whether path names an existing file or directory.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
