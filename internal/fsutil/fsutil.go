// Package fsutil provides the filesystem primitives shared by the tool
// handlers and stores: atomic writes, recursive sizing, binary detection,
// and tolerant text decoding.
package fsutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// AtomicWrite writes data to path via a temp file in the same directory and
// an atomic rename, so readers never observe a partial file.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	success = true
	return nil
}

// DirSize returns the total size in bytes of all regular files under dir.
// A missing dir counts as zero.
func DirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}

// IsBinary reports whether the given content looks binary, using the
// presence of a NUL byte within the first 512 bytes.
func IsBinary(content []byte) bool {
	n := len(content)
	if n > 512 {
		n = 512
	}
	for _, b := range content[:n] {
		if b == 0 {
			return true
		}
	}
	return false
}

// DecodeText decodes raw bytes as UTF-8, falling back to Latin-1 when the
// bytes are not valid UTF-8. The fallback never fails: every byte maps to a
// code point, which keeps search working over mixed-encoding trees.
func DecodeText(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	runes := make([]rune, len(raw))
	for i, b := range raw {
		runes[i] = rune(b)
	}
	return string(runes)
}

// ReadTextFile reads a file and decodes it with DecodeText.
func ReadTextFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return DecodeText(raw), nil
}
