// Package keyfile persists generated key files. Either every file of a set
// ends up on disk or none of them does.
package keyfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Venafi/ssh-keygen-seeded/keyerr"
)

type File struct {
	Name     string
	Contents []byte
	Mode     os.FileMode
}

// Write stages every file as a temporary file in dir and renames them into
// place once all of them were written and synced. Existing regular files are
// moved to a backup name first. If anything fails, the temporary files are
// removed, files renamed in this call are deleted and the backups are moved
// back, so dir holds either the complete new set or what it held before.
func Write(dir string, files []File) error {
	if len(files) == 0 {
		return nil
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return keyerr.Wrap(keyerr.KindIO, err, fmt.Sprintf("failed to create output directory %q", dir))
	}

	staged := make([]string, 0, len(files))
	cleanup := func() {
		for _, tmp := range staged {
			_ = os.Remove(tmp)
		}
	}

	for _, f := range files {
		tmp, err := stage(dir, f)
		if err != nil {
			cleanup()
			return keyerr.Wrap(keyerr.KindIO, err, fmt.Sprintf("failed to write %q", f.Name))
		}

		staged = append(staged, tmp)
	}

	var renamed []string
	backups := map[string]string{}

	rollback := func() {
		for _, done := range renamed {
			_ = os.Remove(done)
		}
		for dst, backup := range backups {
			_ = os.Rename(backup, dst)
		}
		cleanup()
	}

	for i, f := range files {
		dst := filepath.Join(dir, f.Name)

		backup, err := backupExisting(dir, dst, f.Name)
		if err != nil {
			rollback()
			return keyerr.Wrap(keyerr.KindIO, err, fmt.Sprintf("failed to back up existing %q", f.Name))
		}
		if backup != "" {
			backups[dst] = backup
		}

		if err := os.Rename(staged[i], dst); err != nil {
			rollback()
			return keyerr.Wrap(keyerr.KindIO, err, fmt.Sprintf("failed to move %q into place", f.Name))
		}

		renamed = append(renamed, dst)
	}

	for _, backup := range backups {
		_ = os.Remove(backup)
	}

	return nil
}

// backupExisting moves an existing regular file at dst aside and returns the
// backup path, or "" if there was nothing to keep.
func backupExisting(dir, dst, name string) (string, error) {
	info, err := os.Lstat(dst)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", nil
	}

	reserved, err := os.CreateTemp(dir, "."+name+".bak-*")
	if err != nil {
		return "", err
	}

	backup := reserved.Name()
	if err := reserved.Close(); err != nil {
		_ = os.Remove(backup)
		return "", err
	}

	if err := os.Rename(dst, backup); err != nil {
		_ = os.Remove(backup)
		return "", err
	}

	return backup, nil
}

func stage(dir string, f File) (string, error) {
	if f.Name == "" || filepath.Base(f.Name) != f.Name {
		return "", fmt.Errorf("invalid file name %q", f.Name)
	}

	tmp, err := os.CreateTemp(dir, "."+f.Name+".tmp-*")
	if err != nil {
		return "", err
	}

	name := tmp.Name()

	err = errors.Join(
		tmp.Chmod(f.Mode),
		writeAll(tmp, f.Contents),
		tmp.Sync(),
	)

	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(name)
		return "", err
	}

	return name, nil
}

func writeAll(w *os.File, b []byte) error {
	_, err := w.Write(b)
	return err
}
