// Package ops holds maintenance operations on a todos directory.
package ops

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const (
	metaSuffix    = ".meta.json"
	contentSuffix = ".md"
)

// IsRecordFile reports whether name is half of a todo record.
func IsRecordFile(name string) bool {
	return strings.HasSuffix(name, metaSuffix) || strings.HasSuffix(name, contentSuffix)
}

// Backup writes every record file in dir to w as a gzipped tar stream and
// returns the number of files archived. Subdirectories and temp files are skipped.
func Backup(fsys afero.Fs, dir string, w io.Writer) (int, error) {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", dir, err)
	}

	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	n := 0
	for _, info := range entries {
		if !info.Mode().IsRegular() || !IsRecordFile(info.Name()) {
			continue
		}
		if err := addFile(fsys, tw, filepath.Join(dir, info.Name()), info); err != nil {
			return n, err
		}
		n++
	}

	if err := tw.Close(); err != nil {
		return n, err
	}
	return n, gz.Close()
}

func addFile(fsys afero.Fs, tw *tar.Writer, p string, info os.FileInfo) error {
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = info.Name()
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	src, err := fsys.Open(p)
	if err != nil {
		return err
	}
	defer src.Close()

	if _, err := io.Copy(tw, src); err != nil {
		return fmt.Errorf("archive %s: %w", info.Name(), err)
	}
	return nil
}

// BackupFile writes the archive to archivePath, creating parent directories.
func BackupFile(fsys afero.Fs, dir, archivePath string) (int, error) {
	archivePath = filepath.Clean(strings.TrimSpace(archivePath))
	if archivePath == "" || archivePath == "." {
		return 0, errors.New("archive path is required")
	}
	if err := fsys.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return 0, err
	}
	f, err := fsys.Create(archivePath)
	if err != nil {
		return 0, err
	}
	n, err := Backup(fsys, dir, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// Restore extracts record files from a gzipped tar stream into dir, overwriting
// files with the same name. Entries that would escape dir are rejected.
func Restore(fsys afero.Fs, r io.Reader, dir string) (int, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	gz, err := gzip.NewReader(r)
	if err != nil {
		return 0, err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	n := 0
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, err
		}

		name, err := sanitizeEntryName(hdr.Name)
		if err != nil {
			return n, err
		}
		if hdr.Typeflag != tar.TypeReg || !IsRecordFile(name) {
			continue
		}

		dst, err := fsys.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return n, err
		}
		if _, err := io.Copy(dst, tr); err != nil {
			_ = dst.Close()
			return n, err
		}
		if err := dst.Close(); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func RestoreFile(fsys afero.Fs, archivePath, dir string) (int, error) {
	f, err := fsys.Open(archivePath)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return Restore(fsys, f, dir)
}

// sanitizeEntryName accepts only plain file names; the store is flat.
func sanitizeEntryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	clean := path.Clean(filepath.ToSlash(name))
	if clean == "." || clean == "" {
		return "", errors.New("invalid archive entry path")
	}
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid archive entry path traversal: %s", name)
	}
	if strings.Contains(clean, "/") {
		return "", fmt.Errorf("nested archive entry not allowed: %s", name)
	}
	return clean, nil
}

// Clean removes every record file and leftover temp file from dir.
func Clean(fsys afero.Fs, dir string) (int, error) {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read %s: %w", dir, err)
	}
	n := 0
	var errs []error
	for _, info := range entries {
		name := info.Name()
		if info.IsDir() || !(IsRecordFile(name) || strings.HasSuffix(name, ".tmp")) {
			continue
		}
		if err := fsys.Remove(filepath.Join(dir, name)); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}
