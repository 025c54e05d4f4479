// Package modelsource resolves a configured model path into a model root
// directory on disk.
//
// Engines need a plain directory (Vosk) or a file inside one (whisper), but
// models are distributed as archives; Resolve accepts either. A directory is
// used as-is. A .zip, .tar, .tar.gz, or .tgz archive is extracted into a
// fresh temp directory, and when the archive wraps everything in a single
// top-level directory (the common packaging for Vosk models) that
// directory becomes the root. The returned cleanup removes whatever was
// extracted and is a no-op for the directory case, so callers can defer it
// unconditionally.
package modelsource

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Resolve turns path into a usable model root. See the package comment for
// the accepted forms.
func Resolve(path string) (root string, cleanup func(), err error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", nil, fmt.Errorf("model source %q: %w", path, err)
	}
	if info.IsDir() {
		return path, func() {}, nil
	}

	var extract func(src, dest string) error
	switch {
	case hasSuffixFold(path, ".zip"):
		extract = extractZip
	case hasSuffixFold(path, ".tar.gz"), hasSuffixFold(path, ".tgz"):
		extract = extractTarGz
	case hasSuffixFold(path, ".tar"):
		extract = extractTar
	default:
		return "", nil, fmt.Errorf("unsupported model source %q (expected a directory, .zip, .tar, .tar.gz, or .tgz)", path)
	}

	dest, err := os.MkdirTemp("", "vaiccs-model-*")
	if err != nil {
		return "", nil, fmt.Errorf("model source %q: %w", path, err)
	}
	if err := extract(path, dest); err != nil {
		os.RemoveAll(dest)
		return "", nil, fmt.Errorf("extracting model source %q: %w", path, err)
	}

	root = dest
	if wrapper, ok := singleDir(dest); ok {
		root = wrapper
	}
	return root, func() { os.RemoveAll(dest) }, nil
}

func hasSuffixFold(path, suffix string) bool {
	return strings.HasSuffix(strings.ToLower(path), suffix)
}

// singleDir reports the sole top-level directory of dir, when that is all
// dir contains.
func singleDir(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 || !entries[0].IsDir() {
		return "", false
	}
	return filepath.Join(dir, entries[0].Name()), true
}

// securePath joins name under dest, rejecting entries that escape it.
func securePath(dest, name string) (string, error) {
	target := filepath.Join(dest, name)
	if target != dest && !strings.HasPrefix(target, dest+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes the extraction directory", name)
	}
	return target, nil
}

func extractZip(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		target, err := securePath(dest, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("opening %q: %w", f.Name, err)
		}
		err = writeEntry(target, rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("extracting %q: %w", f.Name, err)
		}
	}
	return nil
}

func extractTarGz(src, dest string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gr.Close()

	return extractTarStream(tar.NewReader(gr), dest)
}

func extractTar(src, dest string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	return extractTarStream(tar.NewReader(f), dest)
}

func extractTarStream(tr *tar.Reader, dest string) error {
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		target, err := securePath(dest, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr); err != nil {
				return fmt.Errorf("extracting %q: %w", hdr.Name, err)
			}
		default:
			// Symlinks and special files have no place in a model archive.
		}
	}
}

func writeEntry(target string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
