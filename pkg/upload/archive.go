package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
)

// Archive compresses every file under srcDir into a zip at dst, keeping
// paths relative to srcDir. It returns the size of the written archive.
func Archive(fs afero.Fs, srcDir, dst string) (int64, error) {
	info, err := fs.Stat(srcDir)
	if err != nil {
		return 0, fmt.Errorf("stat report directory: %w", err)
	}

	if !info.IsDir() {
		return 0, fmt.Errorf("%s is not a directory", srcDir)
	}

	absDst, _ := filepath.Abs(dst)

	out, err := fs.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("creating archive: %w", err)
	}

	zw := zip.NewWriter(out)

	err = afero.Walk(fs, srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		// Skip the archive itself when it lives inside the report directory.
		if abs, _ := filepath.Abs(path); abs == absDst {
			return nil
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return fmt.Errorf("computing relative path: %w", err)
		}

		return addFile(fs, zw, path, filepath.ToSlash(rel), info)
	})
	if err != nil {
		_ = zw.Close()
		_ = out.Close()

		return 0, fmt.Errorf("walking %s: %w", srcDir, err)
	}

	if err := zw.Close(); err != nil {
		_ = out.Close()

		return 0, fmt.Errorf("finalizing archive: %w", err)
	}

	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("closing archive: %w", err)
	}

	st, err := fs.Stat(dst)
	if err != nil {
		return 0, fmt.Errorf("stat archive: %w", err)
	}

	return st.Size(), nil
}

func addFile(fs afero.Fs, zw *zip.Writer, path, name string, info os.FileInfo) error {
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("building header for %s: %w", name, err)
	}

	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("adding %s: %w", name, err)
	}

	f, err := fs.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("compressing %s: %w", name, err)
	}

	return nil
}
