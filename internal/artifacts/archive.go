package artifacts

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// zipEpoch keeps archives byte-identical across runs.
var zipEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Archive zips the manifest, its signature when present, and every file
// the manifest lists from dir into out. The manifest goes first; the rest
// follow manifest order.
func Archive(dir string, m *Manifest, out string) (err error) {
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	zw := zip.NewWriter(f)
	defer func() {
		if cerr := zw.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	data, err := m.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := addBytes(zw, ManifestFile, append(data, '\n')); err != nil {
		return fmt.Errorf("failed to add manifest: %w", err)
	}
	if sig, err := os.ReadFile(filepath.Join(dir, SignatureFile)); err == nil {
		if err := addBytes(zw, SignatureFile, sig); err != nil {
			return fmt.Errorf("failed to add signature: %w", err)
		}
	}
	for _, entry := range m.Files {
		if err := addFile(zw, filepath.Join(dir, entry.Name)); err != nil {
			return fmt.Errorf("failed to add %s: %w", entry.Name, err)
		}
	}
	return nil
}

func addFile(zw *zip.Writer, src string) error {
	file, err := os.Open(src)
	if err != nil {
		return err
	}
	defer file.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     filepath.Base(src),
		Method:   zip.Deflate,
		Modified: zipEpoch,
	})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, file)
	return err
}

func addBytes(zw *zip.Writer, name string, content []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: zipEpoch,
	})
	if err != nil {
		return err
	}
	_, err = w.Write(content)
	return err
}
