package store

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/pavelanni/athena-playground/internal/model"
)

func newZipWriter(w io.Writer) *zip.Writer {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})
	return zw
}

// writeDirZip writes the tree below dir as a zip stream. Entries are written
// in lexical order so the same tree always yields the same entry sequence.
func writeDirZip(dir string, w io.Writer) error {
	zw := newZipWriter(w)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		name := filepath.ToSlash(rel)
		if strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if d.IsDir() {
			_, err := zw.CreateHeader(&zip.FileHeader{
				Name:     name + "/",
				Method:   zip.Store,
				Modified: info.ModTime(),
			})
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = name
		hdr.Method = zip.Deflate
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(fw, f)
		return err
	})
	if err != nil {
		return err
	}
	return zw.Close()
}

// ExportPartition streams a zip of the whole partition to w. Nothing is
// written when the partition does not exist.
func (s *Store) ExportPartition(mode model.DataMode, w io.Writer) error {
	dir, err := s.requirePartition(mode)
	if err != nil {
		return err
	}
	if err := writeDirZip(dir, w); err != nil {
		return fmt.Errorf("export partition %s: %w", mode, err)
	}
	return nil
}

// ExportDir streams a zip of a subdirectory of an exercise, e.g. a
// repository bundle referenced by a data URL.
func (s *Store) ExportDir(mode model.DataMode, exerciseID int, rel string, w io.Writer) error {
	partition, err := s.requirePartition(mode)
	if err != nil {
		return err
	}
	base := filepath.Join(partition, exerciseDirName(exerciseID))
	target := filepath.Join(base, filepath.FromSlash(path.Clean("/"+rel)))
	info, err := os.Stat(target)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("directory %q of exercise %d: %w", rel, exerciseID, model.ErrNotFound)
	}
	return writeDirZip(target, w)
}

// ImportPartition replaces the contents of a partition with the given zip
// archive and returns the number of files written. When every entry sits
// below a top-level directory named after the mode, that directory is
// stripped.
func (s *Store) ImportPartition(mode model.DataMode, r io.ReaderAt, size int64) (int, error) {
	dir, err := s.partitionDir(mode)
	if err != nil {
		return 0, err
	}
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return 0, model.Invalid(fmt.Sprintf("invalid archive: %v", err))
	}
	if len(zr.File) == 0 {
		return 0, model.Invalid("invalid archive: no entries")
	}

	names := make([]string, len(zr.File))
	for i, f := range zr.File {
		name, err := entryName(f.Name)
		if err != nil {
			return 0, err
		}
		names[i] = name
	}
	prefix := string(mode) + "/"
	stripped := true
	for _, n := range names {
		if !strings.HasPrefix(n+"/", prefix) {
			stripped = false
			break
		}
	}

	tmp, err := os.MkdirTemp(s.root, ".import-"+string(mode)+"-*")
	if err != nil {
		return 0, err
	}
	defer os.RemoveAll(tmp)
	if err := os.Chmod(tmp, 0o755); err != nil {
		return 0, err
	}

	files := 0
	for i, f := range zr.File {
		name := names[i]
		if stripped {
			name = strings.TrimPrefix(strings.TrimPrefix(name+"/", prefix), "/")
			name = strings.TrimSuffix(name, "/")
		}
		if name == "" || name == "." {
			continue
		}
		dst := filepath.Join(tmp, filepath.FromSlash(name))
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dst, 0o755); err != nil {
				return 0, err
			}
			continue
		}
		if err := extractFile(f, dst); err != nil {
			return 0, model.Invalid(fmt.Sprintf("invalid archive entry %s: %v", f.Name, err))
		}
		files++
	}

	backup := tmp + ".old"
	hadPrevious := false
	if _, err := os.Stat(dir); err == nil {
		if err := os.Rename(dir, backup); err != nil {
			return 0, fmt.Errorf("move previous partition: %w", err)
		}
		hadPrevious = true
	}
	if err := os.Rename(tmp, dir); err != nil {
		if hadPrevious {
			_ = os.Rename(backup, dir)
		}
		return 0, fmt.Errorf("install partition: %w", err)
	}
	if hadPrevious {
		if err := os.RemoveAll(backup); err != nil {
			slog.Warn("failed to remove previous partition", "path", backup, "error", err)
		}
	}
	slog.Info("imported partition", "mode", mode, "files", files)
	return files, nil
}

// entryName normalizes an archive entry name and rejects names that would
// escape the partition.
func entryName(name string) (string, error) {
	if strings.Contains(name, `\`) {
		name = strings.ReplaceAll(name, `\`, "/")
	}
	clean := path.Clean(name)
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", model.Invalid(fmt.Sprintf("invalid archive: entry %q escapes the partition", name))
	}
	return clean, nil
}

func extractFile(f *zip.File, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
