package downloads

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/ulikunitz/xz"
)

// Format is an archive container.
type Format string

const (
	Zip      Format = "zip"
	SevenZip Format = "7z"
	TarXz    Format = "tar.xz"
	TarGz    Format = "tar.gz"
)

// FormatFromName infers the archive format from a file name or URL.
func FormatFromName(name string) (Format, error) {
	lower := strings.ToLower(name)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	switch {
	case strings.HasSuffix(lower, ".zip"), strings.HasSuffix(lower, "/zip"):
		return Zip, nil
	case strings.HasSuffix(lower, ".7z"):
		return SevenZip, nil
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return TarXz, nil
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return TarGz, nil
	}
	return "", fmt.Errorf("unrecognized archive type: %s", name)
}

// ExtractBinaries copies every regular file in the archive whose base name is
// one of names into destDir, flattened and marked executable. It returns the
// written paths; finding none is an error.
func ExtractBinaries(archivePath string, format Format, destDir string, names []string) ([]string, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	var written []string
	emit := func(name string, r io.Reader) error {
		base := path.Base(filepath.ToSlash(name))
		if !want[base] {
			return nil
		}
		dest := filepath.Join(destDir, base)
		if err := writeExecutable(dest, r); err != nil {
			return err
		}
		written = append(written, dest)
		return nil
	}

	var err error
	switch format {
	case Zip:
		err = walkZip(archivePath, emit)
	case SevenZip:
		err = walk7z(archivePath, emit)
	case TarXz:
		err = walkTar(archivePath, func(r io.Reader) (io.Reader, error) { return xz.NewReader(r) }, emit)
	case TarGz:
		err = walkTar(archivePath, func(r io.Reader) (io.Reader, error) { return gzip.NewReader(r) }, emit)
	default:
		err = fmt.Errorf("unsupported archive format %q", format)
	}
	if err != nil {
		return written, err
	}
	if len(written) == 0 {
		return nil, fmt.Errorf("none of %v found in archive", names)
	}
	return written, nil
}

func writeExecutable(dest string, r io.Reader) error {
	tmp := dest + ".part"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0755)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to extract %s: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}

func walkZip(archivePath string, emit func(string, io.Reader) error) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open zip archive: %w", err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return fmt.Errorf("failed to open %s in archive: %w", file.Name, err)
		}
		err = emit(file.Name, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func walk7z(archivePath string, emit func(string, io.Reader) error) error {
	reader, err := sevenzip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open 7z archive: %w", err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return fmt.Errorf("failed to open %s in archive: %w", file.Name, err)
		}
		err = emit(file.Name, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func walkTar(archivePath string, decompress func(io.Reader) (io.Reader, error), emit func(string, io.Reader) error) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	dr, err := decompress(file)
	if err != nil {
		return fmt.Errorf("failed to decompress archive: %w", err)
	}
	tr := tar.NewReader(dr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		if err := emit(header.Name, tr); err != nil {
			return err
		}
	}
}
