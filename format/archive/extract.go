package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/appsworld/xbinutils/config"
	"github.com/appsworld/xbinutils/internal/bstream"
	"github.com/appsworld/xbinutils/xerrors"
)

// maxConflictAttempts bounds the collision-renaming search per §4.7;
// giving up here means the output directory already holds an
// implausible number of same-named variants.
const maxConflictAttempts = 10000

// Extract writes every non-symtab member of the archive into outDir,
// returning the paths written in member order. A name collision is
// resolved by inserting "_<N>" before the extension, N starting at 1.
func Extract(r io.ReaderAt, size int64, outDir string) ([]string, error) {
	members, err := Iterate(r, size)
	if err != nil {
		return nil, err
	}

	var written []string
	for _, m := range members {
		if m.IsSymtab || m.Name == "" {
			continue
		}

		path, err := reservePath(outDir, m.Name)
		if err != nil {
			return written, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return written, fmt.Errorf("archive: creating %s: %w", filepath.Dir(path), err)
		}

		memberR := &offsetReaderAt{r: r, base: m.Offset, size: m.Size}
		if err := writeMember(path, &readAtReader{r: memberR}, m.Size); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// writeMember copies n bytes from src into path. When config.TmpDir is
// set, the member is staged there first and renamed into place, so a
// destination that doesn't support atomic overwrite (e.g. some NFS
// mounts) never sees a partially-written file.
func writeMember(path string, src io.Reader, n int64) error {
	if config.TmpDir == "" {
		out, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("archive: creating %s: %w", path, err)
		}
		copyErr := bstream.Copy(out, src, n)
		closeErr := out.Close()
		if copyErr != nil {
			return copyErr
		}
		if closeErr != nil {
			return fmt.Errorf("archive: closing %s: %w", path, closeErr)
		}
		return nil
	}

	tmp, err := os.CreateTemp(config.TmpDir, "archive-extract-*")
	if err != nil {
		return fmt.Errorf("archive: staging in %s: %w", config.TmpDir, err)
	}
	tmpPath := tmp.Name()
	copyErr := bstream.Copy(tmp, src, n)
	closeErr := tmp.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return copyErr
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("archive: closing staged %s: %w", tmpPath, closeErr)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("archive: renaming %s into place: %w", path, err)
	}
	return nil
}

// reservePath finds the first available output path for name under
// outDir, inserting "_<N>" before the extension on collision.
func reservePath(outDir, name string) (string, error) {
	path := filepath.Join(outDir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path, nil
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 1; n <= maxConflictAttempts; n++ {
		candidate := filepath.Join(outDir, base+"_"+strconv.Itoa(n)+ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("archive: no collision-free name for %q after %d attempts: %w", name, maxConflictAttempts, xerrors.ErrConflict)
}

// readAtReader adapts an io.ReaderAt with a sequential cursor into an
// io.Reader, for use with bstream.Copy's streaming interface.
type readAtReader struct {
	r   io.ReaderAt
	off int64
}

func (rr *readAtReader) Read(p []byte) (int, error) {
	n, err := rr.r.ReadAt(p, rr.off)
	rr.off += int64(n)
	return n, err
}
