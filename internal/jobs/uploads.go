package jobs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/localnerve/lite/internal/types"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SafeName reduces a client supplied file name to a plain base name
func SafeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Trim(unsafeFileChars.ReplaceAllString(name, "_"), "._")
	if name == "" {
		return "upload.json"
	}
	return name
}

// UploadPath is where an upload is retained: root/<namespace>/<run-uuid>_<name>
func UploadPath(root, ns, runUUID, filename string) string {
	return filepath.Join(root, ns, runUUID+"_"+SafeName(filename))
}

// SaveUpload writes r to the retained path of a run, failing once more than max bytes arrive
func SaveUpload(root, ns, runUUID, filename string, r io.Reader, max int64) (string, int64, error) {
	path := UploadPath(root, ns, runUUID, filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", 0, fmt.Errorf("%w: upload folder: %v", types.ErrStorageFailure, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", 0, fmt.Errorf("%w: create upload: %v", types.ErrStorageFailure, err)
	}

	src := r
	if max > 0 {
		src = io.LimitReader(r, max+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && max > 0 && n > max {
		err = fmt.Errorf("%w: upload exceeds %d bytes", types.ErrInvalidArgument, max)
	}
	if err != nil {
		os.Remove(path)
		if errors.Is(err, types.ErrInvalidArgument) {
			return "", 0, err
		}
		return "", 0, fmt.Errorf("%w: write upload: %v", types.ErrStorageFailure, err)
	}
	return path, n, nil
}

// MoveUpload moves a dropped file to the retained path of a run
func MoveUpload(src, root, ns, runUUID string) (string, int64, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", 0, err
	}
	path := UploadPath(root, ns, runUUID, filepath.Base(src))
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", 0, fmt.Errorf("%w: upload folder: %v", types.ErrStorageFailure, err)
	}
	if err := os.Rename(src, path); err == nil {
		return path, info.Size(), nil
	}

	// different filesystem
	in, err := os.Open(src)
	if err != nil {
		return "", 0, err
	}
	defer in.Close()
	path, n, err := SaveUpload(root, ns, runUUID, filepath.Base(src), in, 0)
	if err != nil {
		return "", 0, err
	}
	if err := os.Remove(src); err != nil {
		return "", 0, fmt.Errorf("%w: remove dropped file: %v", types.ErrStorageFailure, err)
	}
	return path, n, nil
}
