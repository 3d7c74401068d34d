// Package artifact checks the bundled guest root filesystem tarball before
// it is handed to wsl --import.
//
// wsl.exe reports a truncated or tampered archive with an unhelpful generic
// error, after having already created a half-registered distribution. A
// local preflight fails early with a readable message instead.
package artifact

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	gzip "github.com/klauspost/compress/gzip"
)

var (
	// ErrDigestMismatch means the tarball does not match its pinned digest.
	ErrDigestMismatch = errors.New("artifact digest mismatch")

	// ErrCorrupt means the tarball is not a readable gzip-compressed tar.
	ErrCorrupt = errors.New("artifact is not a valid gzip tarball")
)

// DigestSuffix names the optional sidecar file holding the pinned digest.
const DigestSuffix = ".sha256"

// Report describes a verified artifact.
type Report struct {
	Digest  v1.Hash
	Size    int64
	Entries int
	Pinned  bool // a sidecar digest existed and matched
}

// Verify hashes the tarball, compares it against <path>.sha256 when that
// sidecar exists, and walks the archive to prove it decompresses. Every
// name in required must appear as an entry.
func Verify(tarball string, required ...string) (*Report, error) {
	digest, size, err := hashFile(tarball)
	if err != nil {
		return nil, err
	}
	rep := &Report{Digest: digest, Size: size}

	want, err := readPinned(tarball + DigestSuffix)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	case want != digest:
		return nil, fmt.Errorf("%w: %s is %s, want %s", ErrDigestMismatch, tarball, digest, want)
	default:
		rep.Pinned = true
	}

	if rep.Entries, err = walk(tarball, required); err != nil {
		return nil, err
	}
	return rep, nil
}

func hashFile(p string) (v1.Hash, int64, error) {
	f, err := os.Open(p)
	if err != nil {
		return v1.Hash{}, 0, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	h, n, err := v1.SHA256(f)
	if err != nil {
		return v1.Hash{}, 0, fmt.Errorf("hash artifact: %w", err)
	}
	return h, n, nil
}

// readPinned parses a sidecar in either "sha256:<hex>" or sha256sum's
// "<hex>  <file>" form.
func readPinned(p string) (v1.Hash, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return v1.Hash{}, err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return v1.Hash{}, fmt.Errorf("empty digest file %s", p)
	}
	s := fields[0]
	if !strings.Contains(s, ":") {
		s = "sha256:" + strings.ToLower(s)
	}
	h, err := v1.NewHash(s)
	if err != nil {
		return v1.Hash{}, fmt.Errorf("parse digest file %s: %w", p, err)
	}
	return h, nil
}

func walk(p string, required []string) (int, error) {
	f, err := os.Open(p)
	if err != nil {
		return 0, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer gz.Close()

	missing := make(map[string]bool, len(required))
	for _, r := range required {
		missing[path.Clean(strings.TrimPrefix(r, "/"))] = true
	}

	entries := 0
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return entries, fmt.Errorf("%w: entry %d: %v", ErrCorrupt, entries, err)
		}
		entries++
		delete(missing, path.Clean(strings.TrimPrefix(hdr.Name, "./")))

		// Drain the body so truncation inside a file is caught too.
		if _, err := io.Copy(io.Discard, tr); err != nil {
			return entries, fmt.Errorf("%w: %s: %v", ErrCorrupt, hdr.Name, err)
		}
	}

	if entries == 0 {
		return 0, fmt.Errorf("%w: archive is empty", ErrCorrupt)
	}
	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for name := range missing {
			names = append(names, name)
		}
		sort.Strings(names)
		return entries, fmt.Errorf("%w: missing %s", ErrCorrupt, strings.Join(names, ", "))
	}
	return entries, nil
}
