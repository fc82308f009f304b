package guard

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/skycode/skypanel/config"
	"github.com/skycode/skypanel/types"
)

// Guard holds the locked port and base directory and checks requests against them.
// It has no mutable state and is safe for concurrent use.
type Guard struct {
	port    int
	baseDir string
}

func New(cfg config.Config) *Guard {
	return &Guard{
		port:    cfg.Port,
		baseDir: cfg.BaseDir,
	}
}

func (g *Guard) Port() int {
	return g.port
}

func (g *Guard) BaseDir() string {
	return g.baseDir
}

// EnsurePort fails with *types.InvalidPortError unless port is the locked port.
func (g *Guard) EnsurePort(port int) error {
	if port != g.port {
		return &types.InvalidPortError{Port: port, Allowed: g.port}
	}
	return nil
}

// EnsurePathAllowed fails with *types.AccessDeniedError unless the canonical form
// of path is the base directory itself or lies underneath it.
func (g *Guard) EnsurePathAllowed(path string) error {
	base, err := Canonical(g.baseDir)
	if err != nil {
		return &types.AccessDeniedError{Path: path, Base: g.baseDir}
	}

	target, err := Canonical(path)
	if err != nil {
		return &types.AccessDeniedError{Path: path, Base: base}
	}

	if !within(base, target) {
		return &types.AccessDeniedError{Path: target, Base: base}
	}
	return nil
}

const maxSymlinkHops = 255

var (
	errEmptyPath   = errors.New("empty path")
	errSymlinkLoop = errors.New("too many levels of symbolic links")
)

// Canonical returns the absolute form of path with every symlink resolved.
// The path is walked one segment at a time on its raw form, so a ".." after a
// symlink climbs out of the link's target, the way the kernel would. Segments
// that do not exist yet are appended as they are, and a dangling symlink is
// judged by where it points.
func Canonical(path string) (string, error) {
	if path == "" {
		return "", errEmptyPath
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		path = cwd + string(os.PathSeparator) + path
	}

	volume := filepath.VolumeName(path)
	resolved := volume + string(os.PathSeparator)
	pending := splitSegments(path[len(volume):])

	var hops int
	for len(pending) > 0 {
		seg := pending[0]
		pending = pending[1:]

		switch seg {
		case ".":
			continue
		case "..":
			resolved = filepath.Dir(resolved)
			continue
		}

		next := filepath.Join(resolved, seg)
		info, err := os.Lstat(next)
		if errors.Is(err, fs.ErrNotExist) {
			resolved = next
			continue
		}
		if err != nil {
			return "", err
		}

		if info.Mode()&fs.ModeSymlink == 0 {
			resolved = next
			continue
		}

		hops++
		if hops > maxSymlinkHops {
			return "", errSymlinkLoop
		}

		target, err := os.Readlink(next)
		if err != nil {
			return "", err
		}
		if filepath.IsAbs(target) {
			targetVolume := filepath.VolumeName(target)
			resolved = targetVolume + string(os.PathSeparator)
			target = target[len(targetVolume):]
		}
		pending = append(splitSegments(target), pending...)
	}

	return resolved, nil
}

func splitSegments(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool {
		return r < 0x80 && os.IsPathSeparator(uint8(r))
	})
}

func within(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)) && !filepath.IsAbs(rel)
}
