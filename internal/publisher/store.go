// internal/publisher/store.go
package publisher

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// Entry is one KEY=value assignment.
type Entry struct {
	Key   string
	Value string
}

// RenderEnv applies entries to the content of a KEY=value file. For each
// key the first line starting with "KEY=" is rewritten in place; a key with
// no such line is appended. Every other byte, line endings included, is
// kept as it was.
func RenderEnv(content []byte, entries ...Entry) []byte {
	out := append([]byte(nil), content...)
	for _, e := range entries {
		line := []byte(e.Key + "=" + e.Value)
		re := regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(e.Key) + `=[^\r\n]*`)
		if loc := re.FindIndex(out); loc != nil {
			var buf bytes.Buffer
			buf.Grow(len(out) - (loc[1] - loc[0]) + len(line))
			buf.Write(out[:loc[0]])
			buf.Write(line)
			buf.Write(out[loc[1]:])
			out = buf.Bytes()
			continue
		}
		if len(out) > 0 && out[len(out)-1] != '\n' {
			out = append(out, '\n')
		}
		out = append(out, line...)
		out = append(out, '\n')
	}
	return out
}

// RenderAuth produces the full content of the auth store: one line per
// entry, nothing else.
func RenderAuth(entries ...Entry) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		fmt.Fprintf(&buf, "%s=%s\n", e.Key, e.Value)
	}
	return buf.Bytes()
}

// writeDurable replaces path with data so that a crash leaves either the old
// or the new content. It writes a temp file in the same directory, fsyncs
// it, and renames it over path. When the directory refuses that (a
// bind-mounted single file, a read-only parent) it falls back to truncating
// and rewriting path in place, still followed by fsync. The existing file
// mode is preserved. A symlinked path is resolved first so the link target
// is what gets replaced.
func writeDurable(path string, data []byte) error {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	mode := os.FileMode(0o600)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}

	renameErr := replaceViaRename(path, data, mode)
	if renameErr == nil {
		return nil
	}

	if err := rewriteInPlace(path, data, mode); err != nil {
		return fmt.Errorf("write %s (rename: %v): %w", path, renameErr, err)
	}
	return nil
}

func replaceViaRename(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true

	// Persist the directory entry too. Not every filesystem supports it.
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}

// updateInPlace truncates and rewrites an existing file through its own
// descriptor, then fsyncs. The inode, owner, mode and any symlink pointing
// at it are left as they were. A missing file is an error.
func updateInPlace(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func rewriteInPlace(path string, data []byte, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
