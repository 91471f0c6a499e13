// Package filesystem provides file tools confined to a working directory.
//
// Paths handed to the tools may be absolute or relative to the working
// directory; anything resolving outside of it is rejected. Hidden patterns
// make matching entries invisible and unreadable, read-only patterns block
// writes. Patterns use doublestar syntax relative to the working directory.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hupe1980/teamwork/tool"
)

// Tool names under which Tools registers the file tools.
const (
	ReadFileName  = "readFile"
	SaveFileName  = "saveFile"
	ListFilesName = "listFilesFromDirectory"
)

// ErrAccessDenied is returned for paths outside the working directory,
// hidden paths and writes to read-only paths.
var ErrAccessDenied = errors.New("access denied")

// Options configures a FileSystem.
type Options struct {
	// Hidden lists patterns of entries the tools never reveal.
	Hidden []string
	// ReadOnly lists patterns of entries that cannot be written.
	ReadOnly []string
}

// FileSystem is the shared confinement policy behind the file tools.
type FileSystem struct {
	root     string
	hidden   []string
	readOnly []string
}

// New creates a FileSystem rooted at workingDir.
func New(workingDir string, optFns ...func(o *Options)) (*FileSystem, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	root, err := filepath.Abs(workingDir)
	if err != nil {
		return nil, err
	}
	if root, err = filepath.EvalSymlinks(root); err != nil {
		return nil, err
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("working directory %s is not a directory", root)
	}

	for _, p := range append(append([]string{}, opts.Hidden...), opts.ReadOnly...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid pattern %q", p)
		}
	}

	return &FileSystem{root: root, hidden: opts.Hidden, readOnly: opts.ReadOnly}, nil
}

// Root returns the absolute working directory.
func (fs *FileSystem) Root() string { return fs.root }

// Tools returns readFile, saveFile and listFilesFromDirectory keyed by name.
func (fs *FileSystem) Tools() map[string]tool.Tool {
	return map[string]tool.Tool{
		ReadFileName:  fs.ReadFileTool(),
		SaveFileName:  fs.SaveFileTool(),
		ListFilesName: fs.ListFilesTool(),
	}
}

type readFileArgs struct {
	Path string `json:"path" description:"Absolute path to the file, or a path relative to the working directory"`
}

// ReadFileTool returns the content of a file.
func (fs *FileSystem) ReadFileTool() tool.Tool {
	return tool.NewFunctionToolFromStruct(
		"Reads the content of a file",
		readFileArgs{},
		func(_ context.Context, args map[string]any, _ tool.Context) (any, error) {
			var in readFileArgs
			if err := tool.Bind(args, &in); err != nil {
				return nil, err
			}
			abs, _, err := fs.resolve(in.Path, false)
			if err != nil {
				return nil, err
			}
			data, err := os.ReadFile(abs)
			if err != nil {
				return nil, err
			}
			return string(data), nil
		},
	)
}

type saveFileArgs struct {
	Path    string `json:"path" description:"Absolute path to the file, or a path relative to the working directory"`
	Content string `json:"content" description:"Content to write to the file"`
}

// SaveFileTool writes a file, creating parent directories as needed.
func (fs *FileSystem) SaveFileTool() tool.Tool {
	return tool.NewFunctionToolFromStruct(
		"Saves content to a file, replacing it if it exists",
		saveFileArgs{},
		func(_ context.Context, args map[string]any, _ tool.Context) (any, error) {
			var in saveFileArgs
			if err := tool.Bind(args, &in); err != nil {
				return nil, err
			}
			abs, _, err := fs.resolve(in.Path, true)
			if err != nil {
				return nil, err
			}
			if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
				return nil, err
			}
			if err := os.WriteFile(abs, []byte(in.Content), 0o644); err != nil {
				return nil, err
			}
			return fmt.Sprintf("File saved to %s", abs), nil
		},
	)
}

type listFilesArgs struct {
	Path string `json:"path,omitempty" description:"Directory to list; defaults to the working directory"`
}

// ListFilesTool lists a directory, one entry per line. Directories end in "/".
func (fs *FileSystem) ListFilesTool() tool.Tool {
	return tool.NewFunctionToolFromStruct(
		"Lists files and directories of a directory",
		listFilesArgs{},
		func(_ context.Context, args map[string]any, _ tool.Context) (any, error) {
			var in listFilesArgs
			if err := tool.Bind(args, &in); err != nil {
				return nil, err
			}
			abs, rel, err := fs.resolve(in.Path, false)
			if err != nil {
				return nil, err
			}
			entries, err := os.ReadDir(abs)
			if err != nil {
				return nil, err
			}

			var lines []string
			for _, e := range entries {
				if fs.isHidden(filepath.ToSlash(filepath.Join(rel, e.Name()))) {
					continue
				}
				name := filepath.Join(abs, e.Name())
				if e.IsDir() {
					name += "/"
				}
				lines = append(lines, name)
			}
			sort.Strings(lines)

			return strings.Join(lines, "\n"), nil
		},
	)
}

// resolve maps p to an absolute path inside the root and its slash separated
// path relative to the root. Symlinks are followed before the confinement
// check; hidden and read-only patterns apply to the path as given and to
// its target.
func (fs *FileSystem) resolve(p string, write bool) (string, string, error) {
	abs := p
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(fs.root, p)
	}
	abs = filepath.Clean(abs)

	rel, ok := fs.rel(abs)
	if !ok {
		return "", "", fmt.Errorf("%w: %s is outside of %s", ErrAccessDenied, p, fs.root)
	}

	target, err := evalExisting(abs)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s: %v", ErrAccessDenied, p, err)
	}
	targetRel, ok := fs.rel(target)
	if !ok {
		return "", "", fmt.Errorf("%w: %s links outside of %s", ErrAccessDenied, p, fs.root)
	}

	for _, r := range []string{rel, targetRel} {
		if r != "." && fs.isHidden(r) {
			return "", "", fmt.Errorf("%w: %s", ErrAccessDenied, p)
		}
		if write && fs.matches(fs.readOnly, r) {
			return "", "", fmt.Errorf("%w: %s is read-only", ErrAccessDenied, p)
		}
	}

	return target, rel, nil
}

func (fs *FileSystem) rel(abs string) (string, bool) {
	rel, err := filepath.Rel(fs.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// evalExisting resolves symlinks of the longest existing prefix of p and
// appends the missing remainder unchanged. A dangling symlink is an error.
func evalExisting(p string) (string, error) {
	var rest []string
	cur := p
	for {
		target, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(append([]string{target}, rest...)...), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		if _, lerr := os.Lstat(cur); lerr == nil {
			return "", fmt.Errorf("dangling symlink %s", cur)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p, nil
		}
		rest = append([]string{filepath.Base(cur)}, rest...)
		cur = parent
	}
}

// isHidden reports whether rel or any of its parent directories matches a
// hidden pattern.
func (fs *FileSystem) isHidden(rel string) bool {
	for i := 0; i <= len(rel); i++ {
		if i == len(rel) || rel[i] == '/' {
			if fs.matches(fs.hidden, rel[:i]) {
				return true
			}
		}
	}
	return false
}

func (fs *FileSystem) matches(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}
