package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sakif/example-author/internal/editor"
	"github.com/sakif/example-author/internal/model"
)

// FileExt is the extension of example files.
const FileExt = ".yaml"

// RunSuffix marks a trigger file: touching "<name>.yaml.run" runs the
// example in "<name>.yaml".
const RunSuffix = ".run"

// File is the on-disk form of one example.
//
// Comments are matched to the example's thread by position, counting only
// non-blank entries. Entries added at the end become new comments; removing
// one changes nothing, since the store keeps comments forever.
type File struct {
	ID       int64         `yaml:"id,omitempty"`
	Status   model.Status  `yaml:"status"`
	Title    string        `yaml:"title"`
	Prelude  string        `yaml:"prelude,omitempty"`
	Code     string        `yaml:"code"`
	Postlude string        `yaml:"postlude,omitempty"`
	Comments []FileComment `yaml:"comments,omitempty"`
}

type FileComment struct {
	Text      string `yaml:"text"`
	By        string `yaml:"by,omitempty"`
	Dismissed bool   `yaml:"dismissed,omitempty"`
}

// FileFromDocument converts a document to its file form.
func FileFromDocument(doc model.Example) File {
	f := File{
		Status:   doc.Status,
		Title:    doc.Title,
		Prelude:  doc.Prelude,
		Code:     doc.Code,
		Postlude: doc.Postlude,
	}
	if doc.BackendID > 0 {
		f.ID = doc.BackendID
	}
	for _, c := range doc.Comments {
		f.Comments = append(f.Comments, FileComment{
			Text:      c.Text,
			By:        c.CreatedBy,
			Dismissed: c.IsDismissed(),
		})
	}
	return f
}

// ReadFile parses an example file. An empty file is an error so that a
// half-written file is not taken for an empty example.
func ReadFile(path string) (File, error) {
	var f File
	raw, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return f, fmt.Errorf("%s: empty file", path)
	}
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return f, fmt.Errorf("%s: %w", path, err)
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, fmt.Errorf("%s: unknown status %q", path, f.Status)
	}
	return f, nil
}

// WriteFile writes f to path with two-space indentation.
func WriteFile(path string, f File) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// ListFiles returns the example files of dir, sorted by name.
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), FileExt) {
			continue
		}
		out = append(out, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// Apply turns the differences between f and e into mutations of e. Only
// fields that differ are touched, so a moderation session can apply a file
// whose content it is not allowed to change as long as only the status or
// comments moved.
func Apply(e *editor.Example, f File) error {
	doc := e.ToDocument()

	if f.Title != doc.Title {
		if err := e.SetTitle(f.Title); err != nil {
			return err
		}
	}
	for _, seg := range model.Segments {
		want := fileSegment(&f, seg)
		if want != doc.Segment(seg) {
			if err := e.SetSegment(seg, want); err != nil {
				return err
			}
		}
	}
	if f.Status != "" && f.Status != doc.Status {
		if err := e.SetStatus(f.Status); err != nil {
			return err
		}
	}

	// blank entries are not comments and do not take a position
	pos := 0
	for _, fc := range f.Comments {
		text := strings.TrimSpace(fc.Text)
		if text == "" {
			continue
		}
		if pos >= len(doc.Comments) {
			if err := e.AddComment(text); err != nil {
				return err
			}
			if fc.Dismissed {
				if err := e.ToggleDismissed(pos); err != nil {
					return err
				}
			}
			pos++
			continue
		}
		cur := doc.Comments[pos]
		if text != strings.TrimSpace(cur.Text) {
			if err := e.EditComment(pos, text); err != nil {
				return err
			}
		}
		if fc.Dismissed != cur.IsDismissed() {
			if err := e.ToggleDismissed(pos); err != nil {
				return err
			}
		}
		pos++
	}
	return nil
}

func fileSegment(f *File, seg model.Segment) string {
	switch seg {
	case model.SegmentPrelude:
		return f.Prelude
	case model.SegmentCode:
		return f.Code
	case model.SegmentPostlude:
		return f.Postlude
	}
	return ""
}

// errEmptyDir is returned when edit is pointed at a directory that already
// holds example files.
var errEmptyDir = errors.New("directory already contains example files")
