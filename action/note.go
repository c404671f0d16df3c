package action

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/solenne/vesper/errors"
)

// NoteStore is a sandboxed directory of plain-text notes. Note names are
// sanitized so a job can never escape the notes directory.
type NoteStore struct {
	dir string
}

// NewNoteStore creates a note store rooted at dir, creating it if needed
func NewNoteStore(dir string) (*NoteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create notes dir %s", dir)
	}
	return &NoteStore{dir: dir}, nil
}

var noteNameRe = regexp.MustCompile(`^[a-zA-Z0-9._ -]+$`)

// resolve sanitizes a note name and returns its path inside the sandbox
func (s *NoteStore) resolve(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("note name is required")
	}
	// Reject separators and traversal outright; Base is a second guard
	if !noteNameRe.MatchString(name) || strings.Contains(name, "..") {
		return "", errors.Newf("invalid note name: %s", name)
	}
	if !strings.HasSuffix(name, ".txt") {
		name += ".txt"
	}
	return filepath.Join(s.dir, filepath.Base(name)), nil
}

// NoteParams is the JSON parameter shape for note actions
type NoteParams struct {
	Name    string `json:"name"`
	Content string `json:"content,omitempty"`
	Append  bool   `json:"append,omitempty"`
}

// NoteWriteAction writes or appends to a sandboxed note
type NoteWriteAction struct {
	store *NoteStore
}

// NewNoteWriteAction creates the note_write action
func NewNoteWriteAction(store *NoteStore) *NoteWriteAction {
	return &NoteWriteAction{store: store}
}

// Name returns the action identifier
func (a *NoteWriteAction) Name() string { return "note_write" }

// Execute writes the note content, overwriting unless append is set
func (a *NoteWriteAction) Execute(ctx context.Context, params json.RawMessage) (string, error) {
	var p NoteParams
	if err := json.Unmarshal(params, &p); err != nil {
		return "", errors.Wrap(err, "invalid note params")
	}

	path, err := a.store.resolve(p.Name)
	if err != nil {
		return "", err
	}

	if p.Append {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return "", errors.Wrapf(err, "failed to open note %s", p.Name)
		}
		defer f.Close()
		if _, err := f.WriteString(p.Content + "\n"); err != nil {
			return "", errors.Wrapf(err, "failed to append to note %s", p.Name)
		}
		return fmt.Sprintf("appended %d bytes to %s", len(p.Content), filepath.Base(path)), nil
	}

	if err := os.WriteFile(path, []byte(p.Content), 0o644); err != nil {
		return "", errors.Wrapf(err, "failed to write note %s", p.Name)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(p.Content), filepath.Base(path)), nil
}

// NoteReadAction reads a sandboxed note; fails if the note is absent
type NoteReadAction struct {
	store *NoteStore
}

// NewNoteReadAction creates the note_read action
func NewNoteReadAction(store *NoteStore) *NoteReadAction {
	return &NoteReadAction{store: store}
}

// Name returns the action identifier
func (a *NoteReadAction) Name() string { return "note_read" }

// Execute returns the note content
func (a *NoteReadAction) Execute(ctx context.Context, params json.RawMessage) (string, error) {
	var p NoteParams
	if err := json.Unmarshal(params, &p); err != nil {
		return "", errors.Wrap(err, "invalid note params")
	}

	path, err := a.store.resolve(p.Name)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", errors.NewNotFoundError("note not found: %s", p.Name)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to read note %s", p.Name)
	}
	return string(data), nil
}
