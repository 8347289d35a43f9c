// Package status implements the Status Classifier (STAT) of spec.md
// §4.5: it reads an entries table, the pristine text-base and property
// stores, and the on-disk working file for a path, and reports what
// kind of local change — if any — that path carries.
//
// Grounded on the teacher's pkg/storage read-path (a plain reader with
// no write locking, see pkg/storage/badger.go's Get methods), since
// STAT only ever reads working-copy state and never mutates it.
package status

import (
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"
	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"

	"github.com/orneryd/vcsfs/internal/vcserr"
	"github.com/orneryd/vcsfs/pkg/install"
	"github.com/orneryd/vcsfs/pkg/pool"
	"github.com/orneryd/vcsfs/pkg/wcadm"
)

// Text classifies spec.md §4.5's text_status / prop_status axis.
type Text string

const (
	TextNone       Text = "none"
	TextModified   Text = "modified"
	TextAdded      Text = "added"
	TextReplaced   Text = "replaced"
	TextDeleted    Text = "deleted"
	TextConflicted Text = "conflicted"
)

// Entry is one path's status record (spec.md §4.5).
type Entry struct {
	Path       string
	TextStatus Text
	PropStatus Text
	WCEntry    *wcadm.Entry
	ReposRev   int64
}

// Summary renders a human-readable one-line description of the entry,
// in the style of `svn status`'s two-column code but with a friendlier
// trailing note — e.g. "M   foo.txt (modified 3 minutes ago)".
func (e Entry) Summary() string {
	b := pool.GetStringBuilder()
	defer pool.PutStringBuilder(b)

	b.WriteByte(statusCode(e.TextStatus))
	b.WriteByte(statusCode(e.PropStatus))
	b.WriteString("  ")
	b.WriteString(e.Path)
	if e.WCEntry != nil && !e.WCEntry.TextTime.IsZero() {
		b.WriteString(" (modified ")
		b.WriteString(humanize.Time(e.WCEntry.TextTime))
		b.WriteByte(')')
	}
	return b.String()
}

func statusCode(t Text) byte {
	switch t {
	case TextModified:
		return 'M'
	case TextAdded:
		return 'A'
	case TextReplaced:
		return 'R'
	case TextDeleted:
		return 'D'
	case TextConflicted:
		return 'C'
	default:
		return ' '
	}
}

// Path classifies a single entry within dir (spec.md §4.5's per-path
// rule). name must be a direct child of dir, or wcadm.ThisDir for the
// directory's own row.
func Path(dir, name string) (Entry, error) {
	layout := wcadm.NewLayout(dir)
	entries, err := wcadm.ReadEntries(layout)
	if err != nil {
		return Entry{}, err
	}
	return classify(layout, entries, name)
}

func classify(layout *wcadm.Layout, entries *wcadm.Entries, name string) (Entry, error) {
	e, ok := entries.Get(name)
	if !ok {
		return Entry{Path: name, TextStatus: TextNone, PropStatus: TextNone}, nil
	}

	result := Entry{Path: name, WCEntry: e, ReposRev: e.Revision, TextStatus: TextNone, PropStatus: TextNone}

	switch e.Schedule {
	case wcadm.ScheduleAdd:
		result.TextStatus = TextAdded
		result.PropStatus = TextAdded
	case wcadm.ScheduleReplace:
		result.TextStatus = TextReplaced
		result.PropStatus = TextReplaced
	case wcadm.ScheduleDelete:
		result.TextStatus = TextDeleted
		result.PropStatus = TextDeleted
	default:
		textChanged, err := textModified(layout, name, e)
		if err != nil {
			return Entry{}, err
		}
		if textChanged {
			result.TextStatus = TextModified
		}
		propsChanged, err := propsModified(layout, name)
		if err != nil {
			return Entry{}, err
		}
		if propsChanged {
			result.PropStatus = TextModified
		}
	}

	if e.Conflicted && rejectFilesExist(e) {
		result.TextStatus = TextConflicted
	}

	return result, nil
}

func rejectFilesExist(e *wcadm.Entry) bool {
	if e.TextRejectFile != "" {
		if _, err := os.Stat(e.TextRejectFile); err == nil {
			return true
		}
	}
	if e.PropRejectFile != "" {
		if _, err := os.Stat(e.PropRejectFile); err == nil {
			return true
		}
	}
	return false
}

func textModified(layout *wcadm.Layout, name string, e *wcadm.Entry) (bool, error) {
	if e.Kind == "dir" {
		return false, nil
	}
	working, releaseWorking, err := readFilePooled(layout.WorkingPath(name))
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, vcserr.Wrap(vcserr.CodeIO, layout.WorkingPath(name), err)
	}
	defer releaseWorking()

	base, releaseBase, err := readFilePooled(layout.TextBasePath(name))
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, vcserr.Wrap(vcserr.CodeIO, layout.TextBasePath(name), err)
	}
	defer releaseBase()

	return blake2b.Sum256(working) != blake2b.Sum256(base), nil
}

// readFilePooled reads path's full contents into a buffer borrowed from
// pkg/pool, since a status walk over a large working copy re-reads every
// versioned file's working and pristine copies. The caller must invoke
// release once done comparing.
func readFilePooled(path string) (data []byte, release func(), err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, func() {}, err
	}
	defer f.Close()

	buf := pool.GetByteBuffer()
	for {
		if len(buf) == cap(buf) {
			buf = append(buf, 0)[:len(buf)]
		}
		n, readErr := f.Read(buf[len(buf):cap(buf)])
		buf = buf[:len(buf)+n]
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			pool.PutByteBuffer(buf)
			return nil, func() {}, readErr
		}
	}
	return buf, func() { pool.PutByteBuffer(buf) }, nil
}

func propsModified(layout *wcadm.Layout, name string) (bool, error) {
	working, err := readPropFile(layout.PropsPath(name))
	if err != nil {
		return false, err
	}
	base, err := readPropFile(layout.PropBasePath(name))
	if err != nil {
		return false, err
	}
	if len(working) != len(base) {
		return true, nil
	}
	for k, v := range working {
		if base[k] != v {
			return true, nil
		}
	}
	return false, nil
}

func readPropFile(path string) (install.PropMap, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return install.PropMap{}, nil
	}
	if err != nil {
		return nil, vcserr.Wrap(vcserr.CodeIO, path, err)
	}
	var m install.PropMap
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, vcserr.Wrap(vcserr.CodeIO, path, err)
	}
	if m == nil {
		m = install.PropMap{}
	}
	return m, nil
}

// Walk classifies dir and recurses into every subdirectory the entries
// table records as a dir whose on-disk kind is still a directory
// (spec.md §4.5: "using the entry's recorded kind to classify but the
// on-disk kind to decide whether to descend"). The <this-dir> record is
// inserted once per directory, at the head of that directory's entries.
func Walk(dir string) ([]Entry, error) {
	var out []Entry
	if err := walk(dir, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func walk(dir string, out *[]Entry) error {
	layout := wcadm.NewLayout(dir)
	entries, err := wcadm.ReadEntries(layout)
	if err != nil {
		return err
	}

	thisEntry, err := classify(layout, entries, wcadm.ThisDir)
	if err != nil {
		return err
	}
	thisEntry.Path = dir
	*out = append(*out, thisEntry)

	names := entries.Names()
	sort.Strings(names)
	for _, name := range names {
		if name == wcadm.ThisDir {
			continue
		}
		e, _ := entries.Get(name)
		entryResult, err := classify(layout, entries, name)
		if err != nil {
			return err
		}
		entryResult.Path = filepath.Join(dir, name)
		*out = append(*out, entryResult)

		if e.Kind != "dir" {
			continue
		}
		childPath := filepath.Join(dir, name)
		info, err := os.Stat(childPath)
		if err != nil || !info.IsDir() {
			continue
		}
		if err := walk(childPath, out); err != nil {
			return err
		}
	}
	return nil
}
