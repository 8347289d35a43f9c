package wcadm

import (
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/orneryd/vcsfs/internal/vcserr"
)

// Schedule records the pending local change on an entry (spec.md §3.4).
type Schedule string

const (
	ScheduleNormal  Schedule = "normal"
	ScheduleAdd     Schedule = "add"
	ScheduleDelete  Schedule = "delete"
	ScheduleReplace Schedule = "replace"
)

// Entry is one row of the WCE table (spec.md §3.4): everything the
// working copy remembers about a single versioned path, independent of
// the DAG-layer node revision it currently tracks.
type Entry struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"` // "file" | "dir"
	URL  string `yaml:"url"`

	Revision int64    `yaml:"revision"`
	Schedule Schedule `yaml:"schedule"`

	Conflicted     bool   `yaml:"conflicted,omitempty"`
	TextRejectFile string `yaml:"text_reject_file,omitempty"`
	PropRejectFile string `yaml:"prop_reject_file,omitempty"`

	CommittedRev  int64     `yaml:"committed_rev"`
	CommittedDate time.Time `yaml:"committed_date"`
	LastAuthor    string    `yaml:"last_author"`

	TextTime time.Time `yaml:"text_time"`
	PropTime time.Time `yaml:"prop_time"`

	// Changelist groups this entry under a user-named changelist,
	// supplementing the base spec per SPEC_FULL.md §3.
	Changelist string `yaml:"changelist,omitempty"`
}

// Entries is the in-memory form of one directory's adm/entries file,
// keyed by entry name with ThisDir reserved for the directory's own row.
type Entries struct {
	byName map[string]*Entry
}

func NewEntries() *Entries {
	return &Entries{byName: make(map[string]*Entry)}
}

func (es *Entries) Get(name string) (*Entry, bool) {
	e, ok := es.byName[name]
	return e, ok
}

func (es *Entries) ThisDir() (*Entry, bool) {
	return es.Get(ThisDir)
}

func (es *Entries) Set(e *Entry) {
	es.byName[e.Name] = e
}

func (es *Entries) Remove(name string) {
	delete(es.byName, name)
}

func (es *Entries) Names() []string {
	names := make([]string, 0, len(es.byName))
	for n := range es.byName {
		names = append(names, n)
	}
	return names
}

func (es *Entries) Len() int { return len(es.byName) }

// Update is a masked modification to one entry: only non-nil fields are
// applied, mirroring the distilled source's entry_modify masked-update
// semantics (spec.md §3.4, §9).
type Update struct {
	Kind           *string
	URL            *string
	Revision       *int64
	Schedule       *Schedule
	Conflicted     *bool
	TextRejectFile *string
	PropRejectFile *string
	CommittedRev   *int64
	CommittedDate  *time.Time
	LastAuthor     *string
	TextTime       *time.Time
	PropTime       *time.Time
	Changelist     *string
}

// Apply modifies the named entry in place, creating it first if absent,
// and returns the modified entry.
func (es *Entries) Apply(name string, u Update) *Entry {
	e, ok := es.byName[name]
	if !ok {
		e = &Entry{Name: name}
		es.byName[name] = e
	}
	if u.Kind != nil {
		e.Kind = *u.Kind
	}
	if u.URL != nil {
		e.URL = *u.URL
	}
	if u.Revision != nil {
		e.Revision = *u.Revision
	}
	if u.Schedule != nil {
		e.Schedule = *u.Schedule
	}
	if u.Conflicted != nil {
		e.Conflicted = *u.Conflicted
	}
	if u.TextRejectFile != nil {
		e.TextRejectFile = *u.TextRejectFile
	}
	if u.PropRejectFile != nil {
		e.PropRejectFile = *u.PropRejectFile
	}
	if u.CommittedRev != nil {
		e.CommittedRev = *u.CommittedRev
	}
	if u.CommittedDate != nil {
		e.CommittedDate = *u.CommittedDate
	}
	if u.LastAuthor != nil {
		e.LastAuthor = *u.LastAuthor
	}
	if u.TextTime != nil {
		e.TextTime = *u.TextTime
	}
	if u.PropTime != nil {
		e.PropTime = *u.PropTime
	}
	if u.Changelist != nil {
		e.Changelist = *u.Changelist
	}
	return e
}

// entriesFile is the on-disk envelope: a plain list, since map key order
// is not stable and the file should diff predictably between writes.
type entriesFile struct {
	Entries []*Entry `yaml:"entries"`
}

// ReadEntries loads adm/entries for one working-copy directory. A
// missing file is not an error: it means the directory has never been
// populated, and callers get an empty table.
func ReadEntries(layout *Layout) (*Entries, error) {
	data, err := os.ReadFile(layout.EntriesPath())
	if os.IsNotExist(err) {
		return NewEntries(), nil
	}
	if err != nil {
		return nil, vcserr.Wrap(vcserr.CodeIO, layout.EntriesPath(), err)
	}

	var onDisk entriesFile
	if err := yaml.Unmarshal(data, &onDisk); err != nil {
		return nil, vcserr.Wrap(vcserr.CodeIO, layout.EntriesPath(), err)
	}

	es := NewEntries()
	for _, e := range onDisk.Entries {
		es.Set(e)
	}
	return es, nil
}

// WriteEntries persists the entries table via open/close-adm-file so a
// crash mid-write never leaves a truncated entries file behind (spec.md
// §4.3: the entries file is always replaced atomically).
func WriteEntries(layout *Layout, es *Entries) error {
	onDisk := entriesFile{Entries: make([]*Entry, 0, es.Len())}
	names := es.Names()
	sort.Strings(names)
	for _, name := range names {
		e, _ := es.Get(name)
		onDisk.Entries = append(onDisk.Entries, e)
	}

	data, err := yaml.Marshal(onDisk)
	if err != nil {
		return vcserr.Wrap(vcserr.CodeIO, layout.EntriesPath(), err)
	}

	f, err := OpenAdmFile(layout, EntriesFile)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Abort()
		return vcserr.Wrap(vcserr.CodeIO, layout.EntriesPath(), err)
	}
	return f.Close(true)
}
