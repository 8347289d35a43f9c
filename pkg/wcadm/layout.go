// Package wcadm implements the per-directory working-copy administrative
// area of spec.md §3.5 and §4.3: the entries file, pristine text-base,
// property stores, lock file, and log file living under each versioned
// directory's adm/ subdirectory.
//
// Grounded on the teacher's pkg/storage persistence conventions
// (pkg/storage/wal.go's directory layout and atomic-rename discipline,
// pkg/storage/badger.go's on-disk data directory) adapted from a single
// process-wide data directory to one adm/ area per working-copy
// directory.
package wcadm

const (
	AdmDirName     = "adm"
	EntriesFile    = "entries"
	LockFile       = "lock"
	LogFile        = "log"
	TextBaseDir    = "text-base"
	PropsDir       = "props"
	PropBaseDir    = "prop-base"
	TmpDir         = "tmp"
	TmpTextBaseDir = "tmp/text-base"

	// ThisDir is the reserved entry name carrying a directory's own
	// attributes (spec.md §3.4).
	ThisDir = "<this-dir>"
)

// Layout resolves the on-disk paths for one working-copy directory's adm
// area (spec.md §3.5, §6).
type Layout struct {
	WCDir string // the versioned directory itself
}

func NewLayout(wcDir string) *Layout { return &Layout{WCDir: wcDir} }

func (l *Layout) AdmDir() string        { return l.WCDir + "/" + AdmDirName }
func (l *Layout) EntriesPath() string   { return l.AdmDir() + "/" + EntriesFile }
func (l *Layout) LockPath() string      { return l.AdmDir() + "/" + LockFile }
func (l *Layout) LogPath() string       { return l.AdmDir() + "/" + LogFile }
func (l *Layout) TmpDir() string        { return l.AdmDir() + "/" + TmpDir }
func (l *Layout) TmpTextBaseDir() string { return l.AdmDir() + "/" + TmpTextBaseDir }

func (l *Layout) TextBasePath(name string) string {
	return l.AdmDir() + "/" + TextBaseDir + "/" + name + ".base"
}

func (l *Layout) TmpTextBasePath(name string) string {
	return l.TmpTextBaseDir() + "/" + name + ".base"
}

func (l *Layout) PropsPath(name string) string {
	return l.AdmDir() + "/" + PropsDir + "/" + name
}

func (l *Layout) PropBasePath(name string) string {
	return l.AdmDir() + "/" + PropBaseDir + "/" + name
}

// WCPropsPath names the out-of-band wc-props store for one entry: values
// the server attaches to a node (e.g. a DAV resource URL) that are never
// versioned and never touched by the log journal (spec.md §4.4, §6).
func (l *Layout) WCPropsPath(name string) string {
	return l.AdmDir() + "/" + "wcprops" + "/" + name
}

func (l *Layout) WorkingPath(name string) string {
	return l.WCDir + "/" + name
}

// EnsureDirs creates the adm skeleton for a freshly seeded working-copy
// directory (spec.md §3.5).
func (l *Layout) EnsureDirs() error {
	for _, d := range []string{
		l.AdmDir(),
		l.AdmDir() + "/" + TextBaseDir,
		l.AdmDir() + "/" + PropsDir,
		l.AdmDir() + "/" + PropBaseDir,
		l.AdmDir() + "/" + "wcprops",
		l.TmpDir(),
		l.TmpTextBaseDir(),
	} {
		if err := mkdirAll(d); err != nil {
			return err
		}
	}
	return nil
}
