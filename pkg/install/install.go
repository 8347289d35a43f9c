package install

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"

	"github.com/orneryd/vcsfs/internal/vcsconfig"
	"github.com/orneryd/vcsfs/internal/vcserr"
	"github.com/orneryd/vcsfs/pkg/logjournal"
	"github.com/orneryd/vcsfs/pkg/wcadm"
)

// Installer is the File Installer (INST) of spec.md §4.4.3, invoked by
// the update editor once per file that needs new text and/or properties.
type Installer struct {
	cfg     *vcsconfig.Config
	differ  *Differ
	patcher *Patcher
}

func NewInstaller(cfg *vcsconfig.Config) *Installer {
	return &Installer{cfg: cfg, differ: NewDiffer(cfg), patcher: NewPatcher(cfg)}
}

// Request carries everything InstallFile needs for one file (spec.md
// §4.4.3's opening tuple): `(file_path, new_rev, new_text_path?, props?,
// is_full_proplist, new_URL?)`.
type Request struct {
	Dir      string // the parent working-copy directory
	Basename string
	NewRev   int64

	// NewTextPath names a staged text-base file outside adm/tmp/text-base;
	// empty means no incoming text change.
	NewTextPath string

	FullProplist   PropMap      // used when IsFullProplist
	PropChanges    []PropChange // used when !IsFullProplist
	IsFullProplist bool

	NewURL string

	MimeType string // used to decide is_binary
}

// Result reports what InstallFile did, for callers (and tests) that need
// to observe the outcome without re-reading disk state.
type Result struct {
	Conflicted   bool
	PropConflict bool
}

// InstallFile runs the full install algorithm: property sort and merge,
// entry-prop emission, text merge via the merge matrix, and the trailing
// MODIFY_ENTRY bookkeeping — all as queued log commands replayed exactly
// once before the lock is released (spec.md §4.4.3).
func (inst *Installer) InstallFile(ctx context.Context, req Request) (Result, error) {
	layout := wcadm.NewLayout(req.Dir)
	if err := layout.EnsureDirs(); err != nil {
		return Result{}, err
	}

	lock, err := wcadm.Acquire(ctx, layout, inst.cfg.WCLockTimeout)
	if err != nil {
		return Result{}, err
	}
	defer lock.Release()

	entries, err := wcadm.ReadEntries(layout)
	if err != nil {
		return Result{}, err
	}
	run := newInstallRun(inst, layout, req.Basename, entries)

	// A log left over from a crashed prior install must be replayed (or
	// discarded, if incomplete) before this install queues anything new.
	if err := logjournal.Replay(layout, run); err != nil {
		return Result{}, err
	}
	if err := wcadm.WriteEntries(layout, run.entries); err != nil {
		return Result{}, err
	}

	journal := logjournal.New(layout)
	result := Result{}

	// --- step 2: property sort -------------------------------------------------
	var regular, entryProps, wcProps []PropChange
	if req.IsFullProplist {
		pristine, err := readPropMap(layout.PropBasePath(req.Basename))
		if err != nil {
			return Result{}, err
		}
		for _, c := range DiffProps(pristine, req.FullProplist) {
			switch ClassifyProp(c.Name) {
			case PropEntry:
				entryProps = append(entryProps, c)
			case PropWC:
				wcProps = append(wcProps, c)
			default:
				regular = append(regular, c)
			}
		}
	} else {
		for _, c := range req.PropChanges {
			switch ClassifyProp(c.Name) {
			case PropEntry:
				entryProps = append(entryProps, c)
			case PropWC:
				wcProps = append(wcProps, c)
			default:
				regular = append(regular, c)
			}
		}
	}

	// --- step 3: regular-prop merge ---------------------------------------------
	var mergedProps PropMap
	propsLocallyModified := false
	if len(regular) > 0 {
		pristine, err := readPropMap(layout.PropBasePath(req.Basename))
		if err != nil {
			return Result{}, err
		}
		working, err := readPropMap(layout.PropsPath(req.Basename))
		if err != nil {
			return Result{}, err
		}
		propsLocallyModified = !propMapsEqual(pristine, working)

		var conflicts map[string]bool
		mergedProps, conflicts = MergePropDiffs(pristine, working, regular)
		if len(conflicts) > 0 {
			result.PropConflict = true
		}

		tmpProps, err := stageBytes(layout, "props-"+req.Basename, mustMarshalProps(mergedProps))
		if err != nil {
			return Result{}, err
		}
		tmpPropBase, err := stageBytes(layout, "propbase-"+req.Basename, mustMarshalProps(mergedProps))
		if err != nil {
			return Result{}, err
		}
		journal.Append(
			logjournal.CP(tmpProps, layout.PropsPath(req.Basename), logjournal.TranslateNone),
			logjournal.CP(tmpPropBase, layout.PropBasePath(req.Basename), logjournal.TranslateNone),
		)
	}

	// wc-props are stored out-of-band: applied directly to disk rather
	// than queued in the log, since they carry no versioned working-copy
	// state for a crash to leave inconsistent (spec.md §4.4 change_dir_prop
	// routing table).
	if len(wcProps) > 0 {
		if err := applyWCProps(layout, req.Basename, wcProps); err != nil {
			return Result{}, err
		}
	}

	// --- step 4: entry-prop emission ---------------------------------------------
	for _, c := range entryProps {
		val := ""
		if c.Value != nil {
			val = *c.Value
		}
		journal.Append(logjournal.ModifyEntry(req.Basename, map[string]string{
			EntryPropAttr(c.Name): val,
		}))
	}

	// --- step 5-13: text merge ---------------------------------------------------
	textLocallyModified := isLocallyModified(layout, req.Basename)
	if req.NewTextPath != "" {
		conflicted, locallyModified, err := inst.installText(layout, journal, req, mergedProps, propsLocallyModified)
		if err != nil {
			return Result{}, err
		}
		result.Conflicted = conflicted
		textLocallyModified = locallyModified
	}

	// --- step 10-13: entry bookkeeping --------------------------------------------
	finalFields := map[string]string{
		"kind":     "file",
		"revision": fmt.Sprintf("%d", req.NewRev),
	}
	if !textLocallyModified {
		// spec.md §8 scenario 4 ("Update no-op"): text_time bumps to the
		// replay-time working-file mtime whenever the file was not locally
		// modified, whether or not new text actually arrived.
		finalFields["text_time"] = "WC"
	}
	if len(regular) > 0 && !propsLocallyModified {
		finalFields["prop_time"] = "WC"
	}
	if req.NewURL != "" {
		finalFields["url"] = req.NewURL
	}
	journal.Append(logjournal.ModifyEntry(req.Basename, finalFields))

	if err := journal.Flush(); err != nil {
		return Result{}, err
	}
	if err := logjournal.Replay(layout, run); err != nil {
		return Result{}, err
	}
	if err := wcadm.WriteEntries(layout, run.entries); err != nil {
		return Result{}, err
	}

	return result, nil
}

// installText implements spec.md §4.4.3 steps 5-9, the merge-matrix text
// section. It reports whether a conflict was raised and whether the
// working file had local modifications, so the caller can decide
// whether to bump text_time.
func (inst *Installer) installText(layout *wcadm.Layout, journal *logjournal.Journal, req Request, mergedProps PropMap, propsLocallyModified bool) (conflicted bool, locallyModified bool, err error) {
	isBinary := req.MimeType != "" && !bytes.HasPrefix([]byte(req.MimeType), []byte("text/"))

	eolStyle := inst.cfg.EOLStyleDefault
	if v, ok := mergedProps["svn:eol-style"]; ok {
		eolStyle = vcsconfig.EOLStyle(v)
	}
	enabledKeywords := map[string]bool{}
	if v, ok := mergedProps["svn:keywords"]; ok {
		enabledKeywords = ParseKeywordList(v)
	}

	workingPath := layout.WorkingPath(req.Basename)
	oldTextBasePath := layout.TextBasePath(req.Basename)

	// Position the new text-base under adm/tmp/text-base (step 6): the one
	// non-logged step, safe because the destination is adm-private and
	// idempotent if the file is already there.
	tmpTextBase := layout.TmpTextBasePath(req.Basename)
	if req.NewTextPath != tmpTextBase {
		if cpErr := copyFile(req.NewTextPath, tmpTextBase); cpErr != nil {
			return false, false, cpErr
		}
	}

	// step 7: MV tmp_textbase -> textbase is the first log command of the
	// text section. The diff/merge work below reads oldTextBasePath
	// directly — at this point in InstallFile the log has only been
	// queued, not replayed, so the old textbase is still on disk.
	journal.Append(logjournal.MV(tmpTextBase, oldTextBasePath))

	workingData, workingErr := os.ReadFile(workingPath)
	hasWorking := workingErr == nil

	locallyModified = false
	if hasWorking {
		if oldTextBase, readErr := os.ReadFile(oldTextBasePath); readErr == nil {
			locallyModified = !sameContent(oldTextBase, workingData)
		}
	}

	kv := KeywordValues{Revision: req.NewRev, Date: time.Now(), Author: "", URL: req.NewURL}

	switch {
	case !locallyModified:
		// no local mods: straight copy with translation.
		newData, readErr := os.ReadFile(req.NewTextPath)
		if readErr != nil {
			return false, locallyModified, vcserr.Wrap(vcserr.CodeIO, req.NewTextPath, readErr)
		}
		translated := TranslateEOL(newData, eolStyle)
		translated = ExpandKeywords(translated, req.Basename, enabledKeywords, kv)
		tmpWorking, stageErr := stageBytes(layout, "working-"+req.Basename, translated)
		if stageErr != nil {
			return false, locallyModified, stageErr
		}
		journal.Append(logjournal.CP(tmpWorking, workingPath, logjournal.TranslateFull))

	case locallyModified && !isBinary:
		oldTextBase, _ := os.ReadFile(oldTextBasePath)
		newTextBase, readErr := os.ReadFile(req.NewTextPath)
		if readErr != nil {
			return false, locallyModified, vcserr.Wrap(vcserr.CodeIO, req.NewTextPath, readErr)
		}
		patch, diffErr := inst.differ.Diff(NormalizeToLF(oldTextBase), NormalizeToLF(newTextBase), req.Basename)
		if diffErr != nil {
			return false, locallyModified, diffErr
		}

		var merged, reject []byte
		var applyErr error
		if eolStyle == vcsconfig.EOLNone && len(enabledKeywords) == 0 {
			merged, reject, applyErr = inst.patcher.Apply(workingData, patch)
		} else {
			lfWorking := NormalizeToLF(workingData)
			merged, reject, applyErr = inst.patcher.Apply(lfWorking, patch)
			if applyErr == nil {
				merged = TranslateEOL(merged, eolStyle)
				merged = ExpandKeywords(merged, req.Basename, enabledKeywords, kv)
			}
		}
		if applyErr != nil {
			return false, locallyModified, applyErr
		}

		tmpWorking, stageErr := stageBytes(layout, "working-"+req.Basename, merged)
		if stageErr != nil {
			return false, locallyModified, stageErr
		}
		journal.Append(logjournal.CP(tmpWorking, workingPath, logjournal.TranslateNone))

		if len(reject) > 0 {
			rejectPath := workingPath + ".rej"
			tmpReject, stageErr := stageBytes(layout, "reject-"+req.Basename, reject)
			if stageErr != nil {
				return false, locallyModified, stageErr
			}
			journal.Append(logjournal.CP(tmpReject, rejectPath, logjournal.TranslateNone))
			journal.Append(logjournal.DetectConflict(req.Basename, rejectPath))
			conflicted = true
		}

	default: // locallyModified && isBinary
		origPath := workingPath + ".orig"
		journal.Append(logjournal.CP(workingPath, origPath, logjournal.TranslateNone))
		journal.Append(logjournal.CP(req.NewTextPath, workingPath, logjournal.TranslateNone))
	}

	journal.Append(logjournal.Readonly(oldTextBasePath))
	_ = propsLocallyModified
	return conflicted, locallyModified, nil
}

// isLocallyModified reports whether a file's working content differs
// from its pristine text-base, for the no-incoming-text path where
// installText is never invoked (spec.md §4.4.3 step 11 still applies).
func isLocallyModified(layout *wcadm.Layout, basename string) bool {
	working, err := os.ReadFile(layout.WorkingPath(basename))
	if err != nil {
		return false
	}
	base, err := os.ReadFile(layout.TextBasePath(basename))
	if err != nil {
		return false
	}
	return !sameContent(base, working)
}

func sameContent(a, b []byte) bool {
	ha := blake2b.Sum256(a)
	hb := blake2b.Sum256(b)
	return ha == hb
}

func readPropMap(path string) (PropMap, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return PropMap{}, nil
	}
	if err != nil {
		return nil, vcserr.Wrap(vcserr.CodeIO, path, err)
	}
	var m PropMap
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, vcserr.Wrap(vcserr.CodeIO, path, err)
	}
	if m == nil {
		m = PropMap{}
	}
	return m, nil
}

func mustMarshalProps(m PropMap) []byte {
	data, _ := yaml.Marshal(m)
	return data
}

func propMapsEqual(a, b PropMap) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func stageBytes(layout *wcadm.Layout, name string, data []byte) (string, error) {
	if err := os.MkdirAll(layout.TmpDir(), 0o755); err != nil {
		return "", vcserr.Wrap(vcserr.CodeIO, layout.TmpDir(), err)
	}
	path := filepath.Join(layout.TmpDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", vcserr.Wrap(vcserr.CodeIO, path, err)
	}
	return path, nil
}

func applyWCProps(layout *wcadm.Layout, basename string, changes []PropChange) error {
	path := layout.WCPropsPath(basename)
	existing, err := readPropMap(path)
	if err != nil {
		return err
	}
	for _, c := range changes {
		if c.Value == nil {
			delete(existing, c.Name)
		} else {
			existing[c.Name] = *c.Value
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return vcserr.Wrap(vcserr.CodeIO, path, err)
	}
	if err := os.WriteFile(path, mustMarshalProps(existing), 0o644); err != nil {
		return vcserr.Wrap(vcserr.CodeIO, path, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return vcserr.Wrap(vcserr.CodeIO, src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return vcserr.Wrap(vcserr.CodeIO, dst, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return vcserr.Wrap(vcserr.CodeIO, dst, err)
	}
	return nil
}
