package install

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/orneryd/vcsfs/internal/vcserr"
	"github.com/orneryd/vcsfs/pkg/logjournal"
	"github.com/orneryd/vcsfs/pkg/wcadm"
)

// installRun applies one install's queued log commands to disk and to
// the in-memory entries table, implementing logjournal.Executor. It is
// scoped to a single InstallFile call (or a single leftover-log replay),
// never shared across directories or concurrent installs.
type installRun struct {
	inst     *Installer
	layout   *wcadm.Layout
	basename string
	entries  *wcadm.Entries
}

func newInstallRun(inst *Installer, layout *wcadm.Layout, basename string, entries *wcadm.Entries) *installRun {
	return &installRun{inst: inst, layout: layout, basename: basename, entries: entries}
}

func (r *installRun) ModifyEntry(name string, fields map[string]string) error {
	u := wcadm.Update{}
	for k, v := range fields {
		v := v
		switch k {
		case "kind":
			u.Kind = &v
		case "url":
			u.URL = &v
		case "revision":
			if n, err := parseInt64(v); err == nil {
				u.Revision = &n
			}
		case "committed_rev":
			if n, err := parseInt64(v); err == nil {
				u.CommittedRev = &n
			}
		case "last_author":
			u.LastAuthor = &v
		case "changelist":
			u.Changelist = &v
		case "text_time":
			t := resolveTimeField(v, func() (time.Time, error) { return workingMtime(r.layout, name) })
			u.TextTime = &t
		case "prop_time":
			t := resolveTimeField(v, func() (time.Time, error) { return workingMtime(r.layout, name) })
			u.PropTime = &t
		case "conflicted":
			b := v == "true"
			u.Conflicted = &b
		}
	}
	r.entries.Apply(name, u)
	return nil
}

func (r *installRun) DeleteEntry(name string) error {
	r.entries.Remove(name)
	return nil
}

func (r *installRun) CP(src, dst string, translate logjournal.TranslateMode) error {
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

func (r *installRun) MV(src, dst string) error {
	if _, err := os.Stat(src); os.IsNotExist(err) {
		// already moved by a prior, interrupted replay attempt.
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return vcserr.Wrap(vcserr.CodeIO, dst, err)
	}
	if err := os.Rename(src, dst); err != nil {
		return vcserr.Wrap(vcserr.CodeIO, dst, err)
	}
	return nil
}

func (r *installRun) RM(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return vcserr.Wrap(vcserr.CodeIO, path, err)
	}
	return nil
}

func (r *installRun) Readonly(path string) error {
	if err := os.Chmod(path, 0o444); err != nil && !os.IsNotExist(err) {
		return vcserr.Wrap(vcserr.CodeIO, path, err)
	}
	return nil
}

func (r *installRun) RunCmd(name string, args []string, infile string) error {
	cmd := exec.Command(name, args...)
	if infile != "" {
		f, err := os.Open(infile)
		if err != nil {
			return vcserr.Wrap(vcserr.CodeIO, infile, err)
		}
		defer f.Close()
		cmd.Stdin = f
	}
	if err := cmd.Run(); err != nil {
		return vcserr.Wrap(vcserr.CodeIO, name, err)
	}
	return nil
}

func (r *installRun) DetectConflict(name, reject string) error {
	info, err := os.Stat(reject)
	conflicted := err == nil && info.Size() > 0
	b := conflicted
	r.entries.Apply(name, wcadm.Update{Conflicted: &b, TextRejectFile: &reject})
	return nil
}

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func resolveTimeField(v string, now func() (time.Time, error)) time.Time {
	if v == "WC" {
		if t, err := now(); err == nil {
			return t
		}
		return time.Now()
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t
	}
	return time.Now()
}

func workingMtime(layout *wcadm.Layout, name string) (time.Time, error) {
	info, err := os.Stat(layout.WorkingPath(name))
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
