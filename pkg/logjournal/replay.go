package logjournal

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/orneryd/vcsfs/internal/vcserr"
	"github.com/orneryd/vcsfs/internal/vcslog"
	"github.com/orneryd/vcsfs/pkg/wcadm"
)

// Executor applies one decoded log command to a directory's working
// state. pkg/install's installRun implements this for real replay,
// applying entry changes to a wcadm.Entries; tests substitute a
// recording fake.
type Executor interface {
	ModifyEntry(name string, fields map[string]string) error
	DeleteEntry(name string) error
	CP(src, dst string, translate TranslateMode) error
	MV(src, dst string) error
	RM(path string) error
	Readonly(path string) error
	RunCmd(name string, args []string, infile string) error
	DetectConflict(name, reject string) error
}

func apply(exec Executor, c Command) error {
	switch c.Kind {
	case KindModifyEntry:
		return exec.ModifyEntry(c.Name, c.Fields)
	case KindDeleteEntry:
		return exec.DeleteEntry(c.Name)
	case KindCP:
		return exec.CP(c.Src, c.Dst, c.Translate)
	case KindMV:
		return exec.MV(c.Src, c.Dst)
	case KindRM:
		return exec.RM(c.Path)
	case KindReadonly:
		return exec.Readonly(c.Path)
	case KindRunCmd:
		return exec.RunCmd(c.CmdName, c.Args, c.Infile)
	case KindDetectConflict:
		return exec.DetectConflict(c.Name, c.Reject)
	default:
		return vcserr.New(vcserr.CodeLogic, "", "unreplayable log command: "+string(c.Kind))
	}
}

// readLog decodes adm/log into an ordered command list and reports
// whether the trailing commit marker was present and whether the log
// file existed at all. A missing file yields (nil, false, false, nil):
// nothing to replay.
func readLog(layout *wcadm.Layout) (cmds []Command, committed bool, exists bool, err error) {
	f, openErr := os.Open(layout.LogPath())
	if os.IsNotExist(openErr) {
		return nil, false, false, nil
	}
	if openErr != nil {
		return nil, false, true, vcserr.Wrap(vcserr.CodeIO, layout.LogPath(), openErr)
	}
	defer f.Close()
	exists = true

	dec := json.NewDecoder(bufio.NewReader(f))
	for {
		var rec record
		decErr := dec.Decode(&rec)
		if errors.Is(decErr, io.EOF) {
			break
		}
		if decErr != nil {
			// A partially-written trailing record is exactly the
			// mid-write crash case: treat everything decoded so far
			// as the log, but it is only used if committed ends up
			// true, which it can't without this record.
			break
		}
		if checksum(rec.Command) != rec.Checksum {
			break
		}
		if rec.Command.Kind == kindCommit {
			committed = true
			break
		}
		cmds = append(cmds, rec.Command)
	}
	return cmds, committed, exists, nil
}

// Replay executes every command in one directory's adm/log in order,
// then removes the log (spec.md §4.3: "removed only after all commands
// report success; restart begins from the start of the file").
//
// Replay is idempotent by construction of each command's handler (MV
// checks src existence, CP overwrites, MODIFY_ENTRY is last-write-wins)
// so a crash mid-replay is recovered simply by calling Replay again.
func Replay(layout *wcadm.Layout, exec Executor) error {
	cmds, committed, exists, err := readLog(layout)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	if !committed {
		vcslog.Warnf("logjournal: discarding incomplete log at %s", layout.LogPath())
		if err := os.Remove(layout.LogPath()); err != nil && !os.IsNotExist(err) {
			return vcserr.Wrap(vcserr.CodeIO, layout.LogPath(), err)
		}
		return nil
	}

	for _, c := range cmds {
		if err := apply(exec, c); err != nil {
			return vcserr.Wrap(vcserr.CodeIO, layout.LogPath(), err)
		}
	}

	if err := os.Remove(layout.LogPath()); err != nil && !os.IsNotExist(err) {
		return vcserr.Wrap(vcserr.CodeIO, layout.LogPath(), err)
	}
	return nil
}

