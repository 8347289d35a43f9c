package logjournal

import (
	"bufio"
	"encoding/json"
	"hash/crc32"

	"github.com/orneryd/vcsfs/internal/vcserr"
	"github.com/orneryd/vcsfs/pkg/wcadm"
)

// record is the on-disk envelope for one command, grounded on the
// teacher's WALEntry (pkg/storage/wal.go): a sequence number, the
// payload, and a checksum guarding against a torn write.
type record struct {
	Seq      uint64  `json:"seq"`
	Command  Command `json:"command"`
	Checksum uint32  `json:"checksum"`
}

func checksum(c Command) uint32 {
	data, _ := json.Marshal(c)
	return crc32.ChecksumIEEE(data)
}

// Journal accumulates commands in memory for one directory's edit and
// flushes them to adm/log as a single atomic write (spec.md §4.3:
// "surrounded by lock/unlock", "the log file is removed only after all
// commands report success").
type Journal struct {
	layout *wcadm.Layout
	cmds   []Command
}

func New(layout *wcadm.Layout) *Journal {
	return &Journal{layout: layout}
}

// Append queues commands without touching disk.
func (j *Journal) Append(cmds ...Command) {
	j.cmds = append(j.cmds, cmds...)
}

func (j *Journal) Len() int { return len(j.cmds) }

// Flush writes every queued command to adm/log, terminated by a commit
// marker, and fsyncs before the atomic rename into place. Until Flush
// returns, a crash leaves no adm/log at all — the working copy is still
// at its pre-edit state (spec.md §4.4.3's "no irreversible change...
// before the log is fully written and synced").
func (j *Journal) Flush() error {
	if len(j.cmds) == 0 {
		return nil
	}

	f, err := wcadm.OpenAdmFile(j.layout, wcadm.LogFile)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(f)
	enc := json.NewEncoder(bw)

	var seq uint64
	for _, c := range j.cmds {
		if err := validateCommand(c); err != nil {
			_ = f.Abort()
			return err
		}
		rec := record{Seq: seq, Command: c, Checksum: checksum(c)}
		if err := enc.Encode(rec); err != nil {
			_ = f.Abort()
			return vcserr.Wrap(vcserr.CodeIO, j.layout.LogPath(), err)
		}
		seq++
	}
	commit := record{Seq: seq, Command: commitMarker(), Checksum: checksum(commitMarker())}
	if err := enc.Encode(commit); err != nil {
		_ = f.Abort()
		return vcserr.Wrap(vcserr.CodeIO, j.layout.LogPath(), err)
	}
	if err := bw.Flush(); err != nil {
		_ = f.Abort()
		return vcserr.Wrap(vcserr.CodeIO, j.layout.LogPath(), err)
	}

	if err := f.Close(true); err != nil {
		return err
	}
	j.cmds = j.cmds[:0]
	return nil
}
