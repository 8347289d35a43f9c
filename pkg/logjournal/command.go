// Package logjournal implements the append-only Log Journal (LOG) of
// spec.md §4.3: a per-directory command stream that UPD and INST append
// to, and that is replayed to mutate entries, pristine text-bases,
// working files, and property stores atomically.
//
// Grounded on the teacher's pkg/storage/wal.go write-ahead log: one
// JSON-encoded record per line via encoding/json's streaming encoder,
// a checksum per record, and a commit sentinel so a half-written log is
// detectable and discarded rather than partially replayed.
package logjournal

import "github.com/orneryd/vcsfs/internal/vcserr"

// Kind names one of the LOG grammar's commands (spec.md §4.3).
type Kind string

const (
	KindModifyEntry    Kind = "MODIFY_ENTRY"
	KindDeleteEntry    Kind = "DELETE_ENTRY"
	KindCP             Kind = "CP"
	KindMV             Kind = "MV"
	KindRM             Kind = "RM"
	KindReadonly       Kind = "READONLY"
	KindRunCmd         Kind = "RUN_CMD"
	KindDetectConflict Kind = "DETECT_CONFLICT"

	// kindCommit is an internal sentinel appended once a log is fully
	// written; its presence is what lets recovery distinguish a
	// complete log from one truncated by a mid-write crash.
	kindCommit Kind = "__COMMIT__"
)

// TranslateMode is the "expand" flag of spec.md §4.3's CP grammar entry.
// It is recorded in the log; pkg/install's executor copies bytes
// unchanged whatever the mode, since the installer applies EOL and
// keyword translation before staging the file.
type TranslateMode string

const (
	TranslateNone       TranslateMode = "none"
	TranslateFull       TranslateMode = "full"       // eol + keyword expansion
	TranslateToLF        TranslateMode = "to_lf"       // normalize toward LF (diff prep)
)

// Command is one entry in the log (spec.md §4.3's abstract grammar).
// Only the fields relevant to Kind are populated; callers build these
// through the Kind-specific constructors below rather than the struct
// literal directly.
type Command struct {
	Kind Kind `json:"kind"`

	// MODIFY_ENTRY / DELETE_ENTRY / DETECT_CONFLICT
	Name   string            `json:"name,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
	Reject string            `json:"reject,omitempty"`

	// CP / MV / RM / READONLY
	Src  string `json:"src,omitempty"`
	Dst  string `json:"dst,omitempty"`
	Path string `json:"path,omitempty"`

	Translate TranslateMode `json:"translate,omitempty"`

	// RUN_CMD
	CmdName string   `json:"cmd_name,omitempty"`
	Args    []string `json:"args,omitempty"`
	Infile  string   `json:"infile,omitempty"`
}

func ModifyEntry(name string, fields map[string]string) Command {
	return Command{Kind: KindModifyEntry, Name: name, Fields: fields}
}

func DeleteEntry(name string) Command {
	return Command{Kind: KindDeleteEntry, Name: name}
}

func CP(src, dst string, translate TranslateMode) Command {
	return Command{Kind: KindCP, Src: src, Dst: dst, Translate: translate}
}

func MV(src, dst string) Command {
	return Command{Kind: KindMV, Src: src, Dst: dst}
}

func RM(path string) Command {
	return Command{Kind: KindRM, Path: path}
}

func Readonly(path string) Command {
	return Command{Kind: KindReadonly, Path: path}
}

func RunCmd(name string, args []string, infile string) Command {
	return Command{Kind: KindRunCmd, CmdName: name, Args: args, Infile: infile}
}

func DetectConflict(name, reject string) Command {
	return Command{Kind: KindDetectConflict, Name: name, Reject: reject}
}

func commitMarker() Command { return Command{Kind: kindCommit} }

func validateCommand(c Command) error {
	switch c.Kind {
	case KindModifyEntry, KindDeleteEntry, KindCP, KindMV, KindRM, KindReadonly, KindRunCmd, KindDetectConflict, kindCommit:
		return nil
	default:
		return vcserr.New(vcserr.CodeLogic, "", "unknown log command kind: "+string(c.Kind))
	}
}
