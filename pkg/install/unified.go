package install

import (
	"bytes"
	"os"
	"os/exec"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/orneryd/vcsfs/internal/vcsconfig"
	"github.com/orneryd/vcsfs/internal/vcserr"
)

// Differ produces a diff between two LF-normalized texts (spec.md
// §4.4.3 step 8a, §6).
type Differ struct {
	cfg *vcsconfig.Config
}

func NewDiffer(cfg *vcsconfig.Config) *Differ { return &Differ{cfg: cfg} }

// Diff returns a patch turning oldData into newData. When the config
// names an external diff program it is run synchronously as
// `<DiffCmd> -c -- old new`, which yields a context diff; an empty
// DiffCmd falls back to go-difflib's in-process unified diff.
func (d *Differ) Diff(oldData, newData []byte, label string) ([]byte, error) {
	if d.cfg.DiffCmd == "" {
		return d.diffInProcess(oldData, newData, label)
	}
	return d.diffExternal(oldData, newData, label)
}

func (d *Differ) diffInProcess(oldData, newData []byte, label string) ([]byte, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(oldData)),
		B:        difflib.SplitLines(string(newData)),
		FromFile: label + ".orig",
		ToFile:   label,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return nil, vcserr.Wrap(vcserr.CodeIO, label, err)
	}
	return []byte(text), nil
}

func (d *Differ) diffExternal(oldData, newData []byte, label string) ([]byte, error) {
	oldFile, err := os.CreateTemp("", "vcsfs-diff-old-*")
	if err != nil {
		return nil, vcserr.Wrap(vcserr.CodeIO, label, err)
	}
	defer os.Remove(oldFile.Name())
	newFile, err := os.CreateTemp("", "vcsfs-diff-new-*")
	if err != nil {
		return nil, vcserr.Wrap(vcserr.CodeIO, label, err)
	}
	defer os.Remove(newFile.Name())

	if _, err := oldFile.Write(oldData); err != nil {
		return nil, vcserr.Wrap(vcserr.CodeIO, label, err)
	}
	_ = oldFile.Close()
	if _, err := newFile.Write(newData); err != nil {
		return nil, vcserr.Wrap(vcserr.CodeIO, label, err)
	}
	_ = newFile.Close()

	cmd := exec.Command(d.cfg.DiffCmd, "-c", "--", oldFile.Name(), newFile.Name())
	var out bytes.Buffer
	cmd.Stdout = &out
	// diff(1) exits 1 when files differ; that is success for this caller.
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return out.Bytes(), nil
		}
		return nil, vcserr.Wrap(vcserr.CodeIO, label, err)
	}
	return out.Bytes(), nil
}

// Patcher applies a patch to a target, producing the merged result and
// any reject text (spec.md §4.3's RUN_CMD patch, §6). The external
// program is run with -r, -B and --silent but without -f; the
// in-process applier reads only unified @@ hunks.
type Patcher struct {
	cfg *vcsconfig.Config
}

func NewPatcher(cfg *vcsconfig.Config) *Patcher { return &Patcher{cfg: cfg} }

// Apply merges patch into target. When the config names an external
// patch program it is invoked with the patch on stdin; otherwise an
// in-process hunk applier is used, which conflicts (producing reject
// text) on any hunk whose context does not match exactly rather than
// attempting fuzzy matching.
func (p *Patcher) Apply(target, patch []byte) (merged, reject []byte, err error) {
	if p.cfg.PatchCmd == "" {
		return applyHunksInProcess(target, patch)
	}
	return p.applyExternal(target, patch)
}

func (p *Patcher) applyExternal(target, patch []byte) (merged, reject []byte, err error) {
	targetFile, err := os.CreateTemp("", "vcsfs-patch-target-*")
	if err != nil {
		return nil, nil, vcserr.Wrap(vcserr.CodeIO, "", err)
	}
	defer os.Remove(targetFile.Name())
	if _, err := targetFile.Write(target); err != nil {
		return nil, nil, vcserr.Wrap(vcserr.CodeIO, "", err)
	}
	_ = targetFile.Close()

	rejectPath := targetFile.Name() + ".rej"
	defer os.Remove(rejectPath)

	cmd := exec.Command(p.cfg.PatchCmd, "-r", rejectPath, "-B", targetFile.Name()+".orig", "--silent", "--", targetFile.Name())
	cmd.Stdin = bytes.NewReader(patch)
	_ = cmd.Run() // patch(1) exits non-zero on partial application; rejects convey the result

	merged, err = os.ReadFile(targetFile.Name())
	if err != nil {
		return nil, nil, vcserr.Wrap(vcserr.CodeIO, targetFile.Name(), err)
	}
	reject, _ = os.ReadFile(rejectPath)
	return merged, reject, nil
}

// applyHunksInProcess applies a unified diff's hunks line-by-line. A hunk
// whose "before" context cannot be located in target verbatim is
// rejected instead of merged, matching external patch's --silent
// failure-to-reject behavior for the non-fuzzy case this fallback covers.
func applyHunksInProcess(target, patch []byte) (merged, reject []byte, err error) {
	hunks := parseHunks(string(patch))
	lines := splitKeepEmpty(string(target))

	var result []string
	var rejects strings.Builder
	cursor := 0
	anyRejected := false

	for _, h := range hunks {
		idx := locateHunk(lines, h, cursor)
		if idx < 0 {
			rejects.WriteString(h.raw)
			anyRejected = true
			continue
		}
		result = append(result, lines[cursor:idx]...)
		result = append(result, h.newLines...)
		cursor = idx + len(h.oldLines)
	}
	result = append(result, lines[cursor:]...)

	merged = []byte(strings.Join(result, ""))
	if anyRejected {
		reject = []byte(rejects.String())
	}
	return merged, reject, nil
}

type hunk struct {
	oldLines []string
	newLines []string
	raw      string
}

// parseHunks extracts the old/new line bodies of each @@ ... @@ block in
// a unified diff, ignoring the header lines difflib/diff(1) both emit.
func parseHunks(patch string) []hunk {
	var hunks []hunk
	var cur *hunk
	for _, line := range strings.SplitAfter(patch, "\n") {
		switch {
		case strings.HasPrefix(line, "@@"):
			if cur != nil {
				hunks = append(hunks, *cur)
			}
			cur = &hunk{}
		case cur == nil:
			continue
		case strings.HasPrefix(line, "-"):
			cur.oldLines = append(cur.oldLines, line[1:])
			cur.raw += line
		case strings.HasPrefix(line, "+"):
			cur.newLines = append(cur.newLines, line[1:])
			cur.raw += line
		case strings.HasPrefix(line, " "):
			body := line[1:]
			cur.oldLines = append(cur.oldLines, body)
			cur.newLines = append(cur.newLines, body)
			cur.raw += line
		default:
			cur.raw += line
		}
	}
	if cur != nil {
		hunks = append(hunks, *cur)
	}
	return hunks
}

func locateHunk(lines []string, h hunk, from int) int {
	if len(h.oldLines) == 0 {
		return from
	}
	for start := from; start+len(h.oldLines) <= len(lines); start++ {
		match := true
		for i, want := range h.oldLines {
			if lines[start+i] != want {
				match = false
				break
			}
		}
		if match {
			return start
		}
	}
	return -1
}

func splitKeepEmpty(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
