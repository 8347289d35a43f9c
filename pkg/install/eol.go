// Package install implements the File Installer (INST) of spec.md
// §4.4.3: given a new text-base and/or property list for one file, it
// queues the log commands (§4.3) that bring the working file, its
// pristine text-base, and its property stores up to date, merging any
// local modifications along the way.
//
// Grounded on the teacher's text-processing conventions: pkg/storage
// treats stored bytes as opaque blobs and never reaches for a
// heavyweight text-processing dependency, so EOL/keyword handling here
// stays on bytes.Buffer and regexp rather than introducing a streaming
// text library the rest of the corpus never reaches for either.
package install

import (
	"bytes"
	"runtime"

	"github.com/orneryd/vcsfs/internal/vcsconfig"
)

var (
	crlf = []byte("\r\n")
	cr   = []byte("\r")
	lf   = []byte("\n")
)

// NormalizeToLF rewrites any of CRLF/CR/LF to a single LF, the common
// format unified diffs operate on (spec.md §4.4.3 step 8a).
func NormalizeToLF(data []byte) []byte {
	data = bytes.ReplaceAll(data, crlf, lf)
	data = bytes.ReplaceAll(data, cr, lf)
	return data
}

func nativeEOL() []byte {
	if runtime.GOOS == "windows" {
		return crlf
	}
	return lf
}

func eolBytes(style vcsconfig.EOLStyle) []byte {
	switch style {
	case vcsconfig.EOLCR:
		return cr
	case vcsconfig.EOLLF:
		return lf
	case vcsconfig.EOLCRLF:
		return crlf
	case vcsconfig.EOLNative, vcsconfig.EOLFixed:
		return nativeEOL()
	default:
		return nil
	}
}

// TranslateEOL rewrites LF-normalized data to the given style. EOLNone
// (or an unrecognized style) returns data unchanged: "none" means the
// file's line endings are not svn's concern (spec.md §6).
func TranslateEOL(data []byte, style vcsconfig.EOLStyle) []byte {
	target := eolBytes(style)
	if target == nil {
		return data
	}
	lfData := NormalizeToLF(data)
	if bytes.Equal(target, lf) {
		return lfData
	}
	return bytes.ReplaceAll(lfData, lf, target)
}
