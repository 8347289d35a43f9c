package install

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// KeywordValues carries the metadata a keyword expansion binds to a
// file. installText fills it with the request's new revision, the time
// of the install, an empty author and the request's NewURL; entry-props
// queued for the file are not consulted.
type KeywordValues struct {
	Revision int64
	Date     time.Time
	Author   string
	URL      string
}

// keywordNames maps every recognized alias (spec.md §6: "svn:keywords")
// to its canonical short name.
var keywordNames = map[string]string{
	"LastChangedRevision": "Rev",
	"Rev":                 "Rev",
	"Revision":            "Rev",
	"LastChangedDate":     "Date",
	"Date":                "Date",
	"LastChangedBy":       "Author",
	"Author":              "Author",
	"HeadURL":             "URL",
	"URL":                 "URL",
	"Id":                  "Id",
	"Header":              "Header",
}

// ParseKeywordList turns the space-separated svn:keywords property value
// into the set of canonical keyword names to expand.
func ParseKeywordList(prop string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(prop) {
		if canon, ok := keywordNames[tok]; ok {
			set[canon] = true
		}
	}
	return set
}

func keywordValue(canon string, basename string, kv KeywordValues) string {
	switch canon {
	case "Rev":
		return fmt.Sprintf("%d", kv.Revision)
	case "Date":
		return kv.Date.UTC().Format("2006-01-02 15:04:05 -0700 (Mon, 02 Jan 2006)")
	case "Author":
		return kv.Author
	case "URL":
		return kv.URL
	case "Id":
		return fmt.Sprintf("%s %d %s %s", basename, kv.Revision, kv.Date.UTC().Format("2006-01-02 15:04:05Z"), kv.Author)
	case "Header":
		return fmt.Sprintf("%s %d %s %s", kv.URL, kv.Revision, kv.Date.UTC().Format("2006-01-02 15:04:05Z"), kv.Author)
	default:
		return ""
	}
}

// keywordRE matches both contracted ($Rev$) and previously-expanded
// ($Rev: 42 $) keyword anchors.
var keywordRE = regexp.MustCompile(`\$([A-Za-z]+)(:[^$\n]*)?\$`)

// ExpandKeywords rewrites every recognized keyword anchor in data to its
// expanded form using kv, leaving unrecognized or disabled keywords
// untouched.
func ExpandKeywords(data []byte, basename string, enabled map[string]bool, kv KeywordValues) []byte {
	if len(enabled) == 0 {
		return data
	}
	return keywordRE.ReplaceAllFunc(data, func(m []byte) []byte {
		sub := keywordRE.FindSubmatch(m)
		name := string(sub[1])
		canon, ok := keywordNames[name]
		if !ok || !enabled[canon] {
			return m
		}
		val := keywordValue(canon, basename, kv)
		return []byte(fmt.Sprintf("$%s: %s $", name, val))
	})
}

// ContractKeywords collapses any expanded keyword anchor back to its bare
// $Name$ form. The installer does not call it: its diffs and
// local-modification checks run on the texts as stored.
func ContractKeywords(data []byte) []byte {
	return keywordRE.ReplaceAllFunc(data, func(m []byte) []byte {
		sub := keywordRE.FindSubmatch(m)
		return []byte(fmt.Sprintf("$%s$", sub[1]))
	})
}
