package pbrt

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrIncludeCycle is returned when a file includes itself, directly or not
var ErrIncludeCycle = errors.New("include cycle")

// ExpandIncludes reads path and inlines every Include directive, recursively.
// Each inlined file is wrapped in WorkDirBegin/WorkDirEnd naming its
// directory so relative resource paths inside it still resolve.
func ExpandIncludes(path string) (string, error) {
	return expandIncludes(path, nil)
}

func expandIncludes(path string, chain []string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve %s", path)
	}
	for _, p := range chain {
		if p == abs {
			return "", errors.Wrapf(ErrIncludeCycle, "%s", strings.Join(append(chain, abs), " -> "))
		}
	}
	chain = append(chain, abs)

	data, err := os.ReadFile(abs)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read included file %s", path)
	}
	src := StripComments(string(data))
	dir := filepath.Dir(abs)

	var out strings.Builder
	lex := newLexer(src)
	last := 0
	for {
		t := lex.next()
		if t.typ == tokEOF {
			break
		}
		if t.typ != tokIdent || t.text != "Include" {
			continue
		}
		arg := lex.next()
		if arg.typ != tokString {
			// left for the parser to report
			continue
		}
		end := lex.r.Offset()

		target := arg.text
		if !filepath.IsAbs(target) {
			target = filepath.Join(dir, target)
		}
		inner, err := expandIncludes(target, chain)
		if err != nil {
			return "", err
		}

		out.WriteString(src[last:t.offset])
		out.WriteString("WorkDirBegin " + strconv.Quote(filepath.Dir(target)) + "\n")
		out.WriteString(inner)
		out.WriteString("\nWorkDirEnd\n")
		last = end
	}
	out.WriteString(src[last:])
	return out.String(), nil
}
