// SPDX-License-Identifier: MPL-2.0

package remap

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/jsonc"
)

// ErrAccessWidener is returned for access widener files that cannot be read.
var ErrAccessWidener = errors.New("invalid access widener")

const accessWidenerHeader = "accessWidener"

// refmapSections are the top level refmap keys whose values hold mappings.
var refmapSections = []string{"mappings", "data"}

// RewriteRefmap rewrites the mapping values of a weaving reference map with
// the literal value function. Comments in the input are dropped and the output
// is re-encoded with sorted keys.
func (e *Engine) RewriteRefmap(data []byte) ([]byte, int, error) {
	var doc map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
		return nil, 0, fmt.Errorf("parse refmap: %w", err)
	}
	changed := 0
	for _, section := range refmapSections {
		if v, ok := doc[section]; ok {
			changed += e.rewriteRefmapNode(v)
		}
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, 0, fmt.Errorf("encode refmap: %w", err)
	}
	return append(out, '\n'), changed, nil
}

func (e *Engine) rewriteRefmapNode(node any) int {
	obj, ok := node.(map[string]any)
	if !ok {
		return 0
	}
	changed := 0
	for k, v := range obj {
		switch val := v.(type) {
		case string:
			mapped, err := e.values.Map(val)
			if err != nil {
				e.logger.Warn("left refmap entry unchanged", "key", k, "value", val, "err", err)
				continue
			}
			if mapped != val {
				obj[k] = mapped
				changed++
			}
		case map[string]any:
			changed += e.rewriteRefmapNode(val)
		}
	}
	return changed
}

// RewriteAccessWidener maps the class and member names of an access widener
// file and switches its namespace to the host namespace.
func (e *Engine) RewriteAccessWidener(data []byte) ([]byte, error) {
	r := e.remapper
	var out bytes.Buffer
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		body, comment := line, ""
		if i := strings.IndexByte(line, '#'); i >= 0 {
			body, comment = line[:i], line[i:]
		}
		fields := strings.Fields(body)

		switch {
		case len(fields) == 0:
		case lineNo == 1 || fields[0] == accessWidenerHeader:
			if fields[0] != accessWidenerHeader || len(fields) != 3 {
				return nil, fmt.Errorf("%w: line %d: expected header", ErrAccessWidener, lineNo)
			}
			fields[2] = r.index.Namespaces().Host
		case len(fields) >= 3 && fields[1] == "class":
			fields[2] = r.Class(fields[2])
		case len(fields) >= 5 && fields[1] == "method":
			owner, name, desc := fields[2], fields[3], fields[4]
			fields[2], fields[3], fields[4] = r.Class(owner), r.Method(owner, name, desc), r.Desc(desc)
		case len(fields) >= 5 && fields[1] == "field":
			owner, name, desc := fields[2], fields[3], fields[4]
			fields[2], fields[3], fields[4] = r.Class(owner), r.Field(owner, name, desc), r.Desc(desc)
		default:
			return nil, fmt.Errorf("%w: line %d: %q", ErrAccessWidener, lineNo, strings.TrimSpace(body))
		}

		rebuilt := strings.Join(fields, "\t")
		if comment != "" {
			if rebuilt != "" {
				rebuilt += "\t"
			}
			rebuilt += comment
		}
		out.WriteString(rebuilt)
		out.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAccessWidener, err)
	}
	return out.Bytes(), nil
}
