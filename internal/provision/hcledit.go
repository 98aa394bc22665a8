package provision

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"

	"github.com/edvin/clientops/internal/model"
)

const indentUnit = "  "

// splice replaces src[start:end] with text.
type splice struct {
	start, end int
	text       string
}

// applySplices applies non-overlapping edits to src.
func applySplices(src []byte, edits []splice) []byte {
	sorted := append([]splice(nil), edits...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].start > sorted[j].start })

	out := append([]byte(nil), src...)
	for _, e := range sorted {
		tail := append([]byte(e.text), out[e.end:]...)
		out = append(out[:e.start], tail...)
	}
	return out
}

// document locates the clients map in the source of a variables file.
type document struct {
	src     []byte
	clients *hclsyntax.ObjectConsExpr
}

func parseDocument(src []byte, filename string) (*document, error) {
	doc := &document{src: src}
	if len(src) == 0 {
		return doc, nil
	}
	file, diags := hclsyntax.ParseConfig(src, filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %s", filename, diags.Error())
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("parse %s: not native syntax", filename)
	}
	attr, ok := body.Attributes[clientsAttr]
	if !ok {
		return doc, nil
	}
	obj, ok := attr.Expr.(*hclsyntax.ObjectConsExpr)
	if !ok {
		return nil, fmt.Errorf("%s in %s must be a literal map to be edited", clientsAttr, filename)
	}
	doc.clients = obj
	return doc, nil
}

func itemKey(item hclsyntax.ObjectConsItem) string {
	v, diags := item.KeyExpr.Value(nil)
	if diags.HasErrors() || !v.IsKnown() || v.IsNull() || v.Type() != cty.String {
		return ""
	}
	return v.AsString()
}

func findItem(obj *hclsyntax.ObjectConsExpr, key string) (hclsyntax.ObjectConsItem, bool) {
	for _, item := range obj.Items {
		if itemKey(item) == key {
			return item, true
		}
	}
	return hclsyntax.ObjectConsItem{}, false
}

// insert adds a new entry before the closing brace of the clients map, or
// appends a clients map when the file has none.
func (doc *document) insert(name string, decl model.Declaration) splice {
	entry := strings.TrimSuffix(Render(name, decl), "\n")
	if doc.clients == nil {
		at := len(doc.src)
		prefix := ""
		if at > 0 && doc.src[at-1] != '\n' {
			prefix = "\n"
		}
		if at > 0 {
			prefix += "\n"
		}
		return splice{at, at, prefix + clientsAttr + " = {\n" + indent(entry, indentUnit) + "\n}\n"}
	}
	return insertItems(doc.src, doc.clients, entry)
}

// update rewrites the values of the modelled attributes that changed.
// Unmodelled attributes, comments and layout stay as they are.
func (doc *document) update(name string, current, next model.Declaration) []splice {
	item, _ := findItem(doc.clients, name)
	inner, ok := item.ValueExpr.(*hclsyntax.ObjectConsExpr)
	if !ok {
		r := item.ValueExpr.Range()
		value := strings.TrimPrefix(strings.TrimSuffix(Render(name, next), "\n"), name+" = ")
		return []splice{{r.Start.Byte, r.End.Byte, indentTail(value, lineIndent(doc.src, r.Start.Byte))}}
	}

	before := declarationAttrs(current)
	var edits []splice
	var missing []string
	for i, a := range declarationAttrs(next) {
		text := renderValue(a.val)
		existing, found := findItem(inner, a.name)
		if text == renderValue(before[i].val) && (found || isZero(a.val)) {
			continue
		}
		if found {
			r := existing.ValueExpr.Range()
			edits = append(edits, splice{r.Start.Byte, r.End.Byte, text})
			continue
		}
		missing = append(missing, a.name+" = "+text)
	}
	if len(missing) > 0 {
		edits = append(edits, insertItems(doc.src, inner, strings.Join(missing, "\n")))
	}
	return edits
}

// remove deletes an entry together with the comment lines directly above
// it and its trailing comma.
func (doc *document) remove(name string) splice {
	item, _ := findItem(doc.clients, name)
	src := doc.src
	start := item.KeyExpr.Range().Start.Byte
	end := item.ValueExpr.Range().End.Byte

	ownLine := false
	if ls := lineStart(src, start); isBlank(src[ls:start]) {
		ownLine = true
		start = ls
		for start > 0 {
			prev := lineStart(src, start-1)
			if !isCommentLine(src[prev:start]) {
				break
			}
			start = prev
		}
	}

	for end < len(src) && (src[end] == ' ' || src[end] == '\t') {
		end++
	}
	if end < len(src) && src[end] == ',' {
		end++
	}
	if ownLine {
		le := lineEnd(src, end)
		if rest := src[end:le]; isBlank(rest) || isCommentLine(rest) {
			end = le
		}
	}
	return splice{start, end, ""}
}

// insertItems places entry, one item per line, before the closing brace
// of obj using the indentation of its existing items.
func insertItems(src []byte, obj *hclsyntax.ObjectConsExpr, entry string) splice {
	closeAt := obj.Range().End.Byte - 1
	ind := lineIndent(src, obj.Range().Start.Byte) + indentUnit
	if n := len(obj.Items); n > 0 {
		keyAt := obj.Items[n-1].KeyExpr.Range().Start.Byte
		if ls := lineStart(src, keyAt); isBlank(src[ls:keyAt]) {
			ind = string(src[ls:keyAt])
		}
	}
	text := indent(entry, ind) + "\n"

	if ls := lineStart(src, closeAt); isBlank(src[ls:closeAt]) {
		return splice{ls, ls, text}
	}
	return splice{closeAt, closeAt, "\n" + text}
}

func renderValue(v cty.Value) string {
	return strings.TrimSpace(string(hclwrite.Format(hclwrite.TokensForValue(v).Bytes())))
}

func isZero(v cty.Value) bool {
	switch {
	case v.Type() == cty.String:
		return v.AsString() == ""
	case v.Type() == cty.Number:
		return v.Equals(cty.Zero).True()
	case v.CanIterateElements():
		return v.LengthInt() == 0
	}
	return false
}

// indent prefixes every line of s with prefix.
func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

// indentTail prefixes every line but the first.
func indentTail(s, prefix string) string {
	first, rest, ok := strings.Cut(s, "\n")
	if !ok {
		return s
	}
	return first + "\n" + indent(rest, prefix)
}

func lineStart(src []byte, off int) int {
	return bytes.LastIndexByte(src[:off], '\n') + 1
}

// lineEnd returns the offset just past the newline ending the line at off.
func lineEnd(src []byte, off int) int {
	if i := bytes.IndexByte(src[off:], '\n'); i >= 0 {
		return off + i + 1
	}
	return len(src)
}

func lineIndent(src []byte, off int) string {
	ls := lineStart(src, off)
	i := ls
	for i < len(src) && (src[i] == ' ' || src[i] == '\t') {
		i++
	}
	return string(src[ls:i])
}

func isBlank(b []byte) bool {
	return len(bytes.TrimSpace(b)) == 0
}

func isCommentLine(b []byte) bool {
	t := bytes.TrimSpace(b)
	return bytes.HasPrefix(t, []byte("#")) || bytes.HasPrefix(t, []byte("//"))
}
