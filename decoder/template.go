package decoder

import "strings"

// render applies a small, bounded set of variable-expansion rules in
// place of a general templating engine: {{name}} substitutes a declared
// scalar variable, {{#name}}...{{/name}}" repeats its body once per
// element of a declared array variable (with {{.}} inside referring to
// the current element), and HTML-escaping is disabled — every
// substitution is inserted verbatim.
func (ip *Interpreter) render(content string) string {
	return renderSections(content, ip.arrays, ip.vars)
}

// renderSections expands every {{#name}}...{{/name}} block first (so
// nested {{name}} references inside a section see the same scalar
// table), then runs the flat scalar pass over what remains.
func renderSections(content string, arrays map[string][]string, vars map[string]string) string {
	var out strings.Builder
	rest := content
	for {
		start := strings.Index(rest, "{{#")
		if start < 0 {
			out.WriteString(renderScalars(rest, vars))
			break
		}
		nameEnd := strings.Index(rest[start:], "}}")
		if nameEnd < 0 {
			out.WriteString(renderScalars(rest, vars))
			break
		}
		name := rest[start+3 : start+nameEnd]
		closeTag := "{{/" + name + "}}"
		bodyStart := start + nameEnd + 2
		closeIdx := strings.Index(rest[bodyStart:], closeTag)
		if closeIdx < 0 {
			// Unterminated section: emit verbatim rather than guessing.
			out.WriteString(renderScalars(rest[:start], vars))
			out.WriteString(rest[start:bodyStart])
			rest = rest[bodyStart:]
			continue
		}

		out.WriteString(renderScalars(rest[:start], vars))
		body := rest[bodyStart : bodyStart+closeIdx]
		for _, item := range arrays[name] {
			itemVars := make(map[string]string, len(vars)+1)
			for k, v := range vars {
				itemVars[k] = v
			}
			itemVars["."] = item
			out.WriteString(renderScalars(body, itemVars))
		}

		rest = rest[bodyStart+closeIdx+len(closeTag):]
	}
	return out.String()
}

// renderScalars replaces every {{name}} occurrence with vars[name],
// leaving unknown names as an empty string — mustache's default
// behavior for a missing key.
func renderScalars(content string, vars map[string]string) string {
	var out strings.Builder
	rest := content
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			out.WriteString(rest)
			return out.String()
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			out.WriteString(rest)
			return out.String()
		}
		out.WriteString(rest[:start])
		name := strings.TrimSpace(rest[start+2 : start+end])
		out.WriteString(vars[name])
		rest = rest[start+end+2:]
	}
}
