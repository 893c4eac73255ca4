package nl2sql

import "strings"

// Extract pulls the first statement-shaped block out of raw completion text,
// tolerating surrounding prose, markdown fences, and trailing commentary.
// The first SELECT- or WITH-led block wins; everything after its terminator
// is discarded. Returns ErrNoStatement when nothing statement-shaped is
// found. Extract is idempotent on its own successful output.
func Extract(raw string) (string, error) {
	if fenced, ok := fencedBlock(raw); ok {
		if stmt, ok := firstStatement(fenced); ok {
			return stmt, nil
		}
	}
	if stmt, ok := firstStatement(raw); ok {
		return stmt, nil
	}
	return "", ErrNoStatement
}

// fencedBlock returns the contents of the first ``` fence, with any language
// tag line stripped. An unterminated fence runs to the end of the text.
func fencedBlock(raw string) (string, bool) {
	start := strings.Index(raw, "```")
	if start < 0 {
		return "", false
	}
	body := raw[start+3:]
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		tag := strings.TrimSpace(body[:nl])
		if tag != "" && len(tag) <= 10 && !strings.ContainsAny(tag, " \t") {
			body = body[nl+1:]
		}
	}
	return strings.TrimSpace(body), true
}

// firstStatement locates where a statement begins: the first line led by
// SELECT or WITH in any case, else the first prose-embedded uppercase
// SELECT or WITH. The block is cut at the first terminator so trailing
// commentary and extra statements are dropped.
func firstStatement(text string) (string, bool) {
	offset := 0
	for _, line := range strings.Split(text, "\n") {
		if statementLed(line) {
			return cutAtTerminator(strings.TrimSpace(text[offset:])), true
		}
		offset += len(line) + 1
	}
	// Earliest keyword wins so a CTE is not cut at its inner SELECT.
	best := -1
	for _, keyword := range []string{"SELECT", "WITH"} {
		if idx := keywordIndex(text, keyword); idx >= 0 && (best < 0 || idx < best) {
			best = idx
		}
	}
	if best >= 0 {
		return cutAtTerminator(strings.TrimSpace(text[best:])), true
	}
	return "", false
}

// statementLed reports whether the line's first token is SELECT or WITH in
// any case. The boundary check keeps words like "withdrawal" from matching.
func statementLed(line string) bool {
	lowered := strings.ToLower(strings.TrimSpace(line))
	for _, keyword := range []string{"select", "with"} {
		if strings.HasPrefix(lowered, keyword) {
			rest := lowered[len(keyword):]
			if rest == "" || !isIdentChar(rest[0]) {
				return true
			}
		}
	}
	return false
}

// keywordIndex finds keyword as a whole word, or -1.
func keywordIndex(text, keyword string) int {
	from := 0
	for {
		idx := strings.Index(text[from:], keyword)
		if idx < 0 {
			return -1
		}
		abs := from + idx
		startOK := abs == 0 || !isIdentChar(text[abs-1])
		end := abs + len(keyword)
		endOK := end >= len(text) || !isIdentChar(text[end])
		if startOK && endOK {
			return abs
		}
		from = end
	}
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func cutAtTerminator(block string) string {
	if semi := strings.IndexByte(block, ';'); semi >= 0 {
		block = block[:semi+1]
	}
	return strings.TrimSpace(block)
}
