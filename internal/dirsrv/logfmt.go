package dirsrv

// parseLogfmt tokenizes a space-separated key=value message into a map.
// Values may be double-quoted with backslash-escaped quotes and embedded
// spaces. Bare keys map to the empty string. Garbage tokens (a '=' with no
// key) are dropped silently; this parser is deliberately lenient because the
// server occasionally emits partial pairs.
func parseLogfmt(message string) map[string]string {
	pairs := make(map[string]string)

	var (
		key     string
		haveKey bool
		buf     []rune
		escape  bool
		garbage bool
		quoted  bool
	)

	complete := func() {
		if haveKey {
			pairs[key] = string(buf)
		} else if len(buf) > 0 || key != "" {
			pairs[string(buf)] = ""
		}
		key, haveKey, buf = "", false, nil
	}

	for _, c := range message {
		switch {
		case !quoted && c == ' ':
			if len(buf) > 0 {
				if !garbage {
					complete()
				}
				buf = nil
			}
			garbage = false
		case !quoted && c == '=':
			if len(buf) > 0 {
				key, haveKey = string(buf), true
				buf = nil
			} else {
				garbage = true
			}
		case quoted && c == '\\':
			escape = true
		case c == '"':
			if escape {
				buf = append(buf, c)
				escape = false
			} else {
				quoted = !quoted
			}
		default:
			// An escape not followed by a quote is literal text.
			if escape {
				buf = append(buf, '\\')
				escape = false
			}
			buf = append(buf, c)
		}
	}

	// An unterminated quote leaves the last token ambiguous; drop it.
	if !garbage && !quoted && (len(buf) > 0 || haveKey) {
		complete()
	}

	return pairs
}
