package store

// Match reports whether key matches a Redis-style glob pattern: * matches any
// run of bytes, ? one byte, [abc] [a-z] [^x] a class, and \ escapes the next byte.
func Match(pattern, key string) bool {
	return match(pattern, key)
}

func match(p, s string) bool {
	for len(p) > 0 {
		switch p[0] {
		case '*':
			for len(p) > 1 && p[1] == '*' {
				p = p[1:]
			}

			if len(p) == 1 {
				return true
			}

			for i := 0; i <= len(s); i++ {
				if match(p[1:], s[i:]) {
					return true
				}
			}

			return false
		case '?':
			if len(s) == 0 {
				return false
			}

			p, s = p[1:], s[1:]
		case '[':
			if len(s) == 0 {
				return false
			}

			rest, ok := matchClass(p[1:], s[0])
			if !ok {
				return false
			}

			p, s = rest, s[1:]
		case '\\':
			if len(p) > 1 {
				p = p[1:]
			}

			fallthrough
		default:
			if len(s) == 0 || p[0] != s[0] {
				return false
			}

			p, s = p[1:], s[1:]
		}
	}

	return len(s) == 0
}

// matchClass matches c against the class body starting after '[' and returns
// the pattern remaining after the closing ']'. An unterminated class runs to
// the end of the pattern.
func matchClass(p string, c byte) (string, bool) {
	negate := false
	if len(p) > 0 && p[0] == '^' {
		negate = true
		p = p[1:]
	}

	matched := false

	for len(p) > 0 && p[0] != ']' {
		switch {
		case p[0] == '\\' && len(p) > 1:
			if p[1] == c {
				matched = true
			}

			p = p[2:]
		case len(p) > 2 && p[1] == '-' && p[2] != ']':
			lo, hi := p[0], p[2]
			if lo > hi {
				lo, hi = hi, lo
			}

			if c >= lo && c <= hi {
				matched = true
			}

			p = p[3:]
		default:
			if p[0] == c {
				matched = true
			}

			p = p[1:]
		}
	}

	if len(p) > 0 {
		p = p[1:]
	}

	return p, matched != negate
}
