package cktools

// Lenient JSON reading.
//
// Some annotation files in the wild are Python literal dumps rather than JSON: single quoted
// strings, True/False/None and integer dictionary keys. These are rewritten token by token into
// JSON. Nothing is evaluated, and any token that is not part of a literal is rejected.

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tailscale/hujson"
)

// ReadJSON reads the file at path and decodes it into v.
//
// Strict JSON is tried first. On a syntax error the content is normalised from Python literal
// syntax and standardised with hujson (comments, trailing commas) before a second strict parse.
// If both fail, a *ParseError is returned.
func ReadJSON(path string, v interface{}) error {
	content, err := readFile(path)
	if err != nil {
		return fmt.Errorf("cannot read file %q: %w", path, err)
	}
	if err := decodeLenient(content, v); err != nil {
		return &ParseError{Path: path, Err: err}
	}
	return nil
}

// ReadDataset reads the COCO dataset at path.
func ReadDataset(path string) (*Dataset, error) {
	var ds Dataset
	if err := ReadJSON(path, &ds); err != nil {
		return nil, err
	}
	return &ds, nil
}

// WriteDataset writes the dataset as indented JSON to path.
func WriteDataset(path string, ds *Dataset) error {
	enc, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(path, enc)
}

func decodeLenient(content []byte, v interface{}) error {
	err := json.Unmarshal(content, v)
	var syntaxErr *json.SyntaxError
	if err == nil || !errors.As(err, &syntaxErr) {
		return err
	}

	normalized, litErr := normalizeLiteral(content)
	if litErr != nil {
		return fmt.Errorf("%v; literal fallback: %w", err, litErr)
	}
	standard, litErr := hujson.Standardize(normalized)
	if litErr != nil {
		return fmt.Errorf("%v; literal fallback: %w", err, litErr)
	}
	if litErr := json.Unmarshal(standard, v); litErr != nil {
		return fmt.Errorf("%v; literal fallback: %w", err, litErr)
	}
	return nil
}

// normalizeLiteral rewrites a Python literal structure (dicts, lists, tuples, strings, numbers,
// True/False/None) as JSON with comments. Non-string dictionary keys become their string form,
// tuples become arrays and a parenthesised single value becomes the value itself.
func normalizeLiteral(src []byte) ([]byte, error) {
	var out bytes.Buffer
	out.Grow(len(src))

	var stack []byte // Open '{', '[' and '(' brackets.
	type paren struct {
		at    int  // Output offset of the '[' written for '('.
		comma bool // A comma makes it a tuple.
	}
	var parens []paren
	expectKey := false
	inObject := func() bool {
		return len(stack) > 0 && stack[len(stack)-1] == '{'
	}
	// Writes a scalar token, quoting it if it is used as a dictionary key.
	writeScalar := func(jsonTok, keyTok string) {
		if expectKey && inObject() {
			enc, _ := json.Marshal(keyTok)
			out.Write(enc)
		} else {
			out.WriteString(jsonTok)
		}
		expectKey = false
	}

	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			out.WriteByte(c)
			i++

		case c == '#':
			end := bytes.IndexByte(src[i:], '\n')
			if end < 0 {
				end = len(src) - i
			}
			out.WriteString("//")
			out.Write(src[i+1 : i+end])
			i += end

		case c == '{' || c == '[':
			stack = append(stack, c)
			expectKey = c == '{'
			out.WriteByte(c)
			i++

		case c == '(':
			if expectKey && inObject() {
				return nil, fmt.Errorf("tuple dictionary key at offset %d", i)
			}
			stack = append(stack, c)
			parens = append(parens, paren{at: out.Len()})
			expectKey = false
			out.WriteByte('[')
			i++

		case c == '}' || c == ']' || c == ')':
			open := map[byte]byte{'}': '{', ']': '[', ')': '('}[c]
			if len(stack) == 0 || stack[len(stack)-1] != open {
				return nil, fmt.Errorf("unbalanced %q at offset %d", c, i)
			}
			stack = stack[:len(stack)-1]
			expectKey = false
			i++
			if c != ')' {
				out.WriteByte(c)
				break
			}
			p := parens[len(parens)-1]
			parens = parens[:len(parens)-1]
			inner := out.Bytes()[p.at+1:]
			if p.comma || len(bytes.TrimSpace(inner)) == 0 {
				out.WriteByte(']')
			} else {
				out.Bytes()[p.at] = ' '
				out.WriteByte(' ')
			}

		case c == ',':
			if len(stack) > 0 && stack[len(stack)-1] == '(' {
				parens[len(parens)-1].comma = true
			}
			expectKey = inObject()
			out.WriteByte(c)
			i++

		case c == ':':
			expectKey = false
			out.WriteByte(c)
			i++

		case c == '"' || c == '\'':
			s, n, err := scanQuoted(src[i:])
			if err != nil {
				return nil, fmt.Errorf("at offset %d: %w", i, err)
			}
			enc, _ := json.Marshal(s)
			out.Write(enc)
			expectKey = false
			i += n

		case c == '-' || c == '+' || c == '.' || isDigit(c):
			j := i + 1
			for j < len(src) && isNumberByte(src[j]) {
				j++
			}
			num, err := normalizeNumber(string(src[i:j]))
			if err != nil {
				return nil, fmt.Errorf("at offset %d: %w", i, err)
			}
			writeScalar(num, num)
			i = j

		case isIdentStart(c):
			j := i + 1
			for j < len(src) && (isIdentStart(src[j]) || isDigit(src[j])) {
				j++
			}
			ident := string(src[i:j])
			switch ident {
			case "True", "true":
				writeScalar("true", "True")
			case "False", "false":
				writeScalar("false", "False")
			case "None", "null":
				writeScalar("null", "None")
			default:
				return nil, fmt.Errorf("unsupported identifier %q at offset %d", ident, i)
			}
			i = j

		default:
			r, _ := utf8.DecodeRune(src[i:])
			return nil, fmt.Errorf("unsupported character %q at offset %d", r, i)
		}
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("unexpected end of input, %d unclosed brackets", len(stack))
	}

	return out.Bytes(), nil
}

// scanQuoted decodes the single or double quoted string at the start of src. It returns the
// string value and the number of bytes consumed.
func scanQuoted(src []byte) (string, int, error) {
	q := src[0]
	if len(src) >= 3 && src[1] == q && src[2] == q {
		return "", 0, errors.New("triple quoted strings are not supported")
	}

	var sb strings.Builder
	for i := 1; i < len(src); {
		c := src[i]
		switch c {
		case q:
			return sb.String(), i + 1, nil
		case '\n':
			return "", 0, errors.New("newline in string literal")
		case '\\':
			if i+1 >= len(src) {
				return "", 0, errors.New("unterminated escape sequence")
			}
			n, err := writeEscape(&sb, src[i:])
			if err != nil {
				return "", 0, err
			}
			i += n
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return "", 0, errors.New("unterminated string literal")
}

// writeEscape decodes the escape sequence at the start of src into sb and returns its length.
func writeEscape(sb *strings.Builder, src []byte) (int, error) {
	hexRune := func(digits int) (int, error) {
		if len(src) < 2+digits {
			return 0, fmt.Errorf("short escape sequence %q", src)
		}
		v, err := strconv.ParseUint(string(src[2:2+digits]), 16, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid escape sequence %q", src[:2+digits])
		}
		sb.WriteRune(rune(v))
		return 2 + digits, nil
	}

	switch src[1] {
	case '\\', '\'', '"':
		sb.WriteByte(src[1])
	case 'n':
		sb.WriteByte('\n')
	case 't':
		sb.WriteByte('\t')
	case 'r':
		sb.WriteByte('\r')
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case '0':
		sb.WriteByte(0)
	case 'x':
		return hexRune(2)
	case 'u':
		return hexRune(4)
	case 'U':
		return hexRune(8)
	default:
		// Unknown escapes keep the backslash.
		sb.WriteByte('\\')
		sb.WriteByte(src[1])
	}
	return 2, nil
}

// normalizeNumber converts a Python numeric literal to a JSON number.
func normalizeNumber(tok string) (string, error) {
	num := strings.ReplaceAll(strings.TrimPrefix(tok, "+"), "_", "")
	if json.Valid([]byte(num)) {
		return num, nil
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return "", fmt.Errorf("invalid number %q", tok)
	}
	return strconv.FormatFloat(f, 'g', -1, 64), nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isNumberByte(c byte) bool {
	return isDigit(c) || c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-' || c == '_'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
