package gridbasic

import (
	"strings"
)

// LexLine tokenizes a single source line. The lexer only classifies tokens;
// it knows nothing about statements. A ';' collapses the rest of the line
// into one comment token. Unknown characters are lexical errors carrying the
// offending character and column.
func LexLine(src string, lineNo int) ([]Token, error) {
	tokens := make([]Token, 0, 8)
	i := 0
	for i < len(src) {
		ch := src[i]
		col := i + 1

		switch {
		case ch == ' ' || ch == '\t':
			i++
			continue

		case ch == ';':
			tokens = append(tokens, Token{Kind: TokenComment, Text: strings.TrimSpace(src[i+1:]), Line: lineNo, Col: col})
			return tokens, nil

		case ch >= '0' && ch <= '9':
			j := i
			for j < len(src) && src[j] >= '0' && src[j] <= '9' {
				j++
			}
			tokens = append(tokens, Token{Kind: TokenNumber, Text: src[i:j], Line: lineNo, Col: col})
			i = j

		case ch == '"':
			text, next, err := lexString(src, i, lineNo)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, Token{Kind: TokenString, Text: text, Line: lineNo, Col: col})
			i = next

		case isLetter(ch):
			j := i
			for j < len(src) && (isLetter(src[j]) || src[j] >= '0' && src[j] <= '9') {
				j++
			}
			word := strings.ToUpper(src[i:j])
			if j-i == 1 {
				tokens = append(tokens, Token{Kind: TokenIdent, Text: word, Line: lineNo, Col: col})
			} else if len(tokens) == 0 && j < len(src) && src[j] == ':' {
				// Label definitions only make sense as the first token.
				tokens = append(tokens, Token{Kind: TokenLabel, Text: strings.ToLower(src[i:j]), Line: lineNo, Col: col})
				j++
			} else {
				tokens = append(tokens, Token{Kind: TokenWord, Text: word, Line: lineNo, Col: col})
			}
			i = j

		case isSystemVar(ch):
			tokens = append(tokens, Token{Kind: TokenIdent, Text: string(ch), Line: lineNo, Col: col})
			i++

		default:
			kind, width, ok := lexPunct(src, i)
			if !ok {
				return nil, NewLexicalError(string(ch), lineNo, col)
			}
			tokens = append(tokens, Token{Kind: kind, Text: src[i : i+width], Line: lineNo, Col: col})
			i += width
		}
	}
	return tokens, nil
}

// lexString scans a quoted literal starting at src[start] == '"'. A doubled
// quote inside the literal stands for one quote character.
func lexString(src string, start, lineNo int) (string, int, error) {
	var sb strings.Builder
	i := start + 1
	for i < len(src) {
		if src[i] == '"' {
			if i+1 < len(src) && src[i+1] == '"' {
				sb.WriteByte('"')
				i += 2
				continue
			}
			return sb.String(), i + 1, nil
		}
		sb.WriteByte(src[i])
		i++
	}
	return "", 0, NewSyntaxError("MISSING_QUOTES", lineNo, start+1)
}

func lexPunct(src string, i int) (TokenKind, int, bool) {
	two := ""
	if i+1 < len(src) {
		two = src[i : i+2]
	}
	switch two {
	case ">=":
		return TokenGe, 2, true
	case "<=":
		return TokenLe, 2, true
	case "<>":
		return TokenNe, 2, true
	}
	switch src[i] {
	case '(':
		return TokenLParen, 1, true
	case ')':
		return TokenRParen, 1, true
	case ',':
		return TokenComma, 1, true
	case '@':
		return TokenAt, 1, true
	case '?':
		return TokenQuestion, 1, true
	case '/':
		return TokenSlash, 1, true
	case '=':
		return TokenEq, 1, true
	case '<':
		return TokenLt, 1, true
	case '>':
		return TokenGt, 1, true
	case '+':
		return TokenPlus, 1, true
	case '-':
		return TokenMinus, 1, true
	case '*':
		return TokenStar, 1, true
	case '&':
		return TokenAmp, 1, true
	case '|':
		return TokenPipe, 1, true
	case '!':
		return TokenBang, 1, true
	}
	return 0, 0, false
}

func isLetter(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z'
}
