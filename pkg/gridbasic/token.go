package gridbasic

// TokenKind classifies a single lexed token.
type TokenKind int

const (
	TokenNumber TokenKind = iota
	TokenString
	TokenIdent   // single-letter variable or system variable symbol
	TokenWord    // keyword or label reference (two or more letters)
	TokenLabel   // label definition at line start ("name:")
	TokenComment // rest of line after ';', collapsed into one token
	TokenLParen
	TokenRParen
	TokenComma
	TokenAt       // '@' memory access introducer
	TokenQuestion // '?' output statement introducer
	TokenSlash    // '/' divide, or newline statement when it introduces one
	TokenEq       // '=' assignment or comparison, position decides
	TokenLt
	TokenGt
	TokenLe
	TokenGe
	TokenNe
	TokenPlus
	TokenMinus
	TokenStar
	TokenAmp
	TokenPipe
	TokenBang
)

var tokenKindNames = map[TokenKind]string{
	TokenNumber:   "number",
	TokenString:   "string",
	TokenIdent:    "identifier",
	TokenWord:     "word",
	TokenLabel:    "label",
	TokenComment:  "comment",
	TokenLParen:   "(",
	TokenRParen:   ")",
	TokenComma:    ",",
	TokenAt:       "@",
	TokenQuestion: "?",
	TokenSlash:    "/",
	TokenEq:       "=",
	TokenLt:       "<",
	TokenGt:       ">",
	TokenLe:       "<=",
	TokenGe:       ">=",
	TokenNe:       "<>",
	TokenPlus:     "+",
	TokenMinus:    "-",
	TokenStar:     "*",
	TokenAmp:      "&",
	TokenPipe:     "|",
	TokenBang:     "!",
}

// Token is one lexed unit with its source position (1-based line and column).
type Token struct {
	Kind TokenKind
	Text string
	Line int
	Col  int
}

func (t Token) String() string {
	if name, ok := tokenKindNames[t.Kind]; ok && t.Kind > TokenComment {
		return name
	}
	return tokenKindNames[t.Kind] + " " + t.Text
}

// Keywords of the language. Words are uppercased before lookup, so source
// keywords are case-insensitive.
const (
	kwIf     = "IF"
	kwThen   = "THEN"
	kwElseIf = "ELSEIF"
	kwElse   = "ELSE"
	kwEndIf  = "ENDIF"
	kwFor    = "FOR"
	kwTo     = "TO"
	kwStep   = "STEP"
	kwNext   = "NEXT"
	kwWhile  = "WHILE"
	kwGoto   = "GOTO"
	kwGosub  = "GOSUB"
	kwReturn = "RETURN"
	kwHalt   = "HALT"
)

var keywords = map[string]bool{
	kwIf: true, kwThen: true, kwElseIf: true, kwElse: true, kwEndIf: true,
	kwFor: true, kwTo: true, kwStep: true, kwNext: true, kwWhile: true,
	kwGoto: true, kwGosub: true, kwReturn: true, kwHalt: true,
}

// IsKeyword reports whether a word token matches a reserved keyword.
func IsKeyword(word string) bool {
	return keywords[word]
}

// System variable symbols. Single punctuation characters that act as
// read-only variables inside expressions.
const (
	SysCurrentLine = '#'  // line number of the statement being executed
	SysCallerLine  = '^'  // line of the innermost pending GOSUB, 0 if none
	SysRandom      = '\'' // fresh pseudo-random value on every read
	SysInputCode   = '`'  // next input code 0-255, 0 when none pending
	SysGridX       = '%'  // this worker's grid column
	SysGridY       = '~'  // this worker's grid row
)

func isSystemVar(ch byte) bool {
	switch rune(ch) {
	case SysCurrentLine, SysCallerLine, SysRandom, SysInputCode, SysGridX, SysGridY:
		return true
	}
	return false
}
