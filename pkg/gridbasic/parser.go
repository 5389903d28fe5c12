package gridbasic

import (
	"strings"
)

// Parse builds the Program AST from source text. All lexical, syntax and
// resolve errors are reported here; nothing is left half-loaded for the
// engine. The label table is populated in a pre-pass over every line so
// forward references resolve no matter how block collection reshapes the
// program.
func Parse(source string) (*Program, error) {
	p := &parser{labels: make(map[string]int)}
	if err := p.lexAll(source); err != nil {
		return nil, err
	}
	if err := p.collectLabels(); err != nil {
		return nil, err
	}
	return p.parseProgram()
}

type parser struct {
	lines  [][]Token // tokens per physical line, comments stripped
	cur    int       // physical line index being consumed
	labels map[string]int
}

func (p *parser) lexAll(source string) error {
	source = strings.ReplaceAll(source, "\r\n", "\n")
	source = strings.ReplaceAll(source, "\r", "\n")
	raw := strings.Split(source, "\n")
	p.lines = make([][]Token, len(raw))
	for n, text := range raw {
		toks, err := LexLine(text, n+1)
		if err != nil {
			return err
		}
		// Comments collapse to one token in the lexer and vanish here.
		for len(toks) > 0 && toks[len(toks)-1].Kind == TokenComment {
			toks = toks[:len(toks)-1]
		}
		p.lines[n] = toks
	}
	return nil
}

// collectLabels is the pre-pass: every label definition is recorded before
// any block collection begins. Label validity (top level only) is enforced
// during collection; uniqueness is enforced here.
func (p *parser) collectLabels() error {
	for n, toks := range p.lines {
		if len(toks) > 0 && toks[0].Kind == TokenLabel {
			name := toks[0].Text
			if _, dup := p.labels[name]; dup {
				return NewResolveError("DUPLICATE_LABEL", name, n+1)
			}
			p.labels[name] = n + 1
		}
	}
	return nil
}

func (p *parser) parseProgram() (*Program, error) {
	prog := &Program{
		Labels: p.labels,
		byLine: make(map[int]int),
	}
	for p.cur = 0; p.cur < len(p.lines); p.cur++ {
		toks := p.lines[p.cur]
		if len(toks) == 0 {
			continue
		}
		line := &Line{Number: toks[0].Line}
		j := 0
		if toks[0].Kind == TokenLabel {
			line.Label = toks[0].Text
			j = 1
		}
		stmts, err := p.parseLineBody(toks, j)
		if err != nil {
			return nil, err
		}
		line.Stmts = stmts
		// Label-only lines stay addressable as jump targets even though
		// they execute nothing.
		if line.Label == "" && len(line.Stmts) == 0 {
			continue
		}
		prog.byLine[line.Number] = len(prog.Lines)
		prog.Lines = append(prog.Lines, line)
	}
	return prog, nil
}

// parseLineBody parses the statements of one line starting at token j. Block
// headers hand control to the block collectors, which advance p.cur through
// the following physical lines.
func (p *parser) parseLineBody(toks []Token, j int) ([]Stmt, error) {
	var stmts []Stmt
	for j < len(toks) {
		st, next, err := p.parseStmt(toks, j)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, st)
		j = next
	}
	return stmts, nil
}

func (p *parser) parseStmt(toks []Token, j int) (Stmt, int, error) {
	tok := toks[j]
	at := pos{tok.Line, tok.Col}

	switch tok.Kind {
	case TokenIdent:
		return p.parseAssign(toks, j)

	case TokenQuestion:
		return p.parsePrint(toks, j)

	case TokenSlash:
		return &NewlineStmt{pos: at}, j + 1, nil

	case TokenAt:
		return p.parsePoke(toks, j)

	case TokenWord:
		switch tok.Text {
		case kwGoto:
			label, next, err := p.parseJumpTarget(toks, j)
			if err != nil {
				return nil, next, err
			}
			return &GotoStmt{pos: at, Label: label}, next, nil
		case kwGosub:
			label, next, err := p.parseJumpTarget(toks, j)
			if err != nil {
				return nil, next, err
			}
			return &GosubStmt{pos: at, Label: label}, next, nil
		case kwReturn:
			return &ReturnStmt{pos: at}, j + 1, nil
		case kwHalt:
			return &HaltStmt{pos: at}, j + 1, nil
		case kwIf:
			return p.parseIf(toks, j)
		case kwFor:
			return p.parseFor(toks, j)
		case kwWhile:
			return p.parseWhile(toks, j)
		case kwNext, kwEndIf, kwElse, kwElseIf:
			return nil, j, NewSyntaxError("DANGLING_END_MARKER", tok.Line, tok.Col).withDetail(tok.Text)
		default:
			return nil, j, NewSyntaxError("EXPECTED_STATEMENT", tok.Line, tok.Col).withDetail(tok.Text)
		}

	case TokenLabel:
		// Only legal as the very first token of a top-level line; the
		// program loop consumed that case already.
		return nil, j, NewSyntaxError("LABEL_IN_BLOCK", tok.Line, tok.Col).withDetail(tok.Text)

	default:
		return nil, j, NewSyntaxError("EXPECTED_STATEMENT", tok.Line, tok.Col)
	}
}

func (p *parser) parseAssign(toks []Token, j int) (Stmt, int, error) {
	tok := toks[j]
	name := tok.Text[0]
	if !(name >= 'A' && name <= 'Z') {
		return nil, j, NewSyntaxError("ASSIGN_SYSTEM_VARIABLE", tok.Line, tok.Col).withDetail(tok.Text)
	}
	if j+1 >= len(toks) || toks[j+1].Kind != TokenEq {
		return nil, j, NewSyntaxError("EXPECTED_EQUALS", tok.Line, tok.Col)
	}
	value, next, err := parseExpression(toks, j+2)
	if err != nil {
		return nil, next, err
	}
	return &LetStmt{pos: pos{tok.Line, tok.Col}, Name: name, Value: value}, next, nil
}

func (p *parser) parsePrint(toks []Token, j int) (Stmt, int, error) {
	tok := toks[j]
	if j+1 < len(toks) && toks[j+1].Kind == TokenString {
		s := toks[j+1]
		lit := &StringLit{pos: pos{s.Line, s.Col}, Value: s.Text}
		return &PrintStmt{pos: pos{tok.Line, tok.Col}, Value: lit}, j + 2, nil
	}
	value, next, err := parseExpression(toks, j+1)
	if err != nil {
		return nil, next, err
	}
	return &PrintStmt{pos: pos{tok.Line, tok.Col}, Value: value}, next, nil
}

func (p *parser) parsePoke(toks []Token, j int) (Stmt, int, error) {
	tok := toks[j]
	args, next, err := parseMemoryArgs(toks, j)
	if err != nil {
		return nil, next, err
	}
	if next >= len(toks) || toks[next].Kind != TokenEq {
		return nil, next, NewSyntaxError("EXPECTED_EQUALS", tok.Line, tok.Col)
	}
	value, after, err := parseExpression(toks, next+1)
	if err != nil {
		return nil, after, err
	}
	at := pos{tok.Line, tok.Col}
	switch len(args) {
	case 1:
		if isStackIndex(args[0]) {
			return &PokeStmt{pos: at, Stack: true, Value: value}, after, nil
		}
		return &PokeStmt{pos: at, Index: args[0], Value: value}, after, nil
	case 2:
		return &GridWriteStmt{pos: at, X: args[0], Y: args[1], Value: value}, after, nil
	default:
		return nil, after, NewSyntaxError("INVALID_MEMORY_ARGUMENTS", tok.Line, tok.Col)
	}
}

// parseJumpTarget insists on a bare label name: a number or an expression
// after GOTO/GOSUB is a syntax error, and an unknown label is a resolve
// error thanks to the pre-pass.
func (p *parser) parseJumpTarget(toks []Token, j int) (string, int, error) {
	tok := toks[j]
	if j+1 >= len(toks) || toks[j+1].Kind != TokenWord || IsKeyword(toks[j+1].Text) {
		return "", j, NewSyntaxError("EXPECTED_LABEL", tok.Line, tok.Col).withDetail(tok.Text)
	}
	name := strings.ToLower(toks[j+1].Text)
	if _, ok := p.labels[name]; !ok {
		return "", j, NewResolveError("UNDEFINED_LABEL", name, tok.Line)
	}
	return name, j + 2, nil
}

// parseIf handles both forms. When statements follow the condition on the
// same line the remainder of the line becomes the then-body (with an
// optional inline ELSE); otherwise the following lines are collected until
// ELSEIF/ELSE/ENDIF.
func (p *parser) parseIf(toks []Token, j int) (Stmt, int, error) {
	tok := toks[j]
	cond, next, err := parseExpression(toks, j+1)
	if err != nil {
		return nil, next, err
	}
	if next < len(toks) && toks[next].Kind == TokenWord && toks[next].Text == kwThen {
		next++
	}
	st := &IfStmt{pos: pos{tok.Line, tok.Col}, Cond: cond}

	if next < len(toks) {
		// Inline form: the rest of the line belongs to this IF.
		thenToks, elseToks := splitInlineElse(toks, next)
		st.Then, err = p.parseInlineBody(thenToks)
		if err != nil {
			return nil, next, err
		}
		if elseToks != nil {
			st.Else, err = p.parseInlineBody(elseToks)
			if err != nil {
				return nil, next, err
			}
		}
		return st, len(toks), nil
	}

	// Block form.
	body, stop, err := p.collectBody(kwElseIf, kwElse, kwEndIf)
	if err != nil {
		return nil, next, err
	}
	st.Then = body
	seenElse := false
	for {
		stopToks := p.lines[p.cur]
		switch stop {
		case kwElseIf:
			if seenElse {
				return nil, next, NewSyntaxError("ELSE_AFTER_ELSE", stopToks[0].Line, stopToks[0].Col)
			}
			armCond, after, err := parseExpression(stopToks, 1)
			if err != nil {
				return nil, after, err
			}
			if after != len(stopToks) {
				return nil, after, NewSyntaxError("TRAILING_TOKENS", stopToks[after].Line, stopToks[after].Col)
			}
			armBody, nextStop, err := p.collectBody(kwElseIf, kwElse, kwEndIf)
			if err != nil {
				return nil, next, err
			}
			st.ElseIfs = append(st.ElseIfs, ElseIfClause{Cond: armCond, Body: armBody})
			stop = nextStop
		case kwElse:
			if seenElse {
				return nil, next, NewSyntaxError("ELSE_AFTER_ELSE", stopToks[0].Line, stopToks[0].Col)
			}
			if len(stopToks) != 1 {
				return nil, next, NewSyntaxError("TRAILING_TOKENS", stopToks[1].Line, stopToks[1].Col)
			}
			seenElse = true
			elseBody, nextStop, err := p.collectBody(kwElseIf, kwElse, kwEndIf)
			if err != nil {
				return nil, next, err
			}
			st.Else = elseBody
			stop = nextStop
		case kwEndIf:
			if len(stopToks) != 1 {
				return nil, next, NewSyntaxError("TRAILING_TOKENS", stopToks[1].Line, stopToks[1].Col)
			}
			return st, len(toks), nil
		}
	}
}

// splitInlineElse splits the tail of an inline IF line at the first
// top-level ELSE word. Nested inline IFs cannot occur before it: an inner
// inline IF would itself have consumed the remainder of the line, so the
// first ELSE encountered belongs to the outermost IF of this tail.
func splitInlineElse(toks []Token, j int) (thenToks, elseToks []Token) {
	for k := j; k < len(toks); k++ {
		if toks[k].Kind == TokenWord && toks[k].Text == kwElse {
			return toks[j:k], toks[k+1:]
		}
		if toks[k].Kind == TokenWord && toks[k].Text == kwIf {
			// Everything from the inner IF onward is its then-body.
			break
		}
	}
	return toks[j:], nil
}

func (p *parser) parseInlineBody(toks []Token) ([]Stmt, error) {
	if len(toks) == 0 {
		return nil, NewSyntaxError("EXPECTED_STATEMENT", 0, 0)
	}
	return p.parseLineBody(toks, 0)
}

func (p *parser) parseFor(toks []Token, j int) (Stmt, int, error) {
	tok := toks[j]
	if j+1 >= len(toks) || toks[j+1].Kind != TokenIdent || toks[j+1].Text[0] < 'A' || toks[j+1].Text[0] > 'Z' {
		return nil, j, NewSyntaxError("EXPECTED_VARIABLE", tok.Line, tok.Col)
	}
	loopVar := toks[j+1].Text[0]
	if j+2 >= len(toks) || toks[j+2].Kind != TokenEq {
		return nil, j, NewSyntaxError("EXPECTED_EQUALS", tok.Line, tok.Col)
	}
	start, next, err := parseExpression(toks, j+3)
	if err != nil {
		return nil, next, err
	}
	if next >= len(toks) || toks[next].Kind != TokenWord || toks[next].Text != kwTo {
		return nil, next, NewSyntaxError("EXPECTED_TO", tok.Line, tok.Col)
	}
	end, next, err := parseExpression(toks, next+1)
	if err != nil {
		return nil, next, err
	}
	var step Expr = &NumberLit{pos: pos{tok.Line, tok.Col}, Value: 1}
	if next < len(toks) && toks[next].Kind == TokenWord && toks[next].Text == kwStep {
		step, next, err = parseExpression(toks, next+1)
		if err != nil {
			return nil, next, err
		}
	}
	if next != len(toks) {
		return nil, next, NewSyntaxError("TRAILING_TOKENS", toks[next].Line, toks[next].Col)
	}
	body, _, err := p.collectBody(kwNext)
	if err != nil {
		return nil, next, err
	}
	stopToks := p.lines[p.cur]
	if len(stopToks) != 1 {
		return nil, next, NewSyntaxError("TRAILING_TOKENS", stopToks[1].Line, stopToks[1].Col)
	}
	st := &ForStmt{pos: pos{tok.Line, tok.Col}, Var: loopVar, Start: start, End: end, Step: step, Body: body}
	return st, len(toks), nil
}

func (p *parser) parseWhile(toks []Token, j int) (Stmt, int, error) {
	tok := toks[j]
	cond, next, err := parseExpression(toks, j+1)
	if err != nil {
		return nil, next, err
	}
	if next != len(toks) {
		return nil, next, NewSyntaxError("TRAILING_TOKENS", toks[next].Line, toks[next].Col)
	}
	body, _, err := p.collectBody(kwNext)
	if err != nil {
		return nil, next, err
	}
	stopToks := p.lines[p.cur]
	if len(stopToks) != 1 {
		return nil, next, NewSyntaxError("TRAILING_TOKENS", stopToks[1].Line, stopToks[1].Col)
	}
	return &WhileStmt{pos: pos{tok.Line, tok.Col}, Cond: cond, Body: body}, len(toks), nil
}

// collectBody gathers whole following lines into a block body until one of
// the terminator words opens a line. Nested blocks recurse through
// parseLineBody, so an inner terminator always closes its own block and
// never the caller's. On return p.cur rests on the terminator line.
func (p *parser) collectBody(terminators ...string) ([]Stmt, string, error) {
	openLine := 0
	if toks := p.lines[p.cur]; len(toks) > 0 {
		openLine = toks[0].Line
	}
	var body []Stmt
	for {
		p.cur++
		if p.cur >= len(p.lines) {
			return nil, "", NewSyntaxError("UNTERMINATED_BLOCK", openLine, 0)
		}
		toks := p.lines[p.cur]
		if len(toks) == 0 {
			continue
		}
		if toks[0].Kind == TokenLabel {
			return nil, "", NewSyntaxError("LABEL_IN_BLOCK", toks[0].Line, toks[0].Col).withDetail(toks[0].Text)
		}
		if toks[0].Kind == TokenWord {
			for _, term := range terminators {
				if toks[0].Text == term {
					return body, term, nil
				}
			}
		}
		stmts, err := p.parseLineBody(toks, 0)
		if err != nil {
			return nil, "", err
		}
		body = append(body, stmts...)
	}
}
