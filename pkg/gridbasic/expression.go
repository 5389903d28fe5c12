package gridbasic

// Operator-precedence descent over a token slice. Every parse function takes
// the index of the first token to consume and returns the parsed node plus
// the first unconsumed index. There is no error recovery: the earliest
// failure wins.

// parseExpression parses the longest valid expression starting at i.
// Precedence, tightest first: unary - !, then * /, then + -, then
// comparisons, then logical & |. All binary levels are strictly
// left-associative.
func parseExpression(toks []Token, i int) (Expr, int, error) {
	return parseLogical(toks, i)
}

func parseLogical(toks []Token, i int) (Expr, int, error) {
	left, i, err := parseComparison(toks, i)
	if err != nil {
		return nil, i, err
	}
	for i < len(toks) {
		op := toks[i].Kind
		if op != TokenAmp && op != TokenPipe {
			break
		}
		opTok := toks[i]
		right, next, err := parseComparison(toks, i+1)
		if err != nil {
			return nil, next, err
		}
		left = &BinaryExpr{pos: pos{opTok.Line, opTok.Col}, Op: op, X: left, Y: right}
		i = next
	}
	return left, i, nil
}

func parseComparison(toks []Token, i int) (Expr, int, error) {
	left, i, err := parseAdditive(toks, i)
	if err != nil {
		return nil, i, err
	}
	for i < len(toks) {
		op := toks[i].Kind
		switch op {
		case TokenEq, TokenLt, TokenGt, TokenLe, TokenGe, TokenNe:
		default:
			return left, i, nil
		}
		opTok := toks[i]
		right, next, err := parseAdditive(toks, i+1)
		if err != nil {
			return nil, next, err
		}
		left = &BinaryExpr{pos: pos{opTok.Line, opTok.Col}, Op: op, X: left, Y: right}
		i = next
	}
	return left, i, nil
}

func parseAdditive(toks []Token, i int) (Expr, int, error) {
	left, i, err := parseMultiplicative(toks, i)
	if err != nil {
		return nil, i, err
	}
	for i < len(toks) {
		op := toks[i].Kind
		if op != TokenPlus && op != TokenMinus {
			break
		}
		opTok := toks[i]
		right, next, err := parseMultiplicative(toks, i+1)
		if err != nil {
			return nil, next, err
		}
		left = &BinaryExpr{pos: pos{opTok.Line, opTok.Col}, Op: op, X: left, Y: right}
		i = next
	}
	return left, i, nil
}

func parseMultiplicative(toks []Token, i int) (Expr, int, error) {
	left, i, err := parseUnary(toks, i)
	if err != nil {
		return nil, i, err
	}
	for i < len(toks) {
		op := toks[i].Kind
		if op != TokenStar && op != TokenSlash {
			break
		}
		opTok := toks[i]
		right, next, err := parseUnary(toks, i+1)
		if err != nil {
			return nil, next, err
		}
		left = &BinaryExpr{pos: pos{opTok.Line, opTok.Col}, Op: op, X: left, Y: right}
		i = next
	}
	return left, i, nil
}

func parseUnary(toks []Token, i int) (Expr, int, error) {
	if i < len(toks) && (toks[i].Kind == TokenMinus || toks[i].Kind == TokenBang) {
		opTok := toks[i]
		x, next, err := parseUnary(toks, i+1)
		if err != nil {
			return nil, next, err
		}
		return &UnaryExpr{pos: pos{opTok.Line, opTok.Col}, Op: opTok.Kind, X: x}, next, nil
	}
	return parsePrimary(toks, i)
}

func parsePrimary(toks []Token, i int) (Expr, int, error) {
	if i >= len(toks) {
		return nil, i, expectedExprError(toks, i)
	}
	tok := toks[i]
	switch tok.Kind {
	case TokenNumber:
		v, err := parseNumberLiteral(tok)
		if err != nil {
			return nil, i, err
		}
		return &NumberLit{pos: pos{tok.Line, tok.Col}, Value: v}, i + 1, nil

	case TokenIdent:
		return &VarRef{pos: pos{tok.Line, tok.Col}, Name: tok.Text[0]}, i + 1, nil

	case TokenString:
		// Strings are confined to output statements; the print parser
		// intercepts them before ever reaching here.
		return nil, i, NewSyntaxError("STRING_CONTEXT", tok.Line, tok.Col)

	case TokenLParen:
		inner, next, err := parseExpression(toks, i+1)
		if err != nil {
			return nil, next, err
		}
		if next >= len(toks) || toks[next].Kind != TokenRParen {
			return nil, next, NewSyntaxError("MISSING_PARENTHESIS", tok.Line, tok.Col)
		}
		return inner, next + 1, nil

	case TokenAt:
		return parseMemoryExpr(toks, i)

	default:
		return nil, i, expectedExprError(toks, i)
	}
}

// parseMemoryExpr parses the @ primaries: @(i) array read, @(-1) stack pop,
// @(x, y) grid read, @(x, y, expected, new) compare-and-swap.
func parseMemoryExpr(toks []Token, i int) (Expr, int, error) {
	at := toks[i]
	p := pos{at.Line, at.Col}
	args, next, err := parseMemoryArgs(toks, i)
	if err != nil {
		return nil, next, err
	}
	switch len(args) {
	case 1:
		if isStackIndex(args[0]) {
			return &PeekExpr{pos: p, Stack: true}, next, nil
		}
		return &PeekExpr{pos: p, Index: args[0]}, next, nil
	case 2:
		return &GridReadExpr{pos: p, X: args[0], Y: args[1]}, next, nil
	case 4:
		return &CASExpr{pos: p, X: args[0], Y: args[1], Expected: args[2], New: args[3]}, next, nil
	default:
		return nil, next, NewSyntaxError("INVALID_MEMORY_ARGUMENTS", at.Line, at.Col)
	}
}

// parseMemoryArgs consumes "@ ( expr [, expr]... )" and returns the argument
// list plus the index after the closing parenthesis.
func parseMemoryArgs(toks []Token, i int) ([]Expr, int, error) {
	at := toks[i]
	i++
	if i >= len(toks) || toks[i].Kind != TokenLParen {
		return nil, i, NewSyntaxError("UNEXPECTED_TOKEN", at.Line, at.Col).withDetail("@ requires (")
	}
	i++
	var args []Expr
	for {
		arg, next, err := parseExpression(toks, i)
		if err != nil {
			return nil, next, err
		}
		args = append(args, arg)
		i = next
		if i < len(toks) && toks[i].Kind == TokenComma {
			i++
			continue
		}
		break
	}
	if i >= len(toks) || toks[i].Kind != TokenRParen {
		return nil, i, NewSyntaxError("MISSING_PARENTHESIS", at.Line, at.Col)
	}
	return args, i + 1, nil
}

// isStackIndex recognizes the single literal -1 and nothing else. A variable
// holding -1, or an expression computing it, selects array semantics: the
// distinction is syntactic by design.
func isStackIndex(e Expr) bool {
	u, ok := e.(*UnaryExpr)
	if !ok || u.Op != TokenMinus {
		return false
	}
	n, ok := u.X.(*NumberLit)
	return ok && n.Value == 1
}

func parseNumberLiteral(tok Token) (int16, error) {
	v := 0
	for _, ch := range tok.Text {
		v = v*10 + int(ch-'0')
		if v > 32767 {
			// Wrap like every other arithmetic path instead of failing:
			// literals are int16 by definition.
			v %= 65536
		}
	}
	return int16(v), nil
}

func expectedExprError(toks []Token, i int) *ScriptError {
	if i < len(toks) {
		return NewSyntaxError("EXPECTED_EXPRESSION", toks[i].Line, toks[i].Col)
	}
	line := 0
	if len(toks) > 0 {
		line = toks[len(toks)-1].Line
	}
	return NewSyntaxError("EXPECTED_EXPRESSION", line, 0)
}
