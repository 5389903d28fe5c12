package gridbasic

// eval reduces an expression to an int16. Arithmetic wraps silently in
// 16-bit two's complement; only division by zero is an error. Memory reads,
// stack pops, input reads and compare-and-swap all happen here, so
// expressions are pure with respect to control flow but not to memory.
func (it *Interpreter) eval(e Expr) (int16, error) {
	switch x := e.(type) {
	case *NumberLit:
		return x.Value, nil

	case *StringLit:
		line, _ := x.Pos()
		return 0, NewRuntimeError("STRING_CONTEXT", line)

	case *VarRef:
		return it.readVar(x.Name), nil

	case *UnaryExpr:
		v, err := it.eval(x.X)
		if err != nil {
			return 0, err
		}
		if x.Op == TokenMinus {
			return -v, nil
		}
		// Logical not: 0 -> 1, non-zero -> 0.
		if v == 0 {
			return 1, nil
		}
		return 0, nil

	case *BinaryExpr:
		return it.evalBinary(x)

	case *PeekExpr:
		if x.Stack {
			return it.host.Pop(), nil
		}
		idx, err := it.eval(x.Index)
		if err != nil {
			return 0, err
		}
		return it.host.ReadCell(int(idx)), nil

	case *GridReadExpr:
		gx, err := it.eval(x.X)
		if err != nil {
			return 0, err
		}
		gy, err := it.eval(x.Y)
		if err != nil {
			return 0, err
		}
		return it.host.GridRead(int(gx), int(gy)), nil

	case *CASExpr:
		gx, err := it.eval(x.X)
		if err != nil {
			return 0, err
		}
		gy, err := it.eval(x.Y)
		if err != nil {
			return 0, err
		}
		expected, err := it.eval(x.Expected)
		if err != nil {
			return 0, err
		}
		value, err := it.eval(x.New)
		if err != nil {
			return 0, err
		}
		if it.host.GridCAS(int(gx), int(gy), expected, value) {
			return 1, nil
		}
		return 0, nil
	}
	return 0, NewRuntimeError("NO_PROGRAM", it.curLine).withDetail("unhandled expression")
}

func (it *Interpreter) evalBinary(x *BinaryExpr) (int16, error) {
	a, err := it.eval(x.X)
	if err != nil {
		return 0, err
	}
	b, err := it.eval(x.Y)
	if err != nil {
		return 0, err
	}
	switch x.Op {
	case TokenPlus:
		return a + b, nil
	case TokenMinus:
		return a - b, nil
	case TokenStar:
		return a * b, nil
	case TokenSlash:
		if b == 0 {
			line, _ := x.Pos()
			return 0, NewRuntimeError("DIVISION_BY_ZERO", line)
		}
		return a / b, nil
	case TokenEq:
		return bool16(a == b), nil
	case TokenNe:
		return bool16(a != b), nil
	case TokenLt:
		return bool16(a < b), nil
	case TokenGt:
		return bool16(a > b), nil
	case TokenLe:
		return bool16(a <= b), nil
	case TokenGe:
		return bool16(a >= b), nil
	case TokenAmp:
		return bool16(a != 0 && b != 0), nil
	case TokenPipe:
		return bool16(a != 0 || b != 0), nil
	}
	line, _ := x.Pos()
	return 0, NewRuntimeError("NO_PROGRAM", line).withDetail("unhandled operator")
}

// readVar resolves letter variables and the system variable symbols. All
// variables default to 0 when first read.
func (it *Interpreter) readVar(name byte) int16 {
	if name >= 'A' && name <= 'Z' {
		return it.vars[name-'A']
	}
	switch rune(name) {
	case SysCurrentLine:
		return int16(it.curLine)
	case SysCallerLine:
		if n := len(it.gosub); n > 0 {
			return int16(it.gosub[n-1].callerLine)
		}
		return 0
	case SysRandom:
		return int16(it.rng.Intn(32768))
	case SysInputCode:
		return it.host.ReadInputCode()
	case SysGridX:
		return it.gridX
	case SysGridY:
		return it.gridY
	}
	return 0
}

func bool16(b bool) int16 {
	if b {
		return 1
	}
	return 0
}
