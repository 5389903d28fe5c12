// Package gridbasic implements the GridBASIC interpreter: a line-oriented,
// VTL-derived script language whose programs manipulate a shared numeric grid
// and a unified array/stack memory space, executed one statement per step.
package gridbasic

import (
	"errors"
	"fmt"
)

// Sentinel errors for runtime conditions the host may want to test with
// errors.Is.
var (
	ErrReturnWithoutGosub = errors.New("RETURN without GOSUB")
	ErrDivisionByZero     = errors.New("division by zero")
	ErrUndefinedLabel     = errors.New("undefined label")
	ErrDuplicateLabel     = errors.New("duplicate label")
	ErrNoProgramLoaded    = errors.New("no program loaded")
	ErrStringContext      = errors.New("string literal outside output statement")
)

// Error categories. Lexical, syntax and resolve errors are load-time and
// abort Load; runtime errors are returned from Step without unloading the
// program so a debugger can keep inspecting frozen state.
const (
	ErrCategoryLexical = "LEXICAL ERROR"
	ErrCategorySyntax  = "SYNTAX ERROR"
	ErrCategoryResolve = "RESOLVE ERROR"
	ErrCategoryRuntime = "RUNTIME ERROR"
)

// ScriptError is a located, categorized interpreter error.
type ScriptError struct {
	Category string
	Code     string // machine-readable code, key into friendlyTexts
	Detail   string // optional free text (offending character, label name)
	Line     int    // 1-based source line, 0 if unknown
	Col      int    // 1-based column, 0 if unknown
}

func (e *ScriptError) Error() string {
	msg := friendlyText(e.Category, e.Code)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	switch {
	case e.Line > 0 && e.Col > 0:
		return fmt.Sprintf("%s IN LINE %d, COL %d: %s", e.Category, e.Line, e.Col, msg)
	case e.Line > 0:
		return fmt.Sprintf("%s IN LINE %d: %s", e.Category, e.Line, msg)
	default:
		return e.Category + ": " + msg
	}
}

// Unwrap maps well-known codes back to their sentinel errors.
func (e *ScriptError) Unwrap() error {
	switch e.Code {
	case "RETURN_WITHOUT_GOSUB":
		return ErrReturnWithoutGosub
	case "DIVISION_BY_ZERO":
		return ErrDivisionByZero
	case "UNDEFINED_LABEL":
		return ErrUndefinedLabel
	case "DUPLICATE_LABEL":
		return ErrDuplicateLabel
	case "STRING_CONTEXT":
		return ErrStringContext
	}
	return nil
}

// NewLexicalError reports an unrecognized character.
func NewLexicalError(char string, line, col int) *ScriptError {
	return &ScriptError{
		Category: ErrCategoryLexical,
		Code:     "UNEXPECTED_CHARACTER",
		Detail:   fmt.Sprintf("%q", char),
		Line:     line,
		Col:      col,
	}
}

// NewSyntaxError reports a structural or expression parse failure.
func NewSyntaxError(code string, line, col int) *ScriptError {
	return &ScriptError{Category: ErrCategorySyntax, Code: code, Line: line, Col: col}
}

// NewResolveError reports a label table failure.
func NewResolveError(code, label string, line int) *ScriptError {
	return &ScriptError{Category: ErrCategoryResolve, Code: code, Detail: label, Line: line}
}

// NewRuntimeError reports a failure during Step.
func NewRuntimeError(code string, line int) *ScriptError {
	return &ScriptError{Category: ErrCategoryRuntime, Code: code, Line: line}
}

func (e *ScriptError) withDetail(detail string) *ScriptError {
	e.Detail = detail
	return e
}

// friendlyTexts maps error codes to user-facing messages, per category.
var friendlyTexts = map[string]map[string]string{
	ErrCategoryLexical: {
		"UNEXPECTED_CHARACTER": "UNEXPECTED CHARACTER",
	},
	ErrCategorySyntax: {
		"MISSING_QUOTES":           "STRING LITERAL REQUIRES CLOSING QUOTE",
		"MISSING_PARENTHESIS":      "MISSING CLOSING PARENTHESIS",
		"EXPECTED_EXPRESSION":      "EXPRESSION EXPECTED",
		"EXPECTED_VARIABLE":        "VARIABLE NAME EXPECTED",
		"EXPECTED_EQUALS":          "EQUALS SIGN (=) EXPECTED",
		"EXPECTED_TO":              "TO KEYWORD EXPECTED IN FOR HEADER",
		"EXPECTED_LABEL":           "LABEL NAME EXPECTED",
		"EXPECTED_STATEMENT":       "STATEMENT EXPECTED",
		"UNEXPECTED_TOKEN":         "UNEXPECTED TOKEN",
		"TRAILING_TOKENS":          "UNEXPECTED TOKENS AT END OF LINE",
		"UNTERMINATED_BLOCK":       "BLOCK NOT TERMINATED BEFORE END OF PROGRAM",
		"ELSE_AFTER_ELSE":          "ELSE OR ELSEIF AFTER ELSE",
		"DANGLING_END_MARKER":      "END MARKER WITHOUT OPEN BLOCK",
		"LABEL_IN_BLOCK":           "LABEL NOT ALLOWED INSIDE A BLOCK BODY",
		"ASSIGN_SYSTEM_VARIABLE":   "CANNOT ASSIGN TO SYSTEM VARIABLE",
		"STRING_CONTEXT":           "STRING LITERAL ONLY ALLOWED IN OUTPUT STATEMENT",
		"INVALID_MEMORY_ARGUMENTS": "MEMORY ACCESS TAKES 1, 2 OR 4 ARGUMENTS",
		"INVALID_NUMBER":           "INVALID NUMBER",
	},
	ErrCategoryResolve: {
		"UNDEFINED_LABEL": "LABEL REFERENCED BUT NEVER DEFINED",
		"DUPLICATE_LABEL": "LABEL DEFINED MORE THAN ONCE",
	},
	ErrCategoryRuntime: {
		"RETURN_WITHOUT_GOSUB": "RETURN STATEMENT WITHOUT A CORRESPONDING GOSUB",
		"DIVISION_BY_ZERO":     "DIVISION BY ZERO",
		"UNDEFINED_LABEL":      "JUMP TARGET NOT RESOLVED",
		"STRING_CONTEXT":       "STRING VALUE IN NUMERIC CONTEXT",
		"NO_PROGRAM":           "NO PROGRAM LOADED",
	},
}

func friendlyText(category, code string) string {
	if byCode, ok := friendlyTexts[category]; ok {
		if text, ok := byCode[code]; ok {
			return text
		}
	}
	return code
}
