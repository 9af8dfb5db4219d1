package spreadsheet

import (
	"fmt"
	"strconv"
	"strings"
)

// NodePosition is the rune span of a node in the expression. Nodes embed
// it to satisfy ASTNode.GetPosition.
type NodePosition struct {
	Start int
	End   int
}

func (p NodePosition) GetPosition() NodePosition { return p }

// ASTNode is one node of a parsed formula. Eval returns an error only for
// failures that abort the whole formula (an unresolvable reference);
// everything else comes back as an error Value.
type ASTNode interface {
	Eval(ctx *EvalContext) (Value, error)
	GetPosition() NodePosition
	ToString() string
}

// Parser parses tokens into an AST
type Parser struct {
	tokens []Token
	pos    int
}

// StringNode represents a string literal
type StringNode struct {
	Value string
	NodePosition
}

func (n *StringNode) Eval(*EvalContext) (Value, error) {
	return NewText(n.Value), nil
}

func (n *StringNode) ToString() string {
	return `"` + strings.ReplaceAll(n.Value, `"`, `""`) + `"`
}

// NumberNode represents a numeric literal
type NumberNode struct {
	Value float64
	NodePosition
}

func (n *NumberNode) Eval(*EvalContext) (Value, error) {
	return NewNumber(n.Value), nil
}

func (n *NumberNode) ToString() string {
	return formatNumber(n.Value)
}

// BooleanNode represents a boolean literal
type BooleanNode struct {
	Value bool
	NodePosition
}

func (n *BooleanNode) Eval(*EvalContext) (Value, error) {
	return NewBoolean(n.Value), nil
}

func (n *BooleanNode) ToString() string {
	if n.Value {
		return "TRUE"
	}
	return "FALSE"
}

// CellRefNode is a single-cell reference. A label that does not resolve
// (row 0, absurd column) keeps its error until evaluation so references
// read earlier in the formula are still recorded.
type CellRefNode struct {
	Label string
	Coord Coordinate
	err   error
	NodePosition
}

func (n *CellRefNode) Eval(ctx *EvalContext) (Value, error) {
	if n.err != nil {
		return EmptyValue, n.err
	}
	return ctx.Read(n.Coord)
}

func (n *CellRefNode) ToString() string {
	if n.err != nil {
		return strings.ToUpper(n.Label)
	}
	return CoordinateToLabel(n.Coord)
}

// RangeNode represents a rectangular range like A1:B3
type RangeNode struct {
	Label string
	Cells CellRange
	err   error
	NodePosition
}

// Eval handles a range used where a single value is expected.
func (n *RangeNode) Eval(*EvalContext) (Value, error) {
	if n.err != nil {
		return EmptyValue, n.err
	}
	return errorValue(ErrorCodeValue, fmt.Sprintf("range %s used as a single value", n.Cells)), nil
}

// EvalRange reads every cell of the range, recording each as a dependency.
func (n *RangeNode) EvalRange(ctx *EvalContext) (Range, error) {
	if n.err != nil {
		return nil, n.err
	}
	return ctx.ReadRange(n.Cells)
}

func (n *RangeNode) ToString() string {
	if n.err != nil {
		return strings.ToUpper(n.Label)
	}
	return n.Cells.String()
}

// NameNode is a bare identifier. Named ranges are not supported so it
// always evaluates to #NAME?.
type NameNode struct {
	Name string
	NodePosition
}

func (n *NameNode) Eval(*EvalContext) (Value, error) {
	return errorValue(ErrorCodeName, fmt.Sprintf("unknown name '%s'", n.Name)), nil
}

func (n *NameNode) ToString() string {
	return n.Name
}

// BinaryOpNode represents a binary operation
type BinaryOpNode struct {
	Op    BinaryOp
	Left  ASTNode
	Right ASTNode
	NodePosition
}

func (n *BinaryOpNode) Eval(ctx *EvalContext) (Value, error) {
	left, err := n.Left.Eval(ctx)
	if err != nil {
		return EmptyValue, err
	}
	right, err := n.Right.Eval(ctx)
	if err != nil {
		return EmptyValue, err
	}

	// propagate errors, left first
	if left.IsError() {
		return left, nil
	}
	if right.IsError() {
		return right, nil
	}

	switch n.Op {
	case BinOpAdd, BinOpSubtract, BinOpMultiply, BinOpDivide, BinOpPower:
		return arithmetic(n.Op, left, right), nil
	case BinOpConcat:
		return NewText(toString(left) + toString(right)), nil
	}

	cmp := compareValues(left, right)
	switch n.Op {
	case BinOpEqual:
		return NewBoolean(cmp == 0), nil
	case BinOpNotEqual:
		return NewBoolean(cmp != 0), nil
	case BinOpLess:
		return NewBoolean(cmp < 0), nil
	case BinOpLessEqual:
		return NewBoolean(cmp <= 0), nil
	case BinOpGreater:
		return NewBoolean(cmp > 0), nil
	case BinOpGreaterEqual:
		return NewBoolean(cmp >= 0), nil
	default:
		return errorValue(ErrorCodeValue, "unknown operator"), nil
	}
}

var binaryOpSymbols = map[BinaryOp]string{
	BinOpAdd:          "+",
	BinOpSubtract:     "-",
	BinOpMultiply:     "*",
	BinOpDivide:       "/",
	BinOpPower:        "^",
	BinOpConcat:       "&",
	BinOpEqual:        "=",
	BinOpNotEqual:     "<>",
	BinOpLess:         "<",
	BinOpLessEqual:    "<=",
	BinOpGreater:      ">",
	BinOpGreaterEqual: ">=",
}

func (n *BinaryOpNode) ToString() string {
	return fmt.Sprintf("(%s%s%s)", n.Left.ToString(), binaryOpSymbols[n.Op], n.Right.ToString())
}

// UnaryOpNode represents a unary operation
type UnaryOpNode struct {
	Op      UnaryOp
	Operand ASTNode
	NodePosition
}

func (n *UnaryOpNode) Eval(ctx *EvalContext) (Value, error) {
	val, err := n.Operand.Eval(ctx)
	if err != nil {
		return EmptyValue, err
	}
	if val.IsError() {
		return val, nil
	}

	num, ok := toNumber(val)
	if !ok {
		return errorValue(ErrorCodeValue, fmt.Sprintf("'%s' is not a number", toString(val))), nil
	}

	switch n.Op {
	case UnaryOpPlus:
		return finalize(NewNumber(num)), nil
	case UnaryOpMinus:
		return finalize(NewNumber(-num)), nil
	case UnaryOpPercent:
		return finalize(NewNumber(num / 100.0)), nil
	default:
		return errorValue(ErrorCodeValue, "unknown unary operator"), nil
	}
}

func (n *UnaryOpNode) ToString() string {
	switch n.Op {
	case UnaryOpPlus:
		return "+" + n.Operand.ToString()
	case UnaryOpMinus:
		return "-" + n.Operand.ToString()
	default:
		return fmt.Sprintf("(%s%%)", n.Operand.ToString())
	}
}

// FunctionCallNode represents a function call
type FunctionCallNode struct {
	Name string
	Args []ASTNode
	NodePosition
}

func (n *FunctionCallNode) Eval(ctx *EvalContext) (Value, error) {
	args := make([]Arg, len(n.Args))
	for i, argNode := range n.Args {
		if rangeNode, ok := argNode.(*RangeNode); ok {
			r, err := rangeNode.EvalRange(ctx)
			if err != nil {
				return EmptyValue, err
			}
			args[i] = Arg{Range: r}
			continue
		}
		v, err := argNode.Eval(ctx)
		if err != nil {
			return EmptyValue, err
		}
		args[i] = Arg{Value: v}
	}

	result, err := ctx.functions.Call(n.Name, args...)
	if err != nil {
		if spreadsheetErr, ok := err.(*SpreadsheetError); ok {
			return NewErrorValue(spreadsheetErr), nil
		}
		return errorValue(ErrorCodeValue, err.Error()), nil
	}
	return finalize(result), nil
}

func (n *FunctionCallNode) ToString() string {
	args := make([]string, len(n.Args))
	for i, arg := range n.Args {
		args[i] = arg.ToString()
	}
	return fmt.Sprintf("%s(%s)", n.Name, strings.Join(args, ","))
}

// ParseFormula tokenizes and parses a formula expression (without the
// leading '='). Failures are *SpreadsheetError values with ErrorCodeSyntax.
func ParseFormula(expression string) (ASTNode, error) {
	tokens, err := NewLexer(expression).Tokenize()
	if err != nil {
		return nil, err
	}
	return NewParser(tokens).Parse()
}

// NewParser creates a new parser with the given tokens
func NewParser(tokens []Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse parses the tokens into an AST
func (p *Parser) Parse() (ASTNode, error) {
	if len(p.tokens) == 0 || p.tokens[0].Type == TokenEOF {
		return nil, NewSpreadsheetError(ErrorCodeSyntax, "empty formula")
	}

	node, err := p.parseComparison()
	if err != nil {
		return nil, err
	}

	if tok := p.peek(); tok.Type != TokenEOF {
		return nil, p.errorf(tok, "unexpected token after expression: %s", tok.Value)
	}
	return node, nil
}

// peek returns the current token; past the end it is always EOF.
func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) errorf(tok Token, format string, args ...any) *SpreadsheetError {
	return syntaxError(tok.Pos, fmt.Sprintf(format, args...))
}

func joinPosition(left, right ASTNode) NodePosition {
	return NodePosition{Start: left.GetPosition().Start, End: right.GetPosition().End}
}

// parseBinaryLevel parses a left-associative chain of the operators in ops,
// with operands produced by next.
func (p *Parser) parseBinaryLevel(ops map[string]BinaryOp, next func() (ASTNode, error)) (ASTNode, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.peek()
		if tok.Type != TokenBinaryOp {
			return left, nil
		}
		op, ok := ops[tok.Value]
		if !ok {
			return left, nil
		}
		p.pos++

		right, err := next()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Op: op, Left: left, Right: right, NodePosition: joinPosition(left, right)}
	}
}

var (
	comparisonOps = map[string]BinaryOp{
		"=":  BinOpEqual,
		"<>": BinOpNotEqual,
		"!=": BinOpNotEqual,
		"<":  BinOpLess,
		"<=": BinOpLessEqual,
		">":  BinOpGreater,
		">=": BinOpGreaterEqual,
	}
	concatOps         = map[string]BinaryOp{"&": BinOpConcat}
	additiveOps       = map[string]BinaryOp{"+": BinOpAdd, "-": BinOpSubtract}
	multiplicativeOps = map[string]BinaryOp{"*": BinOpMultiply, "/": BinOpDivide}
)

// parseComparison handles comparison operators (lowest precedence)
func (p *Parser) parseComparison() (ASTNode, error) {
	return p.parseBinaryLevel(comparisonOps, p.parseConcatenation)
}

func (p *Parser) parseConcatenation() (ASTNode, error) {
	return p.parseBinaryLevel(concatOps, p.parseAddition)
}

func (p *Parser) parseAddition() (ASTNode, error) {
	return p.parseBinaryLevel(additiveOps, p.parseMultiplication)
}

func (p *Parser) parseMultiplication() (ASTNode, error) {
	return p.parseBinaryLevel(multiplicativeOps, p.parsePower)
}

// parsePower handles exponentiation, which is right-associative
func (p *Parser) parsePower() (ASTNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	if tok := p.peek(); tok.Type == TokenBinaryOp && tok.Value == "^" {
		p.pos++
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		return &BinaryOpNode{Op: BinOpPower, Left: left, Right: right, NodePosition: joinPosition(left, right)}, nil
	}

	return left, nil
}

// parseUnary handles prefix + and -, which may be chained
func (p *Parser) parseUnary() (ASTNode, error) {
	tok := p.peek()
	if tok.Type != TokenUnaryPrefixOp {
		return p.parsePostfix()
	}

	op := UnaryOpPlus
	if tok.Value == "-" {
		op = UnaryOpMinus
	}
	p.pos++

	operand, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &UnaryOpNode{
		Op:           op,
		Operand:      operand,
		NodePosition: NodePosition{Start: tok.Pos, End: operand.GetPosition().End},
	}, nil
}

// parsePostfix handles one or more trailing percent signs
func (p *Parser) parsePostfix() (ASTNode, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for tok := p.peek(); tok.Type == TokenUnaryPostfixOp; tok = p.peek() {
		p.pos++
		node = &UnaryOpNode{
			Op:           UnaryOpPercent,
			Operand:      node,
			NodePosition: NodePosition{Start: node.GetPosition().Start, End: tok.Pos + 1},
		}
	}
	return node, nil
}

// parsePrimary handles literals, references, function calls and
// parenthesized expressions
func (p *Parser) parsePrimary() (ASTNode, error) {
	tok := p.peek()
	position := NodePosition{Start: tok.Pos, End: tok.Pos + len([]rune(tok.Value))}

	switch tok.Type {
	case TokenNumber:
		p.pos++
		val, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, p.errorf(tok, "invalid number: %s", tok.Value)
		}
		return &NumberNode{Value: val, NodePosition: position}, nil

	case TokenString:
		p.pos++
		return &StringNode{Value: tok.Value, NodePosition: position}, nil

	case TokenBoolean:
		p.pos++
		return &BooleanNode{Value: tok.Value == "TRUE", NodePosition: position}, nil

	case TokenCell:
		p.pos++
		coord, err := LabelToCoordinate(tok.Value)
		return &CellRefNode{Label: tok.Value, Coord: coord, err: err, NodePosition: position}, nil

	case TokenRange:
		p.pos++
		return p.parseRange(tok, position), nil

	case TokenIdentifier:
		p.pos++
		return &NameNode{Name: tok.Value, NodePosition: position}, nil

	case TokenFunction:
		return p.parseFunctionCall()

	case TokenLeftParen:
		p.pos++
		node, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		if closing := p.peek(); closing.Type != TokenRightParen {
			return nil, p.errorf(closing, "expected closing parenthesis")
		}
		p.pos++
		return node, nil

	case TokenEOF:
		return nil, p.errorf(tok, "unexpected end of expression")

	default:
		return nil, p.errorf(tok, "unexpected token: %s", tok.Value)
	}
}

// parseRange resolves both corners of a START:END token.
func (p *Parser) parseRange(tok Token, position NodePosition) *RangeNode {
	node := &RangeNode{Label: tok.Value, NodePosition: position}

	startLabel, endLabel, _ := strings.Cut(tok.Value, ":")
	start, err := LabelToCoordinate(startLabel)
	if err != nil {
		node.err = err
		return node
	}
	end, err := LabelToCoordinate(endLabel)
	if err != nil {
		node.err = err
		return node
	}
	node.Cells = newCellRange(start, end)
	return node
}

// parseFunctionCall parses NAME(arg, arg, ...)
func (p *Parser) parseFunctionCall() (ASTNode, error) {
	funcTok := p.peek()
	p.pos++

	if tok := p.peek(); tok.Type != TokenLeftParen {
		return nil, p.errorf(tok, "expected '(' after function name")
	}
	p.pos++

	args := []ASTNode{}
	if tok := p.peek(); tok.Type == TokenRightParen {
		p.pos++
		return &FunctionCallNode{
			Name:         funcTok.Value,
			Args:         args,
			NodePosition: NodePosition{Start: funcTok.Pos, End: tok.Pos + 1},
		}, nil
	}

	for {
		arg, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		tok := p.peek()
		switch tok.Type {
		case TokenRightParen:
			p.pos++
			return &FunctionCallNode{
				Name:         funcTok.Value,
				Args:         args,
				NodePosition: NodePosition{Start: funcTok.Pos, End: tok.Pos + 1},
			}, nil
		case TokenComma:
			p.pos++
		default:
			return nil, p.errorf(tok, "expected ',' or ')' in function arguments")
		}
	}
}
