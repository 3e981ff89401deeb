package builtin

import (
	"context"
	"fmt"
	"strconv"

	"github.com/harun/toolhost/pkg/catalog"
	"github.com/harun/toolhost/pkg/tool"
)

func init() {
	catalog.Register(NewCalculate)
}

// Operation is an arithmetic operation supported by calculate.
type Operation string

const (
	OpAdd      Operation = "add"
	OpSubtract Operation = "subtract"
	OpMultiply Operation = "multiply"
	OpDivide   Operation = "divide"
)

var operators = map[Operation]string{
	OpAdd:      "+",
	OpSubtract: "-",
	OpMultiply: "*",
	OpDivide:   "/",
}

// CalculateArgs are the validated arguments of calculate.
type CalculateArgs struct {
	Operation Operation `json:"operation"`
	A         float64   `json:"a"`
	B         float64   `json:"b"`
}

// CalculationResult is the JSON body calculate returns.
type CalculationResult struct {
	Operation  Operation `json:"operation"`
	OperandA   float64   `json:"operandA"`
	OperandB   float64   `json:"operandB"`
	Result     float64   `json:"result"`
	Expression string    `json:"expression"`
}

// Calculate performs basic arithmetic on two numbers.
type Calculate struct {
	validator *tool.StrictValidator
}

// NewCalculate returns the calculate tool.
func NewCalculate() tool.Tool {
	return &Calculate{validator: tool.Strict(noDivisionByZero)}
}

func (c *Calculate) Definition() tool.Descriptor {
	return tool.Descriptor{
		Name:        "calculate",
		Description: "Performs basic arithmetic on two numbers",
		InputSchema: tool.ObjectSchema(map[string]tool.Property{
			"operation": {
				Type:        "string",
				Description: "Operation to perform",
				Enum:        []any{string(OpAdd), string(OpSubtract), string(OpMultiply), string(OpDivide)},
			},
			"a": {Type: "number", Description: "First operand"},
			"b": {Type: "number", Description: "Second operand"},
		}, "operation", "a", "b"),
	}
}

func (c *Calculate) Validator() tool.Validator { return c.validator }

func noDivisionByZero(args tool.Args) []tool.Violation {
	b, _ := args.Float("b")
	if Operation(args.String("operation")) == OpDivide && b == 0 {
		return []tool.Violation{{Path: "b", Reason: "cannot divide by zero"}}
	}
	return nil
}

func (c *Calculate) Execute(ctx context.Context, args tool.Args) (*tool.Result, error) {
	in, err := tool.Bind[CalculateArgs](args)
	if err != nil {
		return nil, err
	}

	var result float64
	switch in.Operation {
	case OpAdd:
		result = in.A + in.B
	case OpSubtract:
		result = in.A - in.B
	case OpMultiply:
		result = in.A * in.B
	case OpDivide:
		result = in.A / in.B
	default:
		return nil, fmt.Errorf("unsupported operation %q", in.Operation)
	}

	return tool.JSON(CalculationResult{
		Operation:  in.Operation,
		OperandA:   in.A,
		OperandB:   in.B,
		Result:     result,
		Expression: fmt.Sprintf("%s %s %s = %s", formatNumber(in.A), operators[in.Operation], formatNumber(in.B), formatNumber(result)),
	})
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
