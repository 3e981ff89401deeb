package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/toolhost/pkg/catalog"
	"github.com/harun/toolhost/pkg/tool"
)

func init() {
	catalog.Register(NewExample)
}

// ExampleArgs are the validated arguments of example.
type ExampleArgs struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// NewExample returns a template tool that repeats a message as numbered lines.
func NewExample() tool.Tool {
	return tool.New(tool.Descriptor{
		Name:        "example",
		Description: "Template tool that repeats a message as numbered lines",
		InputSchema: tool.ObjectSchema(map[string]tool.Property{
			"message": {Type: "string", Description: "Message to process", MinLength: tool.Int(1)},
			"count": {
				Type:        "integer",
				Description: "Number of repetitions",
				Minimum:     tool.Float(1),
				Maximum:     tool.Float(10),
				Default:     1,
			},
		}, "message"),
	}, tool.Strict(), runExample)
}

func runExample(ctx context.Context, args tool.Args) (*tool.Result, error) {
	in, err := tool.Bind[ExampleArgs](args)
	if err != nil {
		return nil, err
	}

	lines := make([]string, 0, in.Count)
	for i := 1; i <= in.Count; i++ {
		lines = append(lines, fmt.Sprintf("%d. %s", i, in.Message))
	}
	return tool.Textf("Result:\n%s", strings.Join(lines, "\n")), nil
}
