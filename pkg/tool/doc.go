// Package tool defines the contract every hosted tool satisfies and the single
// call path that enforces validate-then-execute ordering.
//
// Invariants:
//   - Arguments are validated before Execute runs; Execute never sees a
//     partially validated argument set.
//   - Call returns either a *Result or a *Error, never both.
//   - A *Error produced anywhere below Call is passed through unchanged.
//
// Usage:
//
//	echo := tool.New(tool.Descriptor{
//		Name:        "echo",
//		Description: "Echo input",
//		InputSchema: tool.ObjectSchema(map[string]tool.Property{
//			"message": {Type: "string", Description: "text to echo"},
//		}, "message"),
//	}, tool.Structural(), func(ctx context.Context, args tool.Args) (*tool.Result, error) {
//		return tool.Text(args.String("message")), nil
//	})
//	res, err := tool.Call(ctx, echo, map[string]any{"message": "hi"})
package tool
