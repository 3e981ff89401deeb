package builtin

import (
	"context"

	"github.com/harun/toolhost/pkg/catalog"
	"github.com/harun/toolhost/pkg/tool"
)

func init() {
	catalog.Register(NewEcho)
}

// Echo returns its message. It uses the structural validator.
type Echo struct{}

// NewEcho returns the echo tool.
func NewEcho() tool.Tool { return Echo{} }

func (Echo) Definition() tool.Descriptor {
	return tool.Descriptor{
		Name:        "echo",
		Description: "Echoes the given message back",
		InputSchema: tool.ObjectSchema(map[string]tool.Property{
			"message": {Type: "string", Description: "Message to echo"},
		}, "message"),
	}
}

func (Echo) Validator() tool.Validator { return tool.Structural() }

func (Echo) Execute(ctx context.Context, args tool.Args) (*tool.Result, error) {
	return tool.Textf("Echo: %s", args.String("message")), nil
}
