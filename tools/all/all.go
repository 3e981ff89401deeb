// Package all links every tool package into the binary. Importing it runs
// the init registration of the compiled-in tools and manifest kinds.
package all

import (
	_ "github.com/harun/toolhost/tools/builtin"
	_ "github.com/harun/toolhost/tools/graphql"
	_ "github.com/harun/toolhost/tools/mcpproxy"
)
