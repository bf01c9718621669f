// Command aw-firewall runs the credential-isolating reverse-proxy sidecar:
// one listener per upstream LLM provider, each injecting its own
// provider-scoped credential and stripping anything client-supplied.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/allaspectsdev/aw-firewall/internal/core"
	"github.com/allaspectsdev/aw-firewall/internal/version"
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "version" || os.Args[1] == "--version") {
		fmt.Println(version.String())
		return
	}

	if err := core.Run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
