// allbeads aggregates beads across many git repositories into one
// federated graph, syncing shadow beads against JIRA and GitHub Issues.
package main

import (
	"os"

	"github.com/allbeads/allbeads/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
