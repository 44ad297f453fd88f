// netburst -- educational network stress generator for private lab
// networks.
package main

import (
	"os"

	"github.com/routelab/netburst/cmd/netburst/commands"
)

func main() {
	os.Exit(commands.Execute())
}
