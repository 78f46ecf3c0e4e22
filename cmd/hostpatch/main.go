// hostpatch instruments a host application so its actions raise cancellable
// events, runs Lua plugins against them and audits what they change.
package main

import "github.com/ppiankov/hostpatch/internal/cli"

func main() {
	cli.Execute()
}
