/*
irobf is an IR-level code-obfuscation toolkit: a pipeline of transformation
passes — page-table indirection, control-flow flattening, constant
encryption, and Microsoft RTTI name scrambling — driven from a JSON
configuration file and per-function source annotations.
*/
package main

import (
	"github.com/arkari/irobf/cmd/irobf/cmd"
)

// main is the entry point of the application.
func main() {
	cmd.Execute()
}
