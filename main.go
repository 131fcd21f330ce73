// The main package for the caselaw-crawler executable.
package main

import "github.com/mpelletier/caselaw-crawler/cmd"

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
