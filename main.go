package main

import (
	"os"

	"slicelab/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
