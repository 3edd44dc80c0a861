package main

import "github.com/emrgen/docflow/cmd"

func main() {
	cmd.Execute()
}
