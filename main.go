package main

import "github.com/quillworks/cento/cmd"

func main() {
	cmd.Execute()
}
