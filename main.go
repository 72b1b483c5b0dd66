package main

import "github.com/hurou927/docmap/cmd"

func main() {
	cmd.Execute()
}
