package main

import "github.com/aweris/blobs/cmd/blobs/cmd"

func main() {
	cmd.Execute()
}
