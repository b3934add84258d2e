package main

import "directory-sync/cmd"

func main() {
	cmd.Execute()
}
