package main

import "swath2grid/cmd"

func main() {
	cmd.Execute()
}
