package main

import "plainsight/cmd"

func main() {
	cmd.Execute()
}
