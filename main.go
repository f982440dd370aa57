package main

import "argus-master/cmd"

func main() {
	cmd.Execute()
}
