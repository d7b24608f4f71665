package main

import "devdiary/cmd"

func main() {
	cmd.Execute()
}
