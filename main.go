package main

import "dval/cmd"

func main() {
	cmd.Execute()
}
