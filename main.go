package main

import "github.com/nextlevelbuilder/mcptick/cmd"

func main() {
	cmd.Execute()
}
