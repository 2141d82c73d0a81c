package main

import "github.com/chimeyao/ghrelay/cmd"

func main() {
	cmd.Execute()
}
