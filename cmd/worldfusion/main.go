package main

import "github.com/MeKo-Tech/worldfusion/internal/cmd"

func main() {
	cmd.Execute()
}
