package main

import "github.com/charliek/devlog/internal/cli"

func main() {
	cli.Execute()
}
