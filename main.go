package main

import "github.com/varalys/diego/cmd/diego"

func main() {
	diego.Execute()
}
