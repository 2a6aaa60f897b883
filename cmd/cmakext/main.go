package main

import "github.com/goplus/cmakext/cmd/cmakext/internal"

func main() {
	internal.Execute()
}
