//go:build mage

package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const binary = "cmakext"

var Default = Build

// Build compiles the cmakext command into bin/.
func Build() error {
	return sh.RunV("go", "build", "-o", filepath.Join("bin", binary), "./cmd/cmakext")
}

// Test runs the unit tests.
func Test() error {
	return sh.RunV("go", "test", "./...")
}

// Check runs go vet and the tests.
func Check() error {
	if err := sh.RunV("go", "vet", "./..."); err != nil {
		return err
	}
	mg.Deps(Test)
	return nil
}

// Install installs cmakext into GOBIN.
func Install() error {
	mg.Deps(Test)
	return sh.RunV("go", "install", "./cmd/cmakext")
}

// Clean removes build outputs.
func Clean() error {
	return os.RemoveAll("bin")
}
