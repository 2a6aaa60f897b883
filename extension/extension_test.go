package extension

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	dir := t.TempDir()

	ext, err := New("mymath", "mymath", WithSourceDir(dir))
	require.NoError(t, err)

	require.Equal(t, "mymath", ext.Name())
	require.Equal(t, "mymath", ext.InstallPrefix())
	require.Equal(t, dir, ext.SourceDir())
	require.Equal(t, DefaultBuildType, ext.BuildType())
	require.False(t, ext.EditableDisabled())
	require.Empty(t, ext.ConfigureOptions())
	require.Empty(t, ext.DependsOn())
	require.Empty(t, ext.ExposeBinaries())
	require.Empty(t, ext.Component())

	_, ok := ext.TopLevelInit()
	require.False(t, ok)
}

func TestNewMissingSourceDir(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")

	_, err := New("mymath", "mymath", WithSourceDir(missing))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrConfig))
	require.Contains(t, err.Error(), missing)
}

func TestNewSourceDirIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "CMakeLists.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := New("mymath", "mymath", WithSourceDir(file))
	require.ErrorIs(t, err, ErrConfig)
}

func TestNewRelativeSourceDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "native"), 0o755))
	t.Chdir(root)

	ext, err := New("mymath", "mymath", WithSourceDir("native"))
	require.NoError(t, err)
	require.True(t, filepath.IsAbs(ext.SourceDir()))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(wd, "native"), ext.SourceDir())
}

func TestNewDefaultSourceDirIsWorkingDir(t *testing.T) {
	root := t.TempDir()
	t.Chdir(root)

	ext, err := New("mymath", "mymath")
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.Equal(t, wd, ext.SourceDir())
}

func TestOptions(t *testing.T) {
	dir := t.TempDir()
	ext, err := New("Pybind11Bindings", "mymath_pybind11",
		WithSourceDir(dir),
		WithBuildType("Debug"),
		WithConfigureOptions("-DA=1", "-DB=2"),
		WithConfigureOptions("-DC=3"),
		WithDependsOn("pybind11"),
		DisableEditable(),
		WithExposedBinaries("bin/print_answer"),
		WithTopLevelInit(""),
		WithComponent("python"),
	)
	require.NoError(t, err)

	require.Equal(t, "Debug", ext.BuildType())
	require.Equal(t, []string{"-DA=1", "-DB=2", "-DC=3"}, ext.ConfigureOptions())
	require.Equal(t, []string{"pybind11"}, ext.DependsOn())
	require.True(t, ext.EditableDisabled())
	require.Equal(t, []string{"bin/print_answer"}, ext.ExposeBinaries())
	require.Equal(t, "python", ext.Component())

	// An empty initializer is still an initializer.
	content, ok := ext.TopLevelInit()
	require.True(t, ok)
	require.Equal(t, "", content)
}

func TestAccessorsReturnCopies(t *testing.T) {
	ext, err := New("mymath", "mymath",
		WithSourceDir(t.TempDir()),
		WithConfigureOptions("-DA=1"),
		WithDependsOn("pybind11"),
		WithExposedBinaries("bin/print_answer"),
	)
	require.NoError(t, err)

	ext.ConfigureOptions()[0] = "mutated"
	ext.DependsOn()[0] = "mutated"
	ext.ExposeBinaries()[0] = "mutated"

	require.Equal(t, []string{"-DA=1"}, ext.ConfigureOptions())
	require.Equal(t, []string{"pybind11"}, ext.DependsOn())
	require.Equal(t, []string{"bin/print_answer"}, ext.ExposeBinaries())
}

func TestCMakeSettings(t *testing.T) {
	ext, err := New("mymath", "mymath",
		WithSourceDir(t.TempDir()),
		WithToolchain("/opt/toolchains/aarch64.cmake"),
		WithDefine("Python3_EXECUTABLE", "/usr/bin/python3"),
		WithBoolDefine("BUILD_TESTING", false),
		WithEnv("CC", "clang"),
	)
	require.NoError(t, err)

	require.Equal(t, "/opt/toolchains/aarch64.cmake", ext.Toolchain())
	require.Equal(t, map[string]string{"Python3_EXECUTABLE": "/usr/bin/python3"}, ext.Defines())
	require.Equal(t, map[string]bool{"BUILD_TESTING": false}, ext.BoolDefines())
	require.Equal(t, map[string]string{"CC": "clang"}, ext.Env())

	ext.Defines()["Python3_EXECUTABLE"] = "mutated"
	ext.Env()["CC"] = "mutated"
	require.Equal(t, "/usr/bin/python3", ext.Defines()["Python3_EXECUTABLE"])
	require.Equal(t, "clang", ext.Env()["CC"])
}

func TestCMakeSettingsDefaults(t *testing.T) {
	ext, err := New("mymath", "mymath", WithSourceDir(t.TempDir()))
	require.NoError(t, err)
	require.Empty(t, ext.Toolchain())
	require.Empty(t, ext.Defines())
	require.Empty(t, ext.BoolDefines())
	require.Empty(t, ext.Env())
}
