package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/goplus/cmakext/extension"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	path := filepath.Join("testdata", "mymath", DefaultFile)
	cfg, err := Load(path)
	require.NoError(t, err)

	dir, err := filepath.Abs(filepath.Join("testdata", "mymath"))
	require.NoError(t, err)
	src := filepath.Join(dir, "src")

	require.Equal(t, dir, cfg.Dir)
	require.Equal(t, "Unix Makefiles", cfg.Generator)
	require.Equal(t, filepath.Join(dir, "build", "tmp"), cfg.BuildTemp)
	require.Equal(t, []string{filepath.Join(dir, "deps"), "/opt/site-packages"}, cfg.PackagePath)
	require.Len(t, cfg.Extensions, 2)

	swig := cfg.Extensions[0]
	require.Equal(t, "SwigBindings", swig.Name())
	require.Equal(t, "mymath_swig", swig.InstallPrefix())
	require.Equal(t, src, swig.SourceDir())
	require.Equal(t, extension.DefaultBuildType, swig.BuildType())
	require.Equal(t, []string{"-DBINDINGS_SWIG:BOOL=ON"}, swig.ConfigureOptions())
	require.True(t, swig.EditableDisabled())
	_, ok := swig.TopLevelInit()
	require.False(t, ok)

	pb := cfg.Extensions[1]
	require.Equal(t, "Pybind11Bindings", pb.Name())
	require.Equal(t, "Debug", pb.BuildType())
	require.Equal(t, []string{"pybind11"}, pb.DependsOn())
	require.Equal(t, []string{"-DCONFIG_DIR=" + dir}, pb.ConfigureOptions())
	require.Equal(t, []string{"bin/print_answer"}, pb.ExposeBinaries())
	require.Equal(t, "bindings", pb.Component())
	require.False(t, pb.EditableDisabled())
	initContent, ok := pb.TopLevelInit()
	require.True(t, ok)
	require.Equal(t, "from . import bindings\n", initContent)
}

func TestParseEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CMAKEXT_TEST_ROOT", "/opt/python")

	src := []byte(`
extension "Bindings" {
  install_prefix    = "mymath"
  configure_options = ["-DPython3_ROOT_DIR=${env.CMAKEXT_TEST_ROOT}"]
}
`)
	cfg, err := Parse(src, filepath.Join(dir, DefaultFile))
	require.NoError(t, err)
	require.Len(t, cfg.Extensions, 1)

	ext := cfg.Extensions[0]
	require.Equal(t, []string{"-DPython3_ROOT_DIR=/opt/python"}, ext.ConfigureOptions())
	// source_dir defaults to the directory of the file.
	require.Equal(t, dir, ext.SourceDir())
	require.Empty(t, cfg.Generator)
	require.Empty(t, cfg.BuildTemp)
}

func TestParseErrors(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, DefaultFile)

	tests := []struct {
		name string
		src  string
		want string
	}{
		{"syntax", `extension "A" {`, "failed to parse"},
		{"missing prefix", `extension "A" {}`, "failed to decode"},
		{"unknown attribute", `extension "A" {
  install_prefix = "a"
  sources        = ["a.c"]
}`, "failed to decode"},
		{"missing source dir", `extension "A" {
  install_prefix = "a"
  source_dir     = "nope"
}`, "does not exist"},
		{"duplicate", `extension "A" {
  install_prefix = "a"
}
extension "A" {
  install_prefix = "b"
}`, "duplicate extension 'A'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), file)
			require.ErrorIs(t, err, extension.ErrConfig)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), DefaultFile))
	require.ErrorIs(t, err, extension.ErrConfig)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestSkeleton(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Parse([]byte(Skeleton("mymath")), filepath.Join(dir, DefaultFile))
	require.NoError(t, err)
	require.Equal(t, "Ninja", cfg.Generator)
	require.Len(t, cfg.Extensions, 1)

	ext := cfg.Extensions[0]
	got := []string{ext.Name(), ext.InstallPrefix(), ext.SourceDir(), ext.BuildType()}
	want := []string{"mymath", "mymath", dir, "Release"}
	require.Empty(t, cmp.Diff(want, got), "skeleton extension mismatch (-want +got)")
}

func TestEvalContextEnv(t *testing.T) {
	t.Setenv("CMAKEXT_TEST_VAR", "ok")
	t.Setenv("CMAKEXT_TÉST", "unicode")

	ctx := evalContext("/project")
	require.Equal(t, "/project", ctx.Variables["config_dir"].AsString())

	envVal := ctx.Variables["env"]
	require.Equal(t, "ok", envVal.GetAttr("CMAKEXT_TEST_VAR").AsString())
	require.Equal(t, "unicode", envVal.GetAttr("CMAKEXT_TÉST").AsString())
	for name := range envVal.Type().AttributeTypes() {
		require.NotContains(t, name, "(", "env.%s is not a valid identifier", name)
		require.NotContains(t, name, ".", "env.%s is not a valid identifier", name)
	}
}

func TestParseCMakeSettings(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CMAKEXT_TEST_PYTHON", "/opt/python/bin/python3")

	src := []byte(`
extension "mymath" {
  install_prefix = "mymath"
  toolchain      = "cmake/aarch64.cmake"
  defines = {
    Python3_EXECUTABLE = env.CMAKEXT_TEST_PYTHON
    BUILD_TESTING      = false
    WITH_SWIG          = true
    JOBS               = 4
  }
  env = {
    CC = "clang"
  }
}
`)
	cfg, err := Parse(src, filepath.Join(dir, DefaultFile))
	require.NoError(t, err)

	ext := cfg.Extensions[0]
	require.Equal(t, filepath.Join(dir, "cmake", "aarch64.cmake"), ext.Toolchain())
	require.Equal(t, map[string]string{
		"Python3_EXECUTABLE": "/opt/python/bin/python3",
		"JOBS":               "4",
	}, ext.Defines())
	require.Equal(t, map[string]bool{"BUILD_TESTING": false, "WITH_SWIG": true}, ext.BoolDefines())
	require.Equal(t, map[string]string{"CC": "clang"}, ext.Env())
}

func TestParseDefinesErrors(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, DefaultFile)

	tests := []struct {
		name    string
		defines string
	}{
		{"not an object", `"A=1"`},
		{"list value", `{ A = ["x"] }`},
		{"null value", `{ A = null }`},
		{"unknown variable", `{ A = nope }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := "extension \"A\" {\n  install_prefix = \"a\"\n  defines = " + tt.defines + "\n}\n"
			_, err := Parse([]byte(src), file)
			require.ErrorIs(t, err, extension.ErrConfig)
		})
	}
}
