package bundle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withUserDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	orig := UserDir
	UserDir = func() string { return dir }
	t.Cleanup(func() { UserDir = orig })
	return dir
}

func phaseNames(b *Bundle) []string {
	var names []string
	for _, p := range b.Phases {
		names = append(names, p.Name)
	}
	return names
}

func TestLoad_BuiltinScaffold(t *testing.T) {
	withUserDir(t)

	b, err := Load("scaffold")
	require.NoError(t, err)

	assert.Equal(t, []string{"Architect", "Developer", "Tester", "Reviewer"}, phaseNames(b))
	assert.Equal(t, "${inputs.output_dir}", b.WorkDir)
	assert.Equal(t, "ARCHITECTURE.md", b.Phases[0].Sink)
	assert.Equal(t, ModeJSON, b.Phases[0].Mode)
	assert.Equal(t, "tests", b.Phases[2].SkipFlag)
	assert.Equal(t, "review", b.Phases[3].SkipFlag)
	assert.Contains(t, b.Phases[1].Prompt, "${phases.Architect.output}")

	in, ok := b.Input("description")
	require.True(t, ok)
	assert.True(t, in.Required)
	assert.Empty(t, in.Default)
}

func TestLoad_BuiltinMigrate(t *testing.T) {
	withUserDir(t)

	b, err := Load("migrate")
	require.NoError(t, err)

	assert.Equal(t, []string{"Analyze-Source", "Analyze-Target", "Migrate"}, phaseNames(b))
	assert.Equal(t, "MIGRATION_REPORT.md", b.Phases[2].Sink)

	for _, name := range []string{"source_dir", "target_dir"} {
		in, ok := b.Input(name)
		require.True(t, ok, name)
		assert.Equal(t, KindDir, in.Kind)
		assert.True(t, in.Required)
	}
	fw, ok := b.Input("source_framework")
	require.True(t, ok)
	assert.Equal(t, "auto-detect", fw.Default)
}

func TestLoad_UserOverride(t *testing.T) {
	dir := withUserDir(t)
	yml := "name: scaffold\ndescription: mine\nphases:\n  - name: Only\n    prompt: do ${inputs.description}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scaffold.yaml"), []byte(yml), 0o644))

	b, err := Load("scaffold")
	require.NoError(t, err)
	assert.Equal(t, []string{"Only"}, phaseNames(b))
	assert.Equal(t, filepath.Join(dir, "scaffold.yaml"), b.SourcePath)
}

func TestLoad_InvalidUserBundle(t *testing.T) {
	dir := withUserDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("phases: [\n"), 0o644))

	_, err := Load("broken")
	assert.ErrorContains(t, err, "invalid yaml")
}

func TestLoad_NotFound(t *testing.T) {
	withUserDir(t)
	_, err := Load("nope")
	assert.ErrorContains(t, err, "bundle not found")
}

func TestValidateBundleName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"scaffold", false},
		{"my_bundle-2", false},
		{"", true},
		{"../etc/passwd", true},
		{"-leading", true},
		{"has space", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateBundleName(tt.name)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateBundleName(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
		})
	}
}

func TestList(t *testing.T) {
	dir := withUserDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "custom.yaml"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scaffold.yaml"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	names, err := List()
	require.NoError(t, err)
	assert.Equal(t, []string{"custom", "migrate", "scaffold"}, names)
}

func TestValidate(t *testing.T) {
	valid := func() *Bundle {
		return &Bundle{
			Name:   "b",
			Inputs: []Input{{Name: "x"}},
			Phases: []Phase{{Name: "One", Prompt: "p"}},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Bundle)
		errMsg string
	}{
		{"ok", func(b *Bundle) {}, ""},
		{"no phases", func(b *Bundle) { b.Phases = nil }, "no phases"},
		{"dup phase", func(b *Bundle) { b.Phases = append(b.Phases, Phase{Name: "One", Prompt: "q"}) }, "duplicate phase"},
		{"empty prompt", func(b *Bundle) { b.Phases[0].Prompt = "  " }, "empty prompt"},
		{"bad mode", func(b *Bundle) { b.Phases[0].Mode = "xml" }, "unknown mode"},
		{"sink with dir", func(b *Bundle) { b.Phases[0].Sink = "../out.md" }, "sink must be a file name"},
		{"bad kind", func(b *Bundle) { b.Inputs[0].Kind = "number" }, "unknown kind"},
		{"dup input", func(b *Bundle) { b.Inputs = append(b.Inputs, Input{Name: "x"}) }, "duplicate input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := valid()
			tt.mutate(b)
			err := b.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestDisplayTitle(t *testing.T) {
	assert.Equal(t, "SCAFFOLD", (&Bundle{Name: "scaffold"}).DisplayTitle())
	assert.Equal(t, "Custom", (&Bundle{Name: "x", Title: "Custom"}).DisplayTitle())
}
