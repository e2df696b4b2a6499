package shader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParams(t *testing.T) {
	params := ParseParams(`{"warpAmp": 0.125, "tint": [1, 0.5, 0.25], "offset": [1, 2], "box": [1, 2, 3, 4]}`)
	require.Len(t, params, 4)

	assert.Equal(t, Param{Kind: Scalar, Values: [4]float32{0.125}}, params["warpAmp"])
	assert.Equal(t, Param{Kind: Vec2, Values: [4]float32{1, 2}}, params["offset"])
	assert.Equal(t, Param{Kind: Vec3, Values: [4]float32{1, 0.5, 0.25}}, params["tint"])
	assert.Equal(t, Param{Kind: Vec4, Values: [4]float32{1, 2, 3, 4}}, params["box"])
}

func TestParseParamsSkipsUnsupportedShapes(t *testing.T) {
	params := ParseParams(`{"a": "red", "b": [1], "c": [1,2,3,4,5], "d": [1, "x"], "e": {"x": 1}, "f": true, "g": 3}`)
	assert.Equal(t, []string{"g"}, params.Names())
}

func TestParseParamsInvalidIsEmpty(t *testing.T) {
	for _, in := range []string{"", "   ", "{", "not json", "[1, 2]", "null", `{"a": }`} {
		assert.Empty(t, ParseParams(in), "input %q", in)
	}
}

func TestParamsFromEnv(t *testing.T) {
	t.Setenv(ParamsEnv, `{"grain": 0.5}`)
	assert.Equal(t, Params{"grain": {Kind: Scalar, Values: [4]float32{0.5}}}, ParamsFromEnv())

	t.Setenv(ParamsEnv, `{grain: 0.5}`)
	assert.Empty(t, ParamsFromEnv())
}

func TestMerge(t *testing.T) {
	base := Params{"a": {Kind: Scalar, Values: [4]float32{1}}, "b": {Kind: Scalar, Values: [4]float32{2}}}
	over := Params{"b": {Kind: Vec2, Values: [4]float32{3, 4}}}

	merged := base.Merge(over)
	assert.Equal(t, float32(1), merged["a"].Values[0])
	assert.Equal(t, Vec2, merged["b"].Kind)
	assert.Equal(t, Scalar, base["b"].Kind)
}

func TestKind(t *testing.T) {
	assert.Equal(t, "vec3", Vec3.String())
	assert.Equal(t, 4, Vec4.Components())
	assert.Equal(t, "vec2[1 2]", Param{Kind: Vec2, Values: [4]float32{1, 2}}.String())
}

func TestLoadParamsFile(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"p.json": `{"chroma": 1.5, "center": [0.5, 0.5]}`,
		"p.yaml": "chroma: 1.5\ncenter: [0.5, 0.5]\n",
		"p.toml": "chroma = 1.5\ncenter = [0.5, 0.5]\n",
	}
	want := Params{
		"chroma": {Kind: Scalar, Values: [4]float32{1.5}},
		"center": {Kind: Vec2, Values: [4]float32{0.5, 0.5}},
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		got, err := LoadParamsFile(path)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
}

func TestLoadParamsFileIntegers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "p.toml")
	require.NoError(t, os.WriteFile(path, []byte("grain = 2\nbox = [1, 2, 3, 4]\n"), 0o644))

	got, err := LoadParamsFile(path)
	require.NoError(t, err)
	assert.Equal(t, Param{Kind: Scalar, Values: [4]float32{2}}, got["grain"])
	assert.Equal(t, Param{Kind: Vec4, Values: [4]float32{1, 2, 3, 4}}, got["box"])
}

func TestLoadParamsFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadParamsFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "p.ini")
	require.NoError(t, os.WriteFile(bad, []byte("a=1"), 0o644))
	_, err = LoadParamsFile(bad)
	assert.Error(t, err)

	broken := filepath.Join(dir, "p.json")
	require.NoError(t, os.WriteFile(broken, []byte("{"), 0o644))
	_, err = LoadParamsFile(broken)
	assert.Error(t, err)
}

func TestBindSkipsUnknownNames(t *testing.T) {
	program := map[string]int32{"warpAmp": 0, "chroma": 3}
	lookup := func(name string) (int32, bool) {
		loc, ok := program[name]
		return loc, ok
	}
	params := Params{
		"warpAmp": {Kind: Scalar, Values: [4]float32{0.5}},
		"chroma":  {Kind: Scalar, Values: [4]float32{2}},
		"nope":    {Kind: Vec3, Values: [4]float32{1, 2, 3}},
	}

	bindings := Bind(params, lookup)
	require.Len(t, bindings, 2)
	assert.Equal(t, Binding{Name: "chroma", Location: 3, Param: params["chroma"]}, bindings[0])
	// location 0 is present, not missing
	assert.Equal(t, Binding{Name: "warpAmp", Location: 0, Param: params["warpAmp"]}, bindings[1])
}

func TestBindUnknownDoesNotChangeOthers(t *testing.T) {
	lookup := func(name string) (int32, bool) {
		if name == "grain" {
			return 7, true
		}
		return -1, false
	}
	valid := Params{"grain": {Kind: Scalar, Values: [4]float32{0.3}}}
	withUnknown := valid.Merge(Params{"bogus": {Kind: Scalar, Values: [4]float32{9}}})

	assert.Equal(t, Bind(valid, lookup), Bind(withUnknown, lookup))
	assert.Empty(t, Bind(ParseParams("{{"), lookup))
}

func TestLoadFragment(t *testing.T) {
	src, name, err := LoadFragment("")
	require.NoError(t, err)
	assert.Equal(t, DefaultFragment, src)
	assert.Equal(t, DefaultFragName, name)

	src, _, err = LoadFragment(filepath.Join(t.TempDir(), "missing.frag"))
	require.NoError(t, err)
	assert.Equal(t, DefaultFragment, src)

	path := filepath.Join(t.TempDir(), "x.frag")
	require.NoError(t, os.WriteFile(path, []byte("void main(){}"), 0o644))
	src, name, err = LoadFragment(path)
	require.NoError(t, err)
	assert.Equal(t, "void main(){}", src)
	assert.Equal(t, path, name)
}

func TestDefaultFragmentUniforms(t *testing.T) {
	for _, name := range []string{TextureUniform, TimeUniform, "warpAmp", "chroma", "grain", "flicker"} {
		assert.Regexp(t, `uniform \w+ `+name+`;`, DefaultFragment)
	}
	assert.Contains(t, GenerateVertexShader(), "attribute vec2 "+PositionAttrib)
}
