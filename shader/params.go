package shader

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	yaml "gopkg.in/yaml.v3"
)

// ParamsEnv names the environment variable holding the JSON uniform object.
const ParamsEnv = "GL_PARAMS_JSON"

// Kind tags the shape of a uniform parameter.
type Kind int

const (
	Scalar Kind = iota + 1
	Vec2
	Vec3
	Vec4
)

func (k Kind) String() string {
	switch k {
	case Scalar:
		return "float"
	case Vec2:
		return "vec2"
	case Vec3:
		return "vec3"
	case Vec4:
		return "vec4"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Components returns the number of floats the kind carries.
func (k Kind) Components() int {
	return int(k)
}

// Param is one uniform value. Only the first Kind.Components() entries of
// Values are meaningful.
type Param struct {
	Kind   Kind
	Values [4]float32
}

func (p Param) String() string {
	return fmt.Sprintf("%s%v", p.Kind, p.Values[:p.Kind.Components()])
}

// Params maps uniform names to their values.
type Params map[string]Param

// Names returns the parameter names in sorted order.
func (p Params) Names() []string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Merge returns a new set with the entries of over replacing those of p.
func (p Params) Merge(over Params) Params {
	out := make(Params, len(p)+len(over))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

// ParamFromValue converts a decoded value into a Param. Numbers become scalars;
// arrays of two to four numbers become vectors. Anything else is rejected.
func ParamFromValue(v any) (Param, bool) {
	if f, ok := toFloat(v); ok {
		return Param{Kind: Scalar, Values: [4]float32{f}}, true
	}
	arr, ok := v.([]any)
	if !ok || len(arr) < 2 || len(arr) > 4 {
		return Param{}, false
	}
	p := Param{Kind: Kind(len(arr))}
	for i, e := range arr {
		f, ok := toFloat(e)
		if !ok {
			return Param{}, false
		}
		p.Values[i] = f
	}
	return p, true
}

func toFloat(v any) (float32, bool) {
	switch n := v.(type) {
	case float64:
		return float32(n), true
	case float32:
		return n, true
	case int:
		return float32(n), true
	case int64:
		return float32(n), true
	case uint64:
		return float32(n), true
	case json.Number:
		f, err := n.Float64()
		return float32(f), err == nil
	}
	return 0, false
}

// FromMap converts a decoded object into Params, skipping entries of an
// unsupported shape.
func FromMap(m map[string]any) Params {
	params := make(Params, len(m))
	for name, v := range m {
		p, ok := ParamFromValue(v)
		if !ok {
			log.Printf("Ignoring uniform parameter %q: unsupported value %v", name, v)
			continue
		}
		params[name] = p
	}
	return params
}

// ParseParams decodes a JSON object of uniform values. Empty or malformed input
// yields an empty set.
func ParseParams(data string) Params {
	if strings.TrimSpace(data) == "" {
		return Params{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return Params{}
	}
	return FromMap(m)
}

// ParamsFromEnv reads the uniform object from the GL_PARAMS_JSON variable.
func ParamsFromEnv() Params {
	return ParseParams(os.Getenv(ParamsEnv))
}

// LoadParamsFile decodes a uniform object from a JSON, YAML or TOML file,
// chosen by extension.
func LoadParamsFile(path string) (Params, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read params file: %w", err)
	}

	var m map[string]any
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(b, &m)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &m)
	case ".toml":
		err = toml.Unmarshal(b, &m)
	default:
		return nil, fmt.Errorf("unsupported params file type %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode params file %s: %w", path, err)
	}
	return FromMap(m), nil
}
