package translator

import (
	"context"
	"fmt"
	"sync"

	gst "github.com/richinsley/goshadertranslator"
)

var (
	translator     *gst.ShaderTranslator
	translatorErr  error
	translatorOnce sync.Once
)

// GetTranslator returns the process-wide shader translator, creating it on
// first use.
func GetTranslator() (*gst.ShaderTranslator, error) {
	translatorOnce.Do(func() {
		translator, translatorErr = gst.NewShaderTranslator(context.Background())
	})
	return translator, translatorErr
}

// Translated is a shader stage ready for the desktop GL compiler.
type Translated struct {
	Code      string
	Variables map[string]gst.ShaderVariable
}

// MappedName returns the identifier the translator gave to name in the output,
// and whether the stage declares name at all.
func (t *Translated) MappedName(name string) (string, bool) {
	v, ok := t.Variables[name]
	if !ok {
		return "", false
	}
	return v.MappedName, true
}

// ToDesktop translates a WebGL-dialect stage ("vertex" or "fragment") to GLSL 4.10.
// Syntax and type errors in the source surface here as errors.
func ToDesktop(source, stage string) (*Translated, error) {
	t, err := GetTranslator()
	if err != nil {
		return nil, fmt.Errorf("failed to create shader translator: %w", err)
	}
	out, err := t.TranslateShader(source, stage, gst.ShaderSpecWebGL2, gst.OutputFormatGLSL410)
	if err != nil {
		return nil, fmt.Errorf("%s shader translation failed: %w", stage, err)
	}
	return &Translated{Code: out.Code, Variables: out.Variables}, nil
}
