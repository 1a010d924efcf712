package effect

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreProcessorConditionals(t *testing.T) {
	src := "a\n#ifdef FOG\nfog\n#ifndef SHADOWS\nnoshadow\n#else\nshadow\n#endif\n#else\nnofog\n#endif\nb"
	p := NewPreProcessor(nil)

	tests := []struct {
		name    string
		defines string
		want    string
	}{
		{"none", "", "a\nnofog\nb"},
		{"fog", JoinDefines("FOG"), "a\nfog\nnoshadow\nb"},
		{"fog and shadows", JoinDefines("SHADOWS", "FOG"), "a\nfog\nshadow\nb"},
		{"shadows only", JoinDefines("SHADOWS"), "a\nnofog\nb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := p.Process(src, tt.defines, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestPreProcessorInlineDefine(t *testing.T) {
	out, err := NewPreProcessor(nil).Process("#define LOCAL\n#ifdef LOCAL\nyes\n#endif", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "yes", out)
}

func TestPreProcessorIncludeAndIndexParameters(t *testing.T) {
	sources := map[string]string{
		"light": "var<uniform> light{X}: Light;",
		"outer": "#include<light>",
	}
	lookup := func(name string) (string, error) {
		if s, ok := sources[name]; ok {
			return s, nil
		}
		return "", ErrUnknownSource
	}
	p := NewPreProcessor(lookup)

	out, err := p.Process("#include<outer>\nfn main() {}", "", map[string]int{"X": 2})
	require.NoError(t, err)
	assert.Equal(t, "var<uniform> light2: Light;\nfn main() {}", out)

	_, err = p.Process("#include<missing>", "", nil)
	assert.True(t, errors.Is(err, ErrUnknownSource))
}

func TestPreProcessorErrors(t *testing.T) {
	p := NewPreProcessor(nil)
	for _, src := range []string{
		"#ifdef A\nx",
		"#endif",
		"#else",
		"#ifdef A\n#else\n#else\n#endif",
		"#ifdef\n#endif",
		"#pragma once",
		"#include<x>",
		"#include x",
	} {
		_, err := p.Process(src, "", nil)
		assert.Error(t, err, src)
	}
}

func TestPreProcessorIncludeCycle(t *testing.T) {
	p := NewPreProcessor(func(name string) (string, error) { return "#include<self>", nil })
	_, err := p.Process("#include<self>", "", nil)
	assert.Error(t, err)
}

func TestDefinesHelpers(t *testing.T) {
	d := JoinDefines("B", "A", "B", "")
	assert.Equal(t, "#define A\n#define B", d)
	assert.Equal(t, map[string]bool{"A": true, "B": true}, ParseDefines(d))
	assert.Empty(t, ParseDefines(""))
}

func TestNagaCompilerRejectsInvalidSource(t *testing.T) {
	_, err := NewNagaCompiler().Compile("broken", "fn (")
	assert.ErrorIs(t, err, ErrCompileFailed)
}
