package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		in        string
		value     string
		wantLatex bool
	}{
		{"1+1=", "2", false},
		{"7/2 =", "3.5", true},
		{"2^10=", "1024", true},
		{"sqrt(16)+1=", "5", true},
		{"(1+2)×3=", "9", true},
		{"-3+1=", "-2", false},
		{"pow(2, 3)=", "8", false},
	}
	for _, tt := range tests {
		res, ok := Calculate(tt.in)
		require.True(t, ok, tt.in)
		assert.Equal(t, tt.value, res.Value, tt.in)
		assert.Equal(t, tt.wantLatex, res.Latex != "", tt.in)
	}

	for _, in := range []string{"hello=", "1+1", "5=", "a+b=", "1/0=", "system(1)=", "=", "你好+1="} {
		_, ok := Calculate(in)
		assert.False(t, ok, in)
	}
}

func TestToLatex(t *testing.T) {
	assert.Equal(t, `\sqrt{2}\times 3`, toLatex("sqrt(2)*3"))
	assert.Equal(t, `2^{10}`, toLatex("2^10"))
	assert.Equal(t, `2^{n+1}`, toLatex("2^(n+1)"))
	assert.Contains(t, LatexHTML(`a<b`), `a&lt;b`)
}
