package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase", "cnpj_fundo", "CNPJ_FUNDO"},
		{"surrounding spaces", "  CD_ATIVO  ", "CD_ATIVO"},
		{"bom prefix", "\ufeffTP_FUNDO", "TP_FUNDO"},
		{"embedded cr", "DS_ATIVO\r", "DS_ATIVO"},
		{"embedded newline", "CD_\nISIN", "CD_ISIN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeHeader(tt.input))
		})
	}
}

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase isin", "brbkmdbs0a1", "BRBKMDBS0A1"},
		{"spaces and dashes", "brbk md-bs0a1", "BRBKMDBS0A1"},
		{"already normal", "BRBKMDBS0A1", "BRBKMDBS0A1"},
		{"punctuation only", "--..", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeCode(tt.input))
		})
	}
}

func TestNormalizeCodeIdempotent(t *testing.T) {
	inputs := []string{"brbk md-bs0a1", "CDB023ABC", " x.y-z "}
	for _, in := range inputs {
		once := NormalizeCode(in)
		assert.Equal(t, once, NormalizeCode(once))
	}
}

func TestNormalizeDescription(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"punctuation and runs", "AB   CD,,ef", "AB CD EF"},
		{"tabs", "CDB\tBANCO\tXYZ", "CDB BANCO XYZ"},
		{"accents preserved", "debênture série 2", "DEBÊNTURE SÉRIE 2"},
		{"underscore preserved", "CDB_POS", "CDB_POS"},
		{"leading trailing", "  CDB BANCO  ", "CDB BANCO"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDescription(tt.input))
		})
	}
}

func TestNormalizeDescriptionIdempotent(t *testing.T) {
	inputs := []string{"AB   CD,,ef", "CDB - BANCO / XYZ (2027)"}
	for _, in := range inputs {
		once := NormalizeDescription(in)
		assert.Equal(t, once, NormalizeDescription(once))
	}
}

func TestNormalizeCNPJ(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"punctuated", "12.345.678/0001-90", "12345678000190"},
		{"plain digits", "12345678000190", "12345678000190"},
		{"letters stripped", "a1b2c3", "123"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeCNPJ(tt.input))
		})
	}
}

func TestValidCNPJ(t *testing.T) {
	assert.True(t, validCNPJ("12.345.678/0001-90"))
	assert.False(t, validCNPJ(""))
	assert.False(t, validCNPJ("   "))
	assert.False(t, validCNPJ("NAN"))
	assert.False(t, validCNPJ("nan"))
	assert.False(t, validCNPJ("---"))
}
