package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCNPJColumnPreference(t *testing.T) {
	tests := []struct {
		name string
		cols []string
		want int
	}{
		{
			"exact new layout name wins",
			[]string{"CNPJ_FUNDO", "CNPJ_FUNDO_CLASSE", "CD_ATIVO"},
			1,
		},
		{
			"classe variant preferred over plain",
			[]string{"CNPJ_FUNDO", "CNPJ_CLASSE", "CD_ATIVO"},
			1,
		},
		{
			"first cnpj column as fallback",
			[]string{"TP_FUNDO", "CNPJ_FUNDO", "CNPJ_ADMIN"},
			1,
		},
		{
			"absent",
			[]string{"TP_FUNDO", "CD_ATIVO"},
			-1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cnpjColumn(tt.cols))
		})
	}
}

func TestIsAssetCodeColumn(t *testing.T) {
	assert.True(t, isAssetCodeColumn("CD_ATIVO"))
	assert.True(t, isAssetCodeColumn("CD_ATIV"))
	assert.True(t, isAssetCodeColumn("COD_ATIVO"))
	assert.True(t, isAssetCodeColumn("CODIGO_ATIVO"))
	assert.True(t, isAssetCodeColumn("CD_ATIVO_BV_MERC"))
	assert.False(t, isAssetCodeColumn("DS_ATIVO"))
	assert.False(t, isAssetCodeColumn("CD_ISIN"))
	assert.False(t, isAssetCodeColumn("QT_ATIVO"))
}

func TestNewHeaderResolvesIndexes(t *testing.T) {
	h := newHeader([]string{"tp_fundo", "cnpj_fundo_classe", "cd_isin", "cd_ativo", "ds_ativo"})

	assert.Equal(t, 1, h.cnpjIdx)
	assert.Equal(t, []int{2}, h.isinIdx)
	assert.Equal(t, []int{3}, h.codeIdx)
	assert.Equal(t, 4, h.descIdx)
}

func TestNewHeaderWithoutInterestColumns(t *testing.T) {
	h := newHeader([]string{"TP_FUNDO", "VL_MERC_POS_FINAL"})

	assert.Equal(t, -1, h.cnpjIdx)
	assert.Equal(t, -1, h.descIdx)
	assert.Empty(t, h.isinIdx)
	assert.Empty(t, h.codeIdx)
}
