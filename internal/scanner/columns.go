package scanner

import "strings"

// header holds a file's normalized column names and the column positions the
// matcher cares about.
type header struct {
	cols        []string
	cnpjIdx     int
	isinIdx     []int
	codeIdx     []int
	descIdx     int
}

var exactCodeColumns = map[string]struct{}{
	"CD_ATIVO":     {},
	"CD_ATIV":      {},
	"COD_ATIVO":    {},
	"CODIGO_ATIVO": {},
}

// newHeader normalizes a raw header row and resolves the columns of
// interest. cnpjIdx and descIdx are -1 when absent.
func newHeader(raw []string) header {
	h := header{
		cols:    make([]string, len(raw)),
		cnpjIdx: -1,
		descIdx: -1,
	}
	for i, col := range raw {
		h.cols[i] = NormalizeHeader(col)
	}

	h.cnpjIdx = cnpjColumn(h.cols)

	for i, col := range h.cols {
		if strings.Contains(col, "ISIN") {
			h.isinIdx = append(h.isinIdx, i)
		}
		if isAssetCodeColumn(col) {
			h.codeIdx = append(h.codeIdx, i)
		}
		if col == "DS_ATIVO" && h.descIdx < 0 {
			h.descIdx = i
		}
	}
	return h
}

// cnpjColumn picks the fund identifier column. Newer layouts carry
// CNPJ_FUNDO_CLASSE; older ones CNPJ_FUNDO. Preference order: the exact new
// name, then any CNPJ column mentioning CLASSE, then the first CNPJ column.
func cnpjColumn(cols []string) int {
	for i, col := range cols {
		if col == "CNPJ_FUNDO_CLASSE" {
			return i
		}
	}

	first := -1
	for i, col := range cols {
		if !strings.Contains(col, "CNPJ") {
			continue
		}
		if strings.Contains(col, "CLASSE") {
			return i
		}
		if first < 0 {
			first = i
		}
	}
	return first
}

// isAssetCodeColumn matches the known asset-code column names plus the
// CD_*-family variants that mention ATIV.
func isAssetCodeColumn(col string) bool {
	if _, ok := exactCodeColumns[col]; ok {
		return true
	}
	return strings.HasPrefix(col, "CD_") && strings.Contains(col, "ATIV")
}
