package search

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdacli/internal/config"
	"cdacli/internal/cvm"
	"cdacli/internal/scanner"
	"cdacli/pkg/contracts/domain"
)

type stubSource struct {
	periods  []string
	archives map[string]*cvm.Archive
	fetchErr map[string]error
	listErr  error
	fetched  []string
}

func (s *stubSource) ListAvailable(ctx context.Context) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.periods, nil
}

func (s *stubSource) Fetch(ctx context.Context, period string) (*cvm.Archive, error) {
	s.fetched = append(s.fetched, period)
	if err, ok := s.fetchErr[period]; ok {
		return nil, err
	}
	archive, ok := s.archives[period]
	if !ok {
		return nil, fmt.Errorf("unexpected period %s", period)
	}
	return archive, nil
}

func buildArchive(t *testing.T, period string, files map[string]string) *cvm.Archive {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return cvm.NewArchive(period, buf.Bytes())
}

func testEngine(source ArchiveSource) *Engine {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg := config.SearchConfig{
		MaxWorkers:     6,
		DefaultWorkers: 1,
		MaxPeriods:     60,
		DefaultPeriods: 1,
		MaxFieldBytes:  10_000_000,
	}
	return NewEngine(source, scanner.New(cfg.MaxFieldBytes, logger), cfg, logger, nil)
}

func isinCSV(rows ...string) string {
	content := "CNPJ_FUNDO;CD_ISIN;DS_ATIVO\n"
	for _, row := range rows {
		content += row + "\n"
	}
	return content
}

func TestSearchValidation(t *testing.T) {
	engine := testEngine(&stubSource{})

	_, err := engine.Search(context.Background(), domain.SearchRequest{
		Term: "   ", Category: domain.CategoryCDB,
	})
	assert.ErrorIs(t, err, ErrEmptyTerm)

	_, err = engine.Search(context.Background(), domain.SearchRequest{
		Term: "BRBKMDBS0A1", Category: "ACOES",
	})
	assert.ErrorIs(t, err, ErrInvalidCategory)
}

func TestSearchSinglePeriod(t *testing.T) {
	source := &stubSource{
		periods: []string{"202402", "202401"},
		archives: map[string]*cvm.Archive{
			"202402": buildArchive(t, "202402", map[string]string{
				"cda_fi_BLC_4_202402.csv": isinCSV(
					"11.111.111/0001-11;BRBKMDBS0A1;DEB XYZ",
					"22.222.222/0001-22;BROTHER0001;DEB ABC",
				),
				"cda_fi_BLC_1_202402.csv": isinCSV(
					"33.333.333/0001-33;BRBKMDBS0A1;DEB XYZ",
				),
				"cda_fi_PL_202402.csv": "CNPJ_FUNDO;VL_PATRIM_LIQ\n11.111.111/0001-11;1000\n",
			}),
		},
	}

	engine := testEngine(source)
	result, err := engine.Search(context.Background(), domain.SearchRequest{
		Term:     "BRBKMDBS0A1",
		Category: domain.CategoryCreditoPrivado,
	})
	require.NoError(t, err)

	assert.Equal(t, "202402", result.LastPeriod)
	assert.Equal(t, []string{"11111111000111", "33333333000133"}, result.CNPJs)
	assert.Equal(t, []domain.FileMatch{
		{Period: "202402", Filename: "cda_fi_BLC_1_202402.csv"},
		{Period: "202402", Filename: "cda_fi_BLC_4_202402.csv"},
	}, result.Matches)
	assert.Empty(t, result.Errors)
	assert.Equal(t, []string{"202402"}, result.MatchPeriods)
	assert.Equal(t, []string{"202402"}, source.fetched)
}

func TestSearchMultiPeriodAggregates(t *testing.T) {
	source := &stubSource{
		periods: []string{"202403", "202402", "202401"},
		archives: map[string]*cvm.Archive{
			"202403": buildArchive(t, "202403", map[string]string{
				"blc_4.csv": isinCSV("11.111.111/0001-11;BRBKMDBS0A1;D"),
			}),
			"202402": buildArchive(t, "202402", map[string]string{
				"blc_4.csv": isinCSV("99.999.999/0001-99;BROTHER0001;D"),
			}),
			"202401": buildArchive(t, "202401", map[string]string{
				"blc_4.csv": isinCSV(
					"11.111.111/0001-11;BRBKMDBS0A1;D",
					"22.222.222/0001-22;BRBKMDBS0A1;D",
				),
			}),
		},
	}

	engine := testEngine(source)
	result, err := engine.Search(context.Background(), domain.SearchRequest{
		Term:     "BRBKMDBS0A1",
		Category: domain.CategoryCreditoPrivado,
		Periods:  3,
	})
	require.NoError(t, err)

	assert.Equal(t, "202403", result.LastPeriod)
	// Deduplicated across periods, ascending.
	assert.Equal(t, []string{"11111111000111", "22222222000122"}, result.CNPJs)
	// Only the periods that matched, most recent first.
	assert.Equal(t, []string{"202403", "202401"}, result.MatchPeriods)
	assert.Equal(t, []domain.FileMatch{
		{Period: "202403", Filename: "blc_4.csv"},
		{Period: "202401", Filename: "blc_4.csv"},
	}, result.Matches)
}

func TestSearchDeterministicAcrossWorkerCounts(t *testing.T) {
	files := map[string]string{}
	for i := 0; i < 12; i++ {
		files[fmt.Sprintf("blc_%02d.csv", i)] = isinCSV(
			fmt.Sprintf("%014d;BRBKMDBS0A1;D", i+1),
		)
	}

	run := func(workers int) *domain.SearchResult {
		source := &stubSource{
			periods: []string{"202401"},
			archives: map[string]*cvm.Archive{
				"202401": buildArchive(t, "202401", files),
			},
		}
		result, err := testEngine(source).Search(context.Background(), domain.SearchRequest{
			Term:     "BRBKMDBS0A1",
			Category: domain.CategoryCreditoPrivado,
			Workers:  workers,
		})
		require.NoError(t, err)
		return result
	}

	assert.Equal(t, run(1), run(6))
}

func TestSearchFetchFailureAbortsRun(t *testing.T) {
	source := &stubSource{
		periods: []string{"202402", "202401"},
		archives: map[string]*cvm.Archive{
			"202402": buildArchive(t, "202402", map[string]string{
				"blc_4.csv": isinCSV("11.111.111/0001-11;BRBKMDBS0A1;D"),
			}),
		},
		fetchErr: map[string]error{
			"202401": fmt.Errorf("connection reset"),
		},
	}

	_, err := testEngine(source).Search(context.Background(), domain.SearchRequest{
		Term:     "BRBKMDBS0A1",
		Category: domain.CategoryCreditoPrivado,
		Periods:  2,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "202401")
}

func TestSearchDiscoveryFailurePropagates(t *testing.T) {
	source := &stubSource{listErr: fmt.Errorf("listing unreachable")}

	_, err := testEngine(source).Search(context.Background(), domain.SearchRequest{
		Term:     "BRBKMDBS0A1",
		Category: domain.CategoryCreditoPrivado,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive discovery failed")
}

func TestSearchPerFileErrorsReportedNotFatal(t *testing.T) {
	// bad.csv defeats both parsers: a bare quote fails the strict parse and
	// the oversized line overflows the fallback's line budget.
	longLine := `11.111.111/0001-11;BR"OKEN;` + strings.Repeat("x", 4096)
	archive := buildArchive(t, "202401", map[string]string{
		"good.csv": isinCSV("11.111.111/0001-11;BRBKMDBS0A1;D"),
		"bad.csv":  "CNPJ_FUNDO;CD_ISIN;DS_ATIVO\n" + longLine + "\n",
	})
	source := &stubSource{
		periods:  []string{"202401"},
		archives: map[string]*cvm.Archive{"202401": archive},
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg := config.SearchConfig{
		MaxWorkers:     6,
		DefaultWorkers: 1,
		MaxPeriods:     60,
		DefaultPeriods: 1,
		MaxFieldBytes:  1024,
	}
	engine := NewEngine(source, scanner.New(cfg.MaxFieldBytes, logger), cfg, logger, nil)

	result, err := engine.Search(context.Background(), domain.SearchRequest{
		Term:     "BRBKMDBS0A1",
		Category: domain.CategoryCreditoPrivado,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"11111111000111"}, result.CNPJs)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "bad.csv", result.Errors[0].Filename)
	assert.Equal(t, "202401", result.Errors[0].Period)
	assert.NotEmpty(t, result.Errors[0].Message)
}

func TestSearchClampsPeriodsToAvailable(t *testing.T) {
	source := &stubSource{
		periods: []string{"202402", "202401"},
		archives: map[string]*cvm.Archive{
			"202402": buildArchive(t, "202402", map[string]string{"a.csv": isinCSV()}),
			"202401": buildArchive(t, "202401", map[string]string{"a.csv": isinCSV()}),
		},
	}

	result, err := testEngine(source).Search(context.Background(), domain.SearchRequest{
		Term:     "BRBKMDBS0A1",
		Category: domain.CategoryCreditoPrivado,
		Periods:  10,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"202402", "202401"}, source.fetched)
	assert.Empty(t, result.CNPJs)
	assert.Empty(t, result.MatchPeriods)
}

func TestClampWorkersAndPeriods(t *testing.T) {
	engine := testEngine(&stubSource{})

	assert.Equal(t, 1, engine.clampWorkers(0))
	assert.Equal(t, 1, engine.clampWorkers(-3))
	assert.Equal(t, 6, engine.clampWorkers(100))
	assert.Equal(t, 4, engine.clampWorkers(4))

	assert.Equal(t, 1, engine.clampPeriods(0))
	assert.Equal(t, 1, engine.clampPeriods(-1))
	assert.Equal(t, 60, engine.clampPeriods(100))
	assert.Equal(t, 12, engine.clampPeriods(12))
}

func TestSearchLatestUsesNewestPeriodOnly(t *testing.T) {
	source := &stubSource{
		periods: []string{"202402", "202401"},
		archives: map[string]*cvm.Archive{
			"202402": buildArchive(t, "202402", map[string]string{
				"blc_4.csv": isinCSV("11.111.111/0001-11;BRBKMDBS0A1;D"),
			}),
		},
	}

	result, err := testEngine(source).SearchLatest(context.Background(), "BRBKMDBS0A1", domain.CategoryCreditoPrivado, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"202402"}, source.fetched)
	assert.Equal(t, "202402", result.LastPeriod)
}
