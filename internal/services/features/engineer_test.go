package features

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OVIP/internal/domain/models"
	"OVIP/pkg/logger"
)

// monthlyPanel builds Jan 2020 - Dec 2021 (24 rows) from a fixed seed.
func monthlyPanel(seed int64) *models.MarketPanel {
	const n = 24
	rng := rand.New(rand.NewSource(seed))
	p := &models.MarketPanel{
		Dates:      make([]time.Time, n),
		Volatility: make(models.Series, n),
		CrisisProb: make(models.Series, n),
		Intensity:  make(models.Series, n),
		Score:      make(models.Series, n),
		WTI:        make(models.Series, n),
		GPR:        make(models.Series, n),
	}
	price := 60.0
	for i := 0; i < n; i++ {
		p.Dates[i] = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, i, 0)
		p.Volatility[i] = 0.1 + 0.4*rng.Float64()
		p.CrisisProb[i] = rng.Float64()
		p.Intensity[i] = 50 + 250*rng.Float64()
		p.Score[i] = rng.Float64() - 0.5
		price *= 1 + 0.1*(rng.Float64()-0.5)
		p.WTI[i] = price
		p.GPR[i] = 80 + 70*rng.Float64()
	}
	return p
}

func sameValue(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return a == b
}

type logLine map[string]interface{}

func readLogs(t *testing.T, buf *bytes.Buffer) []logLine {
	t.Helper()
	var out []logLine
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var l logLine
		require.NoError(t, json.Unmarshal(sc.Bytes(), &l))
		out = append(out, l)
	}
	return out
}

func findLog(lines []logLine, msg string) logLine {
	for _, l := range lines {
		if l["message"] == msg {
			return l
		}
	}
	return nil
}

func TestCreateAllFeatures_Scenario(t *testing.T) {
	var buf bytes.Buffer
	e := NewEngineer(DefaultTrainCutoff, WithLogger(logger.NewWriter(&buf)))
	in := monthlyPanel(42)

	out := e.CreateAllFeatures(in)

	rows, cols := out.Shape()
	assert.Equal(t, 24, rows)
	for _, c := range []models.Column{
		models.ColLVol, models.ColLRegime, models.ColLAccel, models.ColLVolStd, models.ColLNewsShk,
		models.ColScoreCentered, models.ColLStateSSafe, models.ColLCrowdSafe, models.ColLMSVolSafe,
	} {
		assert.Truef(t, out.HasColumn(c), "missing %s", c)
	}
	// 7 input columns + 15 engineered
	assert.Equal(t, 22, cols)

	rf11 := e.RF11Features(out)
	assert.Equal(t, models.FeatureSetRF11.Canonical(), rf11)

	report := e.ValidateFeatures(out, rf11)
	assert.True(t, report.Valid, "report: %+v", report)
	assert.Equal(t, 12, report.TestRows)
	assert.Equal(t, "date", report.Partition)

	// warm-up ends by row 6
	for _, c := range rf11 {
		s, _ := out.Column(c)
		assert.Zerof(t, s.CountNaN(VolStdWindow, rows), "%s has gaps after warm-up", c)
	}

	shape := findLog(readLogs(t, &buf), "features created")
	require.NotNil(t, shape)
	assert.EqualValues(t, 24, shape["rows"])
	assert.EqualValues(t, 22, shape["columns"])
}

func TestCreateAllFeatures_DoesNotMutateInput(t *testing.T) {
	in := monthlyPanel(1)
	before := in.Clone()

	out := NewEngineer(DefaultTrainCutoff).CreateAllFeatures(in)
	out.Volatility[3] = 99

	assert.Equal(t, before, in)
}

func TestCreateAllFeatures_NoLookAhead(t *testing.T) {
	base := monthlyPanel(7)

	// Freeze the centering mean so rows inside the training window are comparable too.
	e := NewEngineer(DefaultTrainCutoff, WithCenteringMode(CenteringFitOnce))
	require.NoError(t, e.Fit(base))
	want := e.CreateAllFeatures(base)

	rng := rand.New(rand.NewSource(99))
	for cut := 0; cut < base.Len()-1; cut++ {
		corrupted := base.Clone()
		for i := cut + 1; i < corrupted.Len(); i++ {
			corrupted.Volatility[i] = rng.Float64() * 10
			corrupted.CrisisProb[i] = rng.Float64()
			corrupted.Intensity[i] = rng.Float64() * 1000
			corrupted.Score[i] = rng.Float64()*4 - 2
			corrupted.WTI[i] = 1 + rng.Float64()*200
			corrupted.GPR[i] = rng.Float64() * 500
		}
		got := e.CreateAllFeatures(corrupted)

		for _, c := range models.DerivedColumnOrder {
			ws, ok := want.Column(c)
			if !ok {
				continue
			}
			gs, _ := got.Column(c)
			for row := 0; row <= cut; row++ {
				assert.Truef(t, sameValue(ws[row], gs[row]), "cut %d: %s[%d] changed %v -> %v", cut, c, row, ws[row], gs[row])
			}
		}
	}
}

func TestCreateAllFeatures_NoLookAheadAfterTraining(t *testing.T) {
	base := monthlyPanel(8)
	e := NewEngineer(DefaultTrainCutoff)
	want := e.CreateAllFeatures(base)

	// Rows from the last training month on: mutating later rows leaves the refit mean alone.
	for cut := 11; cut < base.Len()-1; cut++ {
		corrupted := base.Clone()
		for i := cut + 1; i < corrupted.Len(); i++ {
			corrupted.Volatility[i] = -1
			corrupted.Score[i] = 5
			corrupted.CrisisProb[i] = 1
		}
		got := e.CreateAllFeatures(corrupted)
		for _, c := range models.DerivedColumnOrder {
			ws, ok := want.Column(c)
			if !ok {
				continue
			}
			gs, _ := got.Column(c)
			for row := 0; row <= cut; row++ {
				assert.Truef(t, sameValue(ws[row], gs[row]), "cut %d: %s[%d]", cut, c, row)
			}
		}
	}
}

func TestCreateAllFeatures_LagSpotCheck(t *testing.T) {
	in := monthlyPanel(3)
	out := NewEngineer(DefaultTrainCutoff).CreateAllFeatures(in)

	assert.True(t, math.IsNaN(out.LVol[0]))
	for i := 1; i < in.Len(); i++ {
		assert.Equal(t, in.Volatility[i-1], out.LVol[i])
		assert.Equal(t, in.CrisisProb[i-1], out.LRegime[i])
		assert.Equal(t, in.Intensity[i-1], out.LInten[i])
		assert.Equal(t, in.GPR[i-1], out.LGPR[i])
	}
	for i := 2; i < in.Len(); i++ {
		assert.InDelta(t, in.WTI[i-1]/in.WTI[i-2]-1, out.LWTIRet[i], 1e-12)
		assert.InDelta(t, in.Score[i-1]-in.Score[i-2], out.LNewsShk[i], 1e-12)
		assert.InDelta(t, out.LVol[i]-out.LVol[i-1], out.LAccel[i], 1e-12)
	}
	assert.True(t, math.IsNaN(out.LWTIRet[1]))

	for i := range out.RegimeLabel {
		want := 0.0
		if out.LRegime[i] > 0.5 {
			want = 1
		}
		assert.Equal(t, want, out.RegimeLabel[i])
	}
	assert.Equal(t, 0.0, out.RegimeLabel[0], "missing L_Regime falls in label 0")
}

func TestCreateAllFeatures_Interactions(t *testing.T) {
	in := monthlyPanel(4)
	out := NewEngineer(DefaultTrainCutoff).CreateAllFeatures(in)

	for i := 1; i < in.Len(); i++ {
		assert.InDelta(t, out.LRegime[i]*out.ScoreCentered[i], out.LStateSSafe[i], 1e-12)
		assert.InDelta(t, out.ScoreCentered[i]*math.Log1p(out.LInten[i]), out.LCrowdSafe[i], 1e-12)
	}
}

func TestCreateAllFeatures_TrainOnlyCentering(t *testing.T) {
	base := monthlyPanel(11)
	e := NewEngineer(DefaultTrainCutoff)
	ref := e.CreateAllFeatures(base)
	refMean := e.TrainStats().ScoreMean

	// mean of Score over Jan-Nov 2020: the lag of the training rows
	var sum float64
	for i := 0; i < 11; i++ {
		sum += base.Score[i]
	}
	assert.InDelta(t, sum/11, refMean, 1e-12)
	assert.Equal(t, 12, e.TrainStats().TrainRows)

	t.Run("test rows do not move the mean", func(t *testing.T) {
		p := base.Clone()
		for i := 12; i < p.Len(); i++ {
			p.Score[i] += 3
		}
		out := e.CreateAllFeatures(p)
		assert.Equal(t, refMean, e.TrainStats().ScoreMean)
		for i := 0; i < 12; i++ {
			assert.True(t, sameValue(ref.ScoreCentered[i], out.ScoreCentered[i]), "row %d", i)
		}
	})

	t.Run("training rows shift every row", func(t *testing.T) {
		p := base.Clone()
		p.Score[3] += 1
		out := e.CreateAllFeatures(p)
		assert.InDelta(t, refMean+1.0/11, e.TrainStats().ScoreMean, 1e-12)
		assert.True(t, math.IsNaN(out.ScoreCentered[0]))
		for i := 1; i < p.Len(); i++ {
			assert.NotEqualf(t, ref.ScoreCentered[i], out.ScoreCentered[i], "row %d", i)
		}
	})
}

func TestCreateAllFeatures_PositionalCentering(t *testing.T) {
	p := &models.MarketPanel{Score: models.Series{1, 2, 3, 4, 100, 200}}
	e := NewEngineer(DefaultTrainCutoff)
	out := e.CreateAllFeatures(p)

	// training rows 0..2 -> lagged {NaN, 1, 2}
	assert.InDelta(t, 1.5, e.TrainStats().ScoreMean, 1e-12)
	assert.Equal(t, 3, e.TrainStats().TrainRows)
	assertSeries(t, models.Series{nan, -0.5, 0.5, 1.5, 2.5, 98.5}, out.ScoreCentered)
}

func TestCenteringModes(t *testing.T) {
	a := monthlyPanel(21)
	b := monthlyPanel(22)

	t.Run("refit recomputes per call", func(t *testing.T) {
		e := NewEngineer(DefaultTrainCutoff)
		e.CreateAllFeatures(a)
		meanA := e.TrainStats().ScoreMean
		e.CreateAllFeatures(b)
		meanB := e.TrainStats().ScoreMean
		assert.NotEqual(t, meanA, meanB)
	})

	t.Run("fit once freezes the first mean", func(t *testing.T) {
		e := NewEngineer(DefaultTrainCutoff, WithCenteringMode(CenteringFitOnce))
		e.CreateAllFeatures(a)
		meanA := e.TrainStats().ScoreMean

		out := e.CreateAllFeatures(b)
		assert.Equal(t, meanA, e.TrainStats().ScoreMean)
		assert.InDelta(t, b.Score[5]-meanA, out.ScoreCentered[6], 1e-12)

		e.Reset()
		assert.False(t, e.TrainStats().Fitted)
		e.CreateAllFeatures(b)
		assert.NotEqual(t, meanA, e.TrainStats().ScoreMean)
	})

	t.Run("explicit fit", func(t *testing.T) {
		e := NewEngineer(DefaultTrainCutoff, WithCenteringMode(CenteringFitOnce))
		require.NoError(t, e.Fit(a))
		meanA := e.TrainStats().ScoreMean
		e.CreateAllFeatures(b)
		assert.Equal(t, meanA, e.TrainStats().ScoreMean)

		err := e.Fit(&models.MarketPanel{Volatility: models.Series{1}})
		assert.True(t, errors.Is(err, ErrMissingColumn))
	})

	t.Run("no training rows leaves the engineer unfitted", func(t *testing.T) {
		late := monthlyPanel(23)
		for i := range late.Dates {
			late.Dates[i] = late.Dates[i].AddDate(2, 0, 0)
		}

		e := NewEngineer(DefaultTrainCutoff, WithCenteringMode(CenteringFitOnce))
		err := e.Fit(late)
		assert.ErrorIs(t, err, ErrNoTrainingRows)
		assert.False(t, e.TrainStats().Fitted)
		assert.Zero(t, e.TrainStats().TrainRows)

		out := e.CreateAllFeatures(late)
		assert.True(t, math.IsNaN(out.ScoreCentered[5]))
		assert.False(t, e.TrainStats().Fitted)

		out = e.CreateAllFeatures(a)
		stats := e.TrainStats()
		require.True(t, stats.Fitted)
		assert.Equal(t, 12, stats.TrainRows)
		assert.Zero(t, out.ScoreCentered.CountNaN(1, out.Len()))
		assert.InDelta(t, a.Score[5]-stats.ScoreMean, out.ScoreCentered[6], 1e-12)
	})
}

func TestCreateAllFeatures_Idempotent(t *testing.T) {
	e := NewEngineer(DefaultTrainCutoff)
	first := e.CreateAllFeatures(monthlyPanel(5))
	second := e.CreateAllFeatures(&first.MarketPanel)

	for _, c := range first.Columns() {
		if c == models.ColDate {
			continue
		}
		a, _ := first.Column(c)
		b, ok := second.Column(c)
		require.Truef(t, ok, "%s missing on rerun", c)
		for i := range a {
			assert.True(t, sameValue(a[i], b[i]))
		}
	}
}

func TestCreateBinaryTarget(t *testing.T) {
	e := NewEngineer(DefaultTrainCutoff)
	out := e.CreateAllFeatures(&models.MarketPanel{Volatility: models.Series{0.1, 0.3, 0.2, 0.5}})

	require.NoError(t, e.CreateBinaryTarget(out))
	assertSeries(t, models.Series{nan, 1, 0, 1}, out.VolDirection)

	for _, set := range models.AllFeatureSets() {
		cols, err := e.FeatureSet(out, set)
		require.NoError(t, err)
		assert.NotContains(t, cols, models.ColVolDirection)
	}
}

func TestCreateBinaryTarget_MissingVolatility(t *testing.T) {
	var buf bytes.Buffer
	e := NewEngineer(DefaultTrainCutoff, WithLogger(logger.NewWriter(&buf)))
	out := e.CreateAllFeatures(&models.MarketPanel{Score: models.Series{1, 2, 3}})
	_, colsBefore := out.Shape()

	err := e.CreateBinaryTarget(out)
	assert.True(t, errors.Is(err, ErrMissingColumn))
	assert.Nil(t, out.VolDirection)
	_, colsAfter := out.Shape()
	assert.Equal(t, colsBefore, colsAfter)

	l := findLog(readLogs(t, &buf), "cannot create target")
	require.NotNil(t, l)
	assert.Equal(t, "error", l["level"])
}

func TestSelectors_PartialInput(t *testing.T) {
	full := monthlyPanel(9)
	in := &models.MarketPanel{Dates: full.Dates, Volatility: full.Volatility, CrisisProb: full.CrisisProb}

	var buf bytes.Buffer
	e := NewEngineer(DefaultTrainCutoff, WithLogger(logger.NewWriter(&buf)))
	out := e.CreateAllFeatures(in)
	buf.Reset()

	rf11 := e.RF11Features(out)
	assert.Equal(t, []models.Column{
		models.ColLVol, models.ColLRegime, models.ColLAccel, models.ColLMSVolSafe, models.ColLVolStd,
	}, rf11)

	l := findLog(readLogs(t, &buf), "features missing from panel")
	require.NotNil(t, l)
	assert.Equal(t, "rf11", l["set"])
	missing, _ := l["missing"].(string)
	for _, c := range []string{"L_Inten", "L_WTI_Ret", "L_GPR", "L_News_Shk", "L_State_S_Safe", "L_Crowd_Safe"} {
		assert.Contains(t, missing, c)
	}
	assert.False(t, strings.Contains(missing, "L_Vol,"))

	assert.Equal(t, []models.Column{models.ColLVol, models.ColLRegime, models.ColLAccel}, e.NPRS1Features(out))
}

func TestSelectors_EmptyPanel(t *testing.T) {
	e := NewEngineer(DefaultTrainCutoff)
	out := e.CreateAllFeatures(&models.MarketPanel{})

	assert.Empty(t, e.RF11Features(out))
	assert.NotNil(t, e.RF11Features(out))
	rows, cols := out.Shape()
	assert.Zero(t, rows)
	assert.Zero(t, cols)
}

func TestSelectors_Idempotent(t *testing.T) {
	e := NewEngineer(DefaultTrainCutoff)
	out := e.CreateAllFeatures(monthlyPanel(10))

	assert.Equal(t, e.NPRS1Features(out), e.NPRS1Features(out))
	assert.Equal(t, e.RF11Features(out), e.RF11Features(out))

	_, err := e.FeatureSet(out, "xgb")
	assert.Error(t, err)
}

func TestValidateFeatures_Gate(t *testing.T) {
	e := NewEngineer(DefaultTrainCutoff)
	cols := []models.Column{models.ColLVol, models.ColLRegime}

	t.Run("gap in test window fails", func(t *testing.T) {
		out := e.CreateAllFeatures(monthlyPanel(12))
		out.LVol[15] = math.NaN()
		report := e.ValidateFeatures(out, cols)
		assert.False(t, report.Valid)
		assert.Equal(t, map[models.Column]int{models.ColLVol: 1}, report.NaNCounts)
		assert.Empty(t, report.Missing)
	})

	t.Run("gap before cutoff passes", func(t *testing.T) {
		out := e.CreateAllFeatures(monthlyPanel(12))
		out.LVol[8] = math.NaN()
		report := e.ValidateFeatures(out, cols)
		assert.True(t, report.Valid)
		assert.Empty(t, report.NaNCounts)
	})

	t.Run("cutoff row belongs to test window", func(t *testing.T) {
		out := e.CreateAllFeatures(monthlyPanel(12))
		out.LRegime[12] = math.NaN() // 2021-01-01
		report := e.ValidateFeatures(out, cols)
		assert.False(t, report.Valid)
		assert.Equal(t, 1, report.NaNCounts[models.ColLRegime])
	})

	t.Run("missing column names it", func(t *testing.T) {
		out := e.CreateAllFeatures(monthlyPanel(12))
		report := e.ValidateFeatures(out, []models.Column{models.ColLVol, "L_Oil_Skew"})
		assert.False(t, report.Valid)
		assert.Equal(t, []models.Column{"L_Oil_Skew"}, report.Missing)
	})
}

func TestValidateFeatures_WarmupAfterCutoff(t *testing.T) {
	// cutoff at row 3: L_Vol_Std has no full window until row 6
	in := monthlyPanel(13)
	e := NewEngineer(in.Dates[3])
	out := e.CreateAllFeatures(in)

	report := e.ValidateFeatures(out, e.RF11Features(out))
	assert.False(t, report.Valid)
	assert.Equal(t, 3, report.NaNCounts[models.ColLVolStd])
	assert.NotContains(t, report.NaNCounts, models.ColLVol)
}

func TestValidateFeatures_Positional(t *testing.T) {
	e := NewEngineer(DefaultTrainCutoff)
	vol := models.Series{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	out := e.CreateAllFeatures(&models.MarketPanel{Volatility: vol})
	report := e.ValidateFeatures(out, []models.Column{models.ColLVol})
	assert.True(t, report.Valid)
	assert.Equal(t, "positional", report.Partition)
	assert.Equal(t, 5, report.TestRows)

	out.LVol[7] = math.NaN()
	report = e.ValidateFeatures(out, []models.Column{models.ColLVol})
	assert.False(t, report.Valid)
	assert.Equal(t, 1, report.NaNCounts[models.ColLVol])
}

func TestParseCutoff(t *testing.T) {
	c, err := ParseCutoff("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTrainCutoff, c)

	c, err = ParseCutoff("2022-06-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC), c)

	_, err = ParseCutoff("june")
	assert.Error(t, err)

	assert.Equal(t, DefaultTrainCutoff, NewEngineer(time.Time{}).Cutoff())
}

func TestParseCenteringMode(t *testing.T) {
	m, err := ParseCenteringMode("fit_once")
	require.NoError(t, err)
	assert.Equal(t, CenteringFitOnce, m)
	assert.Equal(t, "fit_once", m.String())

	m, err = ParseCenteringMode("")
	require.NoError(t, err)
	assert.Equal(t, CenteringRefit, m)

	_, err = ParseCenteringMode("sometimes")
	assert.Error(t, err)
}
