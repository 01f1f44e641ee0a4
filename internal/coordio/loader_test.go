package coordio

import (
	"math"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pointqc/internal/monitoring"
	"github.com/banshee-data/pointqc/internal/pointmatch"
	"github.com/banshee-data/pointqc/internal/testutil"
)

func quietLogs(t *testing.T) {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = original })
}

func file(content string) *fstest.MapFile { return &fstest.MapFile{Data: []byte(content)} }

func TestLoadDataset(t *testing.T) {
	quietLogs(t)

	gtFS := fstest.MapFS{
		"img_02.csv": file("y,x\n5,5\n"),
		"img_01.csv": file("y,x\n0,0\n10,10\n"),
		"notes.txt":  file("ignored"),
	}
	predFS := fstest.MapFS{
		"img_01_predict.csv": file("y,x\n0.5,0.5\n20,20\n"),
		"img_02_predict.csv": file("y,x\n"),
	}

	ds, err := LoadDataset(gtFS, predFS, LoadOptions{Dim: 2, PredictionSuffix: DefaultPredictionSuffix})
	require.NoError(t, err)

	assert.Equal(t, 2, ds.Len())
	assert.Equal(t, []string{"img_01", "img_02"}, ds.Names)
	assert.Equal(t, []string{"img_01_predict.csv", "img_02_predict.csv"}, ds.PredFiles)
	assert.Equal(t, 2, ds.GT[0].Len())
	assert.Equal(t, [][]float64{{0.5, 0.5}, {20, 20}}, ds.Pred[0].Points())
	assert.Equal(t, 0, ds.Pred[1].Len())
	assert.Equal(t, 2, ds.Pred[1].Dim())
}

func TestLoadDataset_FeedsEngine(t *testing.T) {
	quietLogs(t)

	gtFS := fstest.MapFS{"a.csv": file("y,x\n0,0\n10,10\n")}
	predFS := fstest.MapFS{"a_predict.csv": file("y,x\n0.5,0.5\n20,20\n")}
	ds, err := LoadDataset(gtFS, predFS, LoadOptions{Dim: 2, PredictionSuffix: "_predict"})
	require.NoError(t, err)

	opts := pointmatch.DefaultOptions()
	opts.Names = ds.Names
	res, err := pointmatch.EvaluateDataset(ds.GT, ds.Pred, opts)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, res.Metrics.F1, 1e-12)
	assert.InDelta(t, math.Sqrt(0.5), res.Metrics.MeanDistance, 1e-12)
}

func TestLoadDataset_Errors(t *testing.T) {
	quietLogs(t)

	tests := []struct {
		name    string
		gt      fstest.MapFS
		pred    fstest.MapFS
		wantErr string
	}{
		{
			name:    "count mismatch",
			gt:      fstest.MapFS{"a.csv": file("y,x\n"), "b.csv": file("y,x\n")},
			pred:    fstest.MapFS{"a_predict.csv": file("y,x\n")},
			wantErr: "ground truth (2) and predictions (1)",
		},
		{
			name:    "name mismatch",
			gt:      fstest.MapFS{"a.csv": file("y,x\n")},
			pred:    fstest.MapFS{"b_predict.csv": file("y,x\n")},
			wantErr: "do not match",
		},
		{
			name:    "bad csv",
			gt:      fstest.MapFS{"a.csv": file("q,r\n1,2\n")},
			pred:    fstest.MapFS{"a_predict.csv": file("y,x\n")},
			wantErr: "a.csv: no coordinate columns",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadDataset(tt.gt, tt.pred, LoadOptions{Dim: 2, PredictionSuffix: "_predict"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadDataset_UnsupportedDimension(t *testing.T) {
	quietLogs(t)

	gtFS := fstest.MapFS{"a.csv": file("y,x\n1,2\n")}
	predFS := fstest.MapFS{"a.csv": file("y,x\n1,2\n")}
	_, err := LoadDataset(gtFS, predFS, LoadOptions{Dim: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported dimensionality")
}

func TestPairFiles(t *testing.T) {
	tests := []struct {
		name   string
		gt     []string
		pred   []string
		suffix string
		ok     bool
	}{
		{"exact stems", []string{"a.csv"}, []string{"a.csv"}, "_predict", true},
		{"suffix stripped", []string{"cell_7.csv"}, []string{"cell_7_predict.csv"}, "_predict", true},
		{"prediction stem is prefix", []string{"cell_7_gt.csv"}, []string{"cell_7.csv"}, "_predict", true},
		{"suffix cut at first occurrence", []string{"x.csv"}, []string{"x_predict_v2.csv"}, "_predict", true},
		{"no suffix stripping", []string{"a.csv"}, []string{"a_predict.csv"}, "", false},
		{"different names", []string{"a.csv"}, []string{"b.csv"}, "_predict", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			names, err := PairFiles(tt.gt, tt.pred, tt.suffix)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, Stem(tt.gt[0]), names[0])
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestStem(t *testing.T) {
	assert.Equal(t, "img", Stem("dir/img.csv"))
	assert.Equal(t, "img.tar", Stem("img.tar.gz"))
	assert.Equal(t, "noext", Stem("noext"))
}

func TestLoadDirs(t *testing.T) {
	quietLogs(t)

	root := t.TempDir()
	gtDir := filepath.Join(root, "gt")
	predDir := filepath.Join(root, "pred")
	testutil.WriteFile(t, gtDir, "s1.csv", testutil.CoordsCSV([]string{"z", "y", "x"}, [][]float64{{1, 2, 3}}))
	testutil.WriteFile(t, predDir, "s1_predict.csv", testutil.CoordsCSV([]string{"z", "y", "x"}, [][]float64{{1, 2, 4}}))

	ds, err := LoadDirs(gtDir, predDir, LoadOptions{Dim: 3, PredictionSuffix: "_predict"})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ds.Names)
	assert.Equal(t, 3, ds.GT[0].Dim())

	_, err = LoadDirs(filepath.Join(root, "missing"), predDir, LoadOptions{Dim: 3})
	assert.Error(t, err)

	notDir := testutil.WriteFile(t, root, "file.csv", "y,x\n")
	_, err = LoadDirs(notDir, predDir, LoadOptions{Dim: 3})
	assert.ErrorContains(t, err, "not a directory")
}
