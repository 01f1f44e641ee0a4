// Package coordio loads QC datasets: it discovers coordinate CSV files in a
// ground-truth and a prediction directory, pairs them by filename and parses
// them into index-aligned coordinate sets for the pointmatch engine.
package coordio

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/banshee-data/pointqc/internal/monitoring"
	"github.com/banshee-data/pointqc/internal/pointmatch"
)

// DefaultPredictionSuffix is stripped from prediction stems before pairing.
const DefaultPredictionSuffix = "_predict"

// LoadOptions configures LoadDataset.
type LoadOptions struct {
	// Dim is 2 or 3.
	Dim int
	// PredictionSuffix is cut from prediction stems (at its first
	// occurrence) before pairing. Empty disables stripping.
	PredictionSuffix string
}

// Dataset is a paired, parsed QC dataset. All slices are index-aligned.
type Dataset struct {
	Names     []string
	GTFiles   []string
	PredFiles []string
	GT        []pointmatch.CoordinateSet
	Pred      []pointmatch.CoordinateSet
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return len(d.Names) }

// LoadDirs is LoadDataset over two directories on the local filesystem.
func LoadDirs(gtDir, predDir string, opts LoadOptions) (*Dataset, error) {
	for _, dir := range []string{gtDir, predDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", dir, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", dir)
		}
	}
	return LoadDataset(os.DirFS(gtDir), os.DirFS(predDir), opts)
}

// LoadDataset lists *.csv in the root of each filesystem (sorted by name),
// pairs them by index and parses every file.
//
// Pairing rule: the prediction stem, cut at the first PredictionSuffix, must
// be a prefix of the ground-truth stem at the same index.
func LoadDataset(gtFS, predFS fs.FS, opts LoadOptions) (*Dataset, error) {
	gtFiles, err := ListCSV(gtFS)
	if err != nil {
		return nil, fmt.Errorf("list ground truth: %w", err)
	}
	predFiles, err := ListCSV(predFS)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}

	names, err := PairFiles(gtFiles, predFiles, opts.PredictionSuffix)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{
		Names:     names,
		GTFiles:   gtFiles,
		PredFiles: predFiles,
		GT:        make([]pointmatch.CoordinateSet, len(names)),
		Pred:      make([]pointmatch.CoordinateSet, len(names)),
	}
	for i := range names {
		if ds.GT[i], err = readSet(gtFS, gtFiles[i], opts.Dim); err != nil {
			return nil, err
		}
		if ds.Pred[i], err = readSet(predFS, predFiles[i], opts.Dim); err != nil {
			return nil, err
		}
		monitoring.Debugf("paired %s with %s: %d gt, %d pred points",
			gtFiles[i], predFiles[i], ds.GT[i].Len(), ds.Pred[i].Len())
	}
	monitoring.Logf("loaded %d samples (%dD)", len(names), opts.Dim)
	return ds, nil
}

// ListCSV returns the *.csv file names in the root of fsys, sorted.
func ListCSV(fsys fs.FS) ([]string, error) {
	matches, err := fs.Glob(fsys, "*.csv")
	if err != nil {
		return nil, err
	}
	files := matches[:0]
	for _, m := range matches {
		info, err := fs.Stat(fsys, m)
		if err != nil {
			return nil, err
		}
		if info.Mode().IsRegular() {
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}

// PairFiles checks that gtFiles and predFiles correspond index by index and
// returns the sample names (ground-truth stems).
func PairFiles(gtFiles, predFiles []string, suffix string) ([]string, error) {
	if len(gtFiles) != len(predFiles) {
		return nil, fmt.Errorf("number of files in ground truth (%d) and predictions (%d) do not match",
			len(gtFiles), len(predFiles))
	}
	names := make([]string, len(gtFiles))
	for i := range gtFiles {
		gtStem := Stem(gtFiles[i])
		predBase := Stem(predFiles[i])
		if suffix != "" {
			predBase, _, _ = strings.Cut(predBase, suffix)
		}
		if !strings.HasPrefix(gtStem, predBase) {
			return nil, fmt.Errorf("ground truth %q and prediction %q do not match; check the filenames",
				gtFiles[i], predFiles[i])
		}
		names[i] = gtStem
	}
	return names, nil
}

// Stem returns the base name of p without its final extension.
func Stem(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

func readSet(fsys fs.FS, name string, dim int) (pointmatch.CoordinateSet, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return pointmatch.CoordinateSet{}, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	pts, err := ReadCoordsCSV(f, dim)
	if err != nil {
		return pointmatch.CoordinateSet{}, fmt.Errorf("%s: %w", name, err)
	}
	cs, err := pointmatch.NewCoordinateSet(dim, pts)
	if err != nil {
		return pointmatch.CoordinateSet{}, fmt.Errorf("%s: %w", name, err)
	}
	return cs, nil
}
