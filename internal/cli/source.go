package cli

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/blagoySimandov/certmapper/internal/blob"
	"github.com/blagoySimandov/certmapper/internal/spreadsheet"
)

// source locates a workbook either on disk or in a Cloud Storage bucket.
type source struct {
	store blob.Store
	name  string
}

func splitLocation(location string) (storeURI, name string) {
	if rest, ok := strings.CutPrefix(location, "gs://"); ok {
		bucket, object, _ := strings.Cut(rest, "/")
		return "gs://" + bucket, object
	}
	return filepath.Dir(location), filepath.Base(location)
}

func openSource(ctx context.Context, location string) (*source, error) {
	storeURI, name := splitLocation(location)
	if name == "" {
		return nil, fmt.Errorf("no file name in %q", location)
	}
	store, err := blob.New(ctx, storeURI)
	if err != nil {
		return nil, err
	}
	return &source{store: store, name: name}, nil
}

func (s *source) load(ctx context.Context) (*spreadsheet.Workbook, error) {
	format, err := spreadsheet.FormatFromName(s.name)
	if err != nil {
		return nil, err
	}
	r, err := s.store.Open(ctx, s.name)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return spreadsheet.Open(r, format)
}

// outputName places updated_<name> next to the input.
func (s *source) outputName() string {
	dir := path.Dir(s.name)
	if dir == "." {
		return spreadsheet.OutputName(s.name)
	}
	return path.Join(dir, spreadsheet.OutputName(s.name))
}

func loadWorkbook(ctx context.Context, location string) (*spreadsheet.Workbook, error) {
	src, err := openSource(ctx, location)
	if err != nil {
		return nil, err
	}
	defer src.store.Close()
	return src.load(ctx)
}
