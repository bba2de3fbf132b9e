package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/brunobiangulo/gosimulado/question"
)

// ImageOption configures WriteImages.
type ImageOption func(*imageOptions)

type imageOptions struct {
	storageKeys bool
}

// WithStorageKeys names files with question.StorageKey, for directories
// that are synced to object stores rejecting brackets and hyphens.
func WithStorageKeys() ImageOption {
	return func(o *imageOptions) { o.storageKeys = true }
}

// WriteImages writes every asset's bytes to dir under its FileName and
// returns the paths written. dir is created when missing; existing files
// with the same name are overwritten.
func WriteImages(dir string, assets []question.ImageAsset, opts ...ImageOption) ([]string, error) {
	if len(assets) == 0 {
		return nil, nil
	}
	var o imageOptions
	for _, fn := range opts {
		fn(&o)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating image dir: %w", err)
	}

	paths := make([]string, 0, len(assets))
	for _, a := range assets {
		if a.Name == "" || len(a.Data) == 0 {
			continue
		}
		if o.storageKeys {
			a.Name = question.StorageKey(a.Name)
		}
		p := filepath.Join(dir, a.FileName())
		if err := os.WriteFile(p, a.Data, 0o644); err != nil {
			return paths, fmt.Errorf("writing image %s: %w", a.FileName(), err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}
