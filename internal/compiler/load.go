package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// LoadManifests loads every CUE package instance rooted at dir and
// compiles it into a Manifest. Files of one package are unified before
// compiling, so an operation may be split across files.
func LoadManifests(dir string) ([]Manifest, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("manifest directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("manifest directory: not a directory: %s", dir)
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}

	manifests := make([]Manifest, 0, len(instances))
	for _, inst := range instances {
		if inst.Err != nil {
			return nil, formatCUEError(inst.Err)
		}
		value := ctx.BuildInstance(inst)
		if err := value.Err(); err != nil {
			return nil, formatCUEError(err)
		}
		m, err := CompileManifest(value)
		if err != nil {
			return nil, err
		}
		m.Source = inst.Dir
		manifests = append(manifests, *m)
	}
	return manifests, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths in
// lexical order.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}
