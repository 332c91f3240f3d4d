package workload

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/taskgrid/internal/ctxlog"
)

// LoadGrid reads a single .hcl file or a directory of .hcl files and
// returns the decoded workload.
func LoadGrid(ctx context.Context, path string) (*Grid, error) {
	logger := ctxlog.FromContext(ctx)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read grid path: %w", err)
	}

	files := []string{path}
	if info.IsDir() {
		if files, err = findGridFiles(path); err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no .hcl files found under %s", path)
		}
	}
	logger.Debug("Grid files located.", "count", len(files))

	parser := hclparse.NewParser()
	evalCtx := evalContext()

	grid := &Grid{}
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse %s: %w", file, diags)
		}

		var gf gridFile
		if diags := gohcl.DecodeBody(hclFile.Body, evalCtx, &gf); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode %s: %w", file, diags)
		}
		for _, block := range gf.Jobs {
			job, err := decodeJob(block, evalCtx)
			if err != nil {
				return nil, err
			}
			grid.Jobs = append(grid.Jobs, job)
		}
	}
	logger.Debug("Grid decoded.", "jobs", len(grid.Jobs))
	return grid, nil
}

// findGridFiles recursively collects .hcl files under root.
func findGridFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".hcl") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// evalContext builds the expression evaluation context for grid files,
// exposing the process environment as env.<NAME>.
func evalContext() *hcl.EvalContext {
	envMap := make(map[string]cty.Value)
	for _, e := range os.Environ() {
		pair := strings.SplitN(e, "=", 2)
		if len(pair) == 2 {
			envMap[pair[0]] = cty.StringVal(pair[1])
		}
	}

	env := cty.EmptyObjectVal
	if len(envMap) > 0 {
		env = cty.ObjectVal(envMap)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": env},
	}
}
