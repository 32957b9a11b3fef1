package compiler

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/koppla/internal/model"
)

// LoadMode controls how errors are handled while loading type definitions.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Load error codes.
const (
	ErrCodeGeneric     = "E001"
	ErrCodeScanError   = "E002"
	ErrCodeNoFiles     = "E003"
	ErrCodeLoadFailed  = "E004"
	ErrCodeNotFound    = "E005"
	ErrCodeBuildFailed = "E006"
	ErrCodeNoTypes     = "E007"
	ErrCodeInvalidType = "E104"
)

// LoadResult contains the types compiled from a directory, sorted by id.
type LoadResult struct {
	NodeTypes []model.NodeType `json:"node_types"`
	EdgeTypes []model.EdgeType `json:"edge_types"`
	FileCount int              `json:"file_count"`
}

// LoadError represents an error that occurred while loading type definitions.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadDir loads and compiles the CUE type definitions in dir.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func LoadDir(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("types directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing types directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result, errs := CompileValue(value, mode)
	result.FileCount = len(cueFiles)
	return result, errs
}

// CompileValue compiles the node_type and edge_type fields of a built value.
func CompileValue(value cue.Value, mode LoadMode) (*LoadResult, []error) {
	var errs []error
	result := &LoadResult{}

	fail := func(err error) bool {
		errs = append(errs, err)
		return mode == LoadModeFailFast
	}

	if nodes := value.LookupPath(cue.ParsePath("node_type")); nodes.Exists() {
		iter, err := nodes.Fields()
		if err != nil {
			if fail(&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating node types: %v", err)}) {
				return result, errs
			}
		} else {
			for iter.Next() {
				t, err := CompileNodeType(iter.Value())
				if err != nil {
					if fail(convertCompileError(err, "node_type."+iter.Label())) {
						return result, errs
					}
					continue
				}
				result.NodeTypes = append(result.NodeTypes, t)
			}
		}
	}

	if edges := value.LookupPath(cue.ParsePath("edge_type")); edges.Exists() {
		iter, err := edges.Fields()
		if err != nil {
			if fail(&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating edge types: %v", err)}) {
				return result, errs
			}
		} else {
			for iter.Next() {
				t, err := CompileEdgeType(iter.Value())
				if err != nil {
					if fail(convertCompileError(err, "edge_type."+iter.Label())) {
						return result, errs
					}
					continue
				}
				result.EdgeTypes = append(result.EdgeTypes, t)
			}
		}
	}

	if len(result.NodeTypes) == 0 && len(result.EdgeTypes) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoTypes, Message: "no node_type or edge_type found in types directory"})
	}

	slices.SortFunc(result.NodeTypes, func(a, b model.NodeType) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(result.EdgeTypes, func(a, b model.EdgeType) int { return cmp.Compare(a.ID, b.ID) })
	return result, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
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
	return files, err
}

func convertCompileError(err error, context string) *LoadError {
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    ErrCodeInvalidType,
			Message: fmt.Sprintf("%s: %s: %s", context, compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}
