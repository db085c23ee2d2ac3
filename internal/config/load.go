package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

// LoadMode controls how errors are handled during loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the federations loaded from a directory.
type LoadResult struct {
	Federations []*Federation
	FileCount   int // Number of CUE files found
}

// Federation returns the loaded federation with the given id, or nil.
func (r *LoadResult) Federation(id string) *Federation {
	for _, f := range r.Federations {
		if f.ID == id {
			return f
		}
	}
	return nil
}

// LoadError represents an error that occurred during loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes shared with the CLI's JSON output.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	ErrCodeSources  = "E101" // Missing or duplicate sources
	ErrCodeOptions  = "E102" // Invalid option value
	ErrCodeSchema   = "E103" // Definition does not match the schema
	ErrCodeNoFedDef = "E104" // No federation declared
)

// Load reads every federation declared in the CUE package in dir.
// With LoadModeFailFast it returns on the first error; with
// LoadModeCollectAll it compiles every federation and returns all errors.
func Load(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		return loadFailed(ErrCodeNotFound, "config directory not found: %s", dir)
	case err != nil:
		return loadFailed(ErrCodeNotFound, "config directory: %v", err)
	case !info.IsDir():
		return loadFailed(ErrCodeNotFound, "not a directory: %s", dir)
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return loadFailed(ErrCodeScanError, "scanning %s: %v", dir, err)
	}
	if len(cueFiles) == 0 {
		return loadFailed(ErrCodeNoFiles, "no CUE files found in %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return loadFailed(ErrCodeLoadFailed, "no CUE instances loaded")
	}
	if err := instances[0].Err; err != nil {
		return loadFailed(ErrCodeLoadFailed, "loading CUE files: %v", err)
	}
	value := cuecontext.New().BuildInstance(instances[0])
	if err := value.Err(); err != nil {
		return loadFailed(ErrCodeBuildFailed, "building CUE value: %v", err)
	}

	result := &LoadResult{FileCount: len(cueFiles)}
	errs := compileAll(value, mode, result)
	if len(result.Federations) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoFedDef, Message: "no federation declared"})
	}
	sort.Slice(result.Federations, func(i, j int) bool { return result.Federations[i].ID < result.Federations[j].ID })
	return result, errs
}

// LoadString compiles federations from CUE source text.
func LoadString(src string) (*LoadResult, []error) {
	value := cuecontext.New().CompileString(src)
	if err := value.Err(); err != nil {
		return loadFailed(ErrCodeBuildFailed, "building CUE value: %v", err)
	}
	result := &LoadResult{}
	errs := compileAll(value, LoadModeCollectAll, result)
	if len(result.Federations) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoFedDef, Message: "no federation declared"})
	}
	return result, errs
}

func loadFailed(code, format string, args ...any) (*LoadResult, []error) {
	return nil, []error{&LoadError{Code: code, Message: fmt.Sprintf(format, args...)}}
}

func compileAll(value cue.Value, mode LoadMode, result *LoadResult) []error {
	var errs []error
	feds := value.LookupPath(cue.ParsePath("federation"))
	if !feds.Exists() {
		return nil
	}
	iter, err := feds.Fields()
	if err != nil {
		return []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating federations: %v", err)}}
	}
	for iter.Next() {
		fed, err := CompileFederation(iter.Label(), iter.Value())
		if err != nil {
			errs = append(errs, convertCompileError(err, "federation."+iter.Label()))
			if mode == LoadModeFailFast {
				return errs
			}
			continue
		}
		result.Federations = append(result.Federations, fed)
	}
	return errs
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

// convertCompileError converts a compile error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", context, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// MapFieldToErrorCode maps a compile error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "sources" || strings.HasPrefix(field, "sources["):
		return ErrCodeSources
	case strings.HasPrefix(field, "options."):
		return ErrCodeOptions
	case field == "cue":
		return ErrCodeSchema
	default:
		return ErrCodeGeneric
	}
}
