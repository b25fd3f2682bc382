// Package policyopa evaluates upload admission rules written in Rego.
package policyopa

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bcromer77/prooftimelines/internal/domain"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
)

const uploadQuery = "data.prooftimelines.upload.deny"

//go:embed upload.rego
var defaultPolicy string

// Engine implements domain.UploadPolicy. Limits from configuration are
// passed to the policy as input so a custom policy can use them.
type Engine struct {
	query            rego.PreparedEvalQuery
	policyHash       string
	maxBytes         int64
	allowedMimeTypes []string
}

type Options struct {
	// PolicyPath is a .rego file or directory; empty uses the built-in policy.
	PolicyPath       string
	MaxBytes         int64
	AllowedMimeTypes []string
}

func NewEngine(ctx context.Context, opts Options) (*Engine, error) {
	capabilities := ast.CapabilitiesForThisVersion()
	capabilities.Builtins = filterBuiltins(capabilities.Builtins)
	compiler := ast.NewCompiler().WithCapabilities(capabilities)

	args := []func(*rego.Rego){
		rego.Query(uploadQuery),
		rego.Compiler(compiler),
		rego.StrictBuiltinErrors(true),
	}
	var policyHash string
	if opts.PolicyPath != "" {
		hash, err := ComputePolicyHashFromPath(opts.PolicyPath)
		if err != nil {
			return nil, fmt.Errorf("hash upload policy: %w", err)
		}
		policyHash = hash
		args = append(args, rego.Load([]string{opts.PolicyPath}, nil))
	} else {
		policyHash = sha256Hex([]byte(defaultPolicy))
		args = append(args, rego.Module("upload.rego", defaultPolicy))
	}

	prepared, err := rego.New(args...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile upload policy: %w", err)
	}
	if err := assertNoForbiddenBuiltins(compiler); err != nil {
		return nil, err
	}
	allowed := make([]string, 0, len(opts.AllowedMimeTypes))
	allowed = append(allowed, opts.AllowedMimeTypes...)
	return &Engine{
		query:            prepared,
		policyHash:       policyHash,
		maxBytes:         opts.MaxBytes,
		allowedMimeTypes: allowed,
	}, nil
}

func (e *Engine) PolicyHash() string {
	return e.policyHash
}

func (e *Engine) Evaluate(ctx context.Context, candidate domain.UploadCandidate) ([]domain.PolicyViolation, error) {
	if e == nil {
		return nil, errors.New("policy engine is nil")
	}
	input := map[string]any{
		"filename":           candidate.Filename,
		"mime_type":          candidate.MimeType,
		"byte_length":        candidate.ByteLength,
		"max_bytes":          e.maxBytes,
		"allowed_mime_types": e.allowedMimeTypes,
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, err
	}
	// an undefined deny set means nothing was denied
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, nil
	}
	violations, err := decodeViolations(results[0].Expressions[0].Value)
	if err != nil {
		return nil, err
	}
	sort.Slice(violations, func(i, j int) bool {
		if violations[i].Code == violations[j].Code {
			return violations[i].Message < violations[j].Message
		}
		return violations[i].Code < violations[j].Code
	})
	return violations, nil
}

func decodeViolations(value any) ([]domain.PolicyViolation, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out []domain.PolicyViolation
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decode policy result: %w", err)
	}
	return out, nil
}

func assertNoForbiddenBuiltins(compiler *ast.Compiler) error {
	if compiler == nil {
		return errors.New("policy compiler is nil")
	}
	forbidden := make(map[string]struct{})
	for _, module := range compiler.Modules {
		ast.WalkTerms(module, func(term *ast.Term) bool {
			call, ok := term.Value.(ast.Call)
			if !ok || len(call) == 0 || call[0] == nil {
				return false
			}
			name := call[0].Value.String()
			if _, ok := ast.BuiltinMap[name]; !ok {
				return false
			}
			if _, ok := allowedBuiltins[name]; ok {
				return false
			}
			forbidden[name] = struct{}{}
			return false
		})
	}
	if len(forbidden) == 0 {
		return nil
	}
	names := make([]string, 0, len(forbidden))
	for name := range forbidden {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Errorf("forbidden builtins: %s", strings.Join(names, ", "))
}
