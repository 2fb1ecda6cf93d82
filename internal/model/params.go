package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformedInput is returned when a dataset or parameter set is unusable.
// Requests failing with it are rejected before any process is launched.
var ErrMalformedInput = errors.New("malformed input")

var paramNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ParamSpec declares one parameter the computation accepts and the value used
// when a streaming request omits it.
type ParamSpec struct {
	Name    string  `yaml:"name"`
	Default float64 `yaml:"default"`
}

// DefaultParamSpecs are the backtester's parameters in invocation order.
var DefaultParamSpecs = []ParamSpec{
	{Name: "atr_mult_sl", Default: 1.094},
	{Name: "atr_mult_trail", Default: 4.093},
	{Name: "rr_target", Default: 3.990},
}

// Param is one named numeric parameter.
type Param struct {
	Name  string
	Value float64
}

// Params is an ordered parameter set.
type Params []Param

// Args renders the set as command-line flags in order: --name value ...
func (p Params) Args() []string {
	args := make([]string, 0, 2*len(p))
	for _, kv := range p {
		args = append(args, "--"+kv.Name, strconv.FormatFloat(kv.Value, 'f', -1, 64))
	}
	return args
}

// ValidateSpecs checks that parameter names are usable as flags and unique.
func ValidateSpecs(specs []ParamSpec) error {
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		if !paramNameRe.MatchString(s.Name) {
			return fmt.Errorf("invalid parameter name %q", s.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate parameter name %q", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// ResolveParams orders values according to specs. When useDefaults is false
// every spec must have a value; otherwise missing values take the spec
// default. Values for names that are not in specs are ignored.
func ResolveParams(specs []ParamSpec, values map[string]float64, useDefaults bool) (Params, error) {
	params := make(Params, 0, len(specs))
	var missing []string
	for _, s := range specs {
		v, ok := values[s.Name]
		if !ok {
			if !useDefaults {
				missing = append(missing, s.Name)
				continue
			}
			v = s.Default
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: parameter %s is not a finite number", ErrMalformedInput, s.Name)
		}
		params = append(params, Param{Name: s.Name, Value: v})
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing parameters: %s", ErrMalformedInput, strings.Join(missing, ", "))
	}
	return params, nil
}

// DecodeValues converts a JSON object of parameter values into floats. Each
// value may be a JSON number or a string holding a number.
func DecodeValues(raw map[string]json.RawMessage) (map[string]float64, error) {
	values := make(map[string]float64, len(raw))
	for name, msg := range raw {
		var f float64
		if err := json.Unmarshal(msg, &f); err == nil {
			values[name] = f
			continue
		}
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return nil, fmt.Errorf("%w: parameter %s must be a number", ErrMalformedInput, name)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: parameter %s must be a number", ErrMalformedInput, name)
		}
		values[name] = f
	}
	return values, nil
}
