// Package launch generates the container launch script from a recipe
// and assembles the external launcher invocation
package launch

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Overrides carries the template parameters the user set on the
// command line. Nil fields were not given and leave the recipe
// defaults in charge.
type Overrides struct {
	Port                 *int
	Host                 *string
	TensorParallel       *int
	GPUMemoryUtilization *float64
	MaxModelLen          *int
}

// Params renders the explicitly set overrides keyed by template
// parameter name. Solo runs default tensor_parallel to 1 unless the
// user set it.
func (o Overrides) Params(solo bool) map[string]string {
	params := map[string]string{}
	if o.Port != nil {
		params["port"] = strconv.Itoa(*o.Port)
	}
	if o.Host != nil {
		params["host"] = *o.Host
	}
	if o.TensorParallel != nil {
		params["tensor_parallel"] = strconv.Itoa(*o.TensorParallel)
	}
	if o.GPUMemoryUtilization != nil {
		params["gpu_memory_utilization"] = formatValue(*o.GPUMemoryUtilization)
	}
	if o.MaxModelLen != nil {
		params["max_model_len"] = strconv.Itoa(*o.MaxModelLen)
	}
	if solo && o.TensorParallel == nil {
		params["tensor_parallel"] = "1"
	}
	return params
}

// mergeParams overlays overrides on the recipe defaults; the override
// wins on key collision.
func mergeParams(defaults map[string]interface{}, overrides map[string]string) map[string]string {
	params := make(map[string]string, len(defaults)+len(overrides))
	for k, v := range defaults {
		params[k] = formatValue(v)
	}
	for k, v := range overrides {
		params[k] = v
	}
	return params
}

// formatValue renders a YAML scalar the way it reads in the recipe:
// integers without decimals, floats in their shortest form.
func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DuplicateFlag records a passthrough argument that names the same
// logical parameter as an active override.
type DuplicateFlag struct {
	// Arg is the passthrough argument as given, e.g. "--port=9000"
	Arg string

	// Override is the CLI flag it duplicates, e.g. "--port"
	Override string
}

// duplicateFlagTable maps serve-command flags to override parameter
// names. The table is deliberately closed: only these aliases are
// recognized.
var duplicateFlagTable = map[string]string{
	"--port":                   "port",
	"--host":                   "host",
	"--tensor-parallel-size":   "tensor_parallel",
	"-tp":                      "tensor_parallel",
	"--gpu-memory-utilization": "gpu_memory_utilization",
	"--max-model-len":          "max_model_len",
}

// DuplicateFlags reports passthrough arguments that duplicate an
// active override, checking both the bare flag and flag=value forms.
// Duplicates warn only; the serve command keeps last-wins semantics.
func DuplicateFlags(extraArgs []string, overrideParams map[string]string) []DuplicateFlag {
	var dups []DuplicateFlag
	for _, arg := range extraArgs {
		flag := arg
		if i := strings.IndexByte(arg, '='); i >= 0 {
			flag = arg[:i]
		}
		key, ok := duplicateFlagTable[flag]
		if !ok {
			continue
		}
		if _, active := overrideParams[key]; active {
			dups = append(dups, DuplicateFlag{
				Arg:      arg,
				Override: "--" + strings.ReplaceAll(key, "_", "-"),
			})
		}
	}
	return dups
}
