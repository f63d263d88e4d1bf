package header

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/sha3"

	"rpcclient/internal/jsonrpc"
)

// entrypoint is the function a header script must define
const entrypoint = "header"

// Script compiles a JavaScript header computation. The script must define
// header(payloads) returning a string; payloads is the array of outbound
// request objects. Each evaluation runs in a fresh runtime.
func Script(name, src string, logger zerolog.Logger) (Func, error) {
	program, err := goja.Compile(name, src, true)
	if err != nil {
		return nil, fmt.Errorf("failed to compile script: %w", err)
	}
	logger = logger.With().Str("component", "header-script").Str("header", name).Logger()

	return func(payloads []*jsonrpc.Request) (string, error) {
		r := NewRuntime(logger)
		if _, err := r.vm.RunProgram(program); err != nil {
			return "", fmt.Errorf("failed to run script: %w", err)
		}

		data, err := canonicalPayloads(payloads)
		if err != nil {
			return "", err
		}
		var plain []interface{}
		if err := json.Unmarshal(data, &plain); err != nil {
			return "", fmt.Errorf("failed to convert payloads: %w", err)
		}

		result, err := r.CallFunction(entrypoint, plain)
		if err != nil {
			return "", fmt.Errorf("script failed: %w", err)
		}
		if goja.IsUndefined(result) || goja.IsNull(result) {
			return "", fmt.Errorf("script returned no value")
		}
		return result.String(), nil
	}, nil
}

// Runtime wraps goja VM with header-script bindings
type Runtime struct {
	vm     *goja.Runtime
	logger zerolog.Logger
}

// NewRuntime creates a new Runtime with all necessary bindings
func NewRuntime(logger zerolog.Logger) *Runtime {
	vm := goja.New()
	r := &Runtime{
		vm:     vm,
		logger: logger,
	}
	r.setupConsole()
	r.setupUtils()
	return r
}

// setupConsole creates console.log and console.error bindings
func (r *Runtime) setupConsole() {
	console := r.vm.NewObject()

	console.Set("log", func(call goja.FunctionCall) goja.Value {
		r.logger.Info().Msgf("[script] %v", exportArgs(call))
		return goja.Undefined()
	})

	console.Set("error", func(call goja.FunctionCall) goja.Value {
		r.logger.Error().Msgf("[script] %v", exportArgs(call))
		return goja.Undefined()
	})

	r.vm.Set("console", console)
}

func exportArgs(call goja.FunctionCall) []interface{} {
	args := make([]interface{}, len(call.Arguments))
	for i, arg := range call.Arguments {
		args[i] = arg.Export()
	}
	return args
}

// setupUtils creates hashing and encoding helpers
func (r *Runtime) setupUtils() {
	utils := r.vm.NewObject()

	// keccak256 hashes a string (or 0x-prefixed hex) and returns 0x-hex
	utils.Set("keccak256", func(call goja.FunctionCall) goja.Value {
		data := r.bytesArg(call, "keccak256")
		hash := sha3.NewLegacyKeccak256()
		hash.Write(data)
		return r.vm.ToValue("0x" + hex.EncodeToString(hash.Sum(nil)))
	})

	// sha256Hex hashes a string (or 0x-prefixed hex) and returns plain hex
	utils.Set("sha256Hex", func(call goja.FunctionCall) goja.Value {
		sum := sha256.Sum256(r.bytesArg(call, "sha256Hex"))
		return r.vm.ToValue(hex.EncodeToString(sum[:]))
	})

	// stringifyJSON converts value to JSON string with Go encoding rules
	utils.Set("stringifyJSON", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(r.vm.ToValue("stringifyJSON requires value"))
		}
		data, err := json.Marshal(call.Arguments[0].Export())
		if err != nil {
			panic(r.vm.ToValue(fmt.Sprintf("JSON stringify error: %v", err)))
		}
		return r.vm.ToValue(string(data))
	})

	r.vm.Set("utils", utils)
}

// bytesArg reads the first argument as bytes; 0x-prefixed strings are hex decoded
func (r *Runtime) bytesArg(call goja.FunctionCall, fn string) []byte {
	if len(call.Arguments) < 1 {
		panic(r.vm.ToValue(fn + " requires 1 argument"))
	}
	s := call.Arguments[0].String()
	if strings.HasPrefix(s, "0x") {
		data, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
		if err != nil {
			panic(r.vm.ToValue(fmt.Sprintf("invalid hex string: %v", err)))
		}
		return data
	}
	return []byte(s)
}

// CallFunction calls a JavaScript function by name
func (r *Runtime) CallFunction(name string, args ...interface{}) (goja.Value, error) {
	fn, ok := goja.AssertFunction(r.vm.Get(name))
	if !ok {
		return nil, fmt.Errorf("function %s not found", name)
	}

	jsArgs := make([]goja.Value, len(args))
	for i, arg := range args {
		jsArgs[i] = r.vm.ToValue(arg)
	}

	return fn(goja.Undefined(), jsArgs...)
}
