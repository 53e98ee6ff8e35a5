package engine

// Hand-assembled Wasm fixtures. The agents under test are tiny (two host
// calls and a handful of constants), so the tests build the binaries
// directly instead of depending on an external assembler. Layout follows the
// Wasm 1.0 binary format: type, import, function, memory, export, code and
// data sections in that order.

const (
	secType     = 1
	secImport   = 2
	secFunction = 3
	secMemory   = 5
	secExport   = 7
	secCode     = 10
	secData     = 11

	valI32 = 0x7f

	opUnreachable = 0x00
	opLoop        = 0x03
	opEnd         = 0x0b
	opBr          = 0x0c
	opCall        = 0x10
	opI32Const    = 0x41

	blockTypeEmpty = 0x40

	exportKindFunc   = 0x00
	exportKindMemory = 0x02

	// Both host functions are always imported, so function indices are
	// fixed: 0 = get_input, 1 = set_output, 2 = the module's own function.
	fnGetInput  = 0
	fnSetOutput = 1
	fnOwn       = 2
)

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func sleb(v int32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !done {
			b |= 0x80
		}
		out = append(out, b)
		if done {
			return out
		}
	}
}

func wasmName(s string) []byte {
	return append(uleb(uint32(len(s))), s...)
}

func wasmSection(id byte, content []byte) []byte {
	out := []byte{id}
	out = append(out, uleb(uint32(len(content)))...)
	return append(out, content...)
}

// wasmAgent describes a test module. Every module imports both host
// functions and declares one linear memory; the knobs control exports, the
// entry body and an optional active data segment at offset zero.
type wasmAgent struct {
	memoryMinPages uint32 // defaults to 1
	exportMemory   bool
	entryBody      []byte // instructions, without the trailing end opcode
	entryName      string // defaults to wasm_function when exporting a body
	exportImportAs string // export import fnGetInput under this name (wrong-signature fixture)
	data           []byte // active data segment at offset 0
}

func (a wasmAgent) build() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	// Type section: type 0 = (i32, i32) -> (), type 1 = () -> ()
	types := uleb(2)
	types = append(types, 0x60, 2, valI32, valI32, 0)
	types = append(types, 0x60, 0, 0)
	out = append(out, wasmSection(secType, types)...)

	// Import section: env.get_input and env.set_output, both type 0
	imports := uleb(2)
	for _, fn := range []string{"get_input", "set_output"} {
		imports = append(imports, wasmName("env")...)
		imports = append(imports, wasmName(fn)...)
		imports = append(imports, exportKindFunc)
		imports = append(imports, uleb(0)...)
	}
	out = append(out, wasmSection(secImport, imports)...)

	// Function section: the module's own function, type 1
	if a.entryBody != nil {
		fns := append(uleb(1), uleb(1)...)
		out = append(out, wasmSection(secFunction, fns)...)
	}

	// Memory section: one memory, min pages, no max
	minPages := a.memoryMinPages
	if minPages == 0 {
		minPages = 1
	}
	mem := append(uleb(1), 0x00)
	mem = append(mem, uleb(minPages)...)
	out = append(out, wasmSection(secMemory, mem)...)

	// Export section
	var exports []byte
	count := uint32(0)
	if a.exportMemory {
		exports = append(exports, wasmName("memory")...)
		exports = append(exports, exportKindMemory)
		exports = append(exports, uleb(0)...)
		count++
	}
	if a.entryBody != nil {
		entryName := a.entryName
		if entryName == "" {
			entryName = "wasm_function"
		}
		exports = append(exports, wasmName(entryName)...)
		exports = append(exports, exportKindFunc)
		exports = append(exports, uleb(fnOwn)...)
		count++
	}
	if a.exportImportAs != "" {
		exports = append(exports, wasmName(a.exportImportAs)...)
		exports = append(exports, exportKindFunc)
		exports = append(exports, uleb(fnGetInput)...)
		count++
	}
	out = append(out, wasmSection(secExport, append(uleb(count), exports...))...)

	// Code section
	if a.entryBody != nil {
		body := append(uleb(0), a.entryBody...) // no locals
		body = append(body, opEnd)
		code := append(uleb(1), uleb(uint32(len(body)))...)
		code = append(code, body...)
		out = append(out, wasmSection(secCode, code)...)
	}

	// Data section: one active segment at offset 0
	if a.data != nil {
		data := append(uleb(1), 0x00)                    // one segment, memory 0
		data = append(data, opI32Const, 0, opEnd)        // offset expression
		data = append(data, uleb(uint32(len(a.data)))...)
		data = append(data, a.data...)
		out = append(out, wasmSection(secData, data)...)
	}

	return out
}

func callHost(fn uint32, ptr, length int32) []byte {
	var out []byte
	out = append(out, opI32Const)
	out = append(out, sleb(ptr)...)
	out = append(out, opI32Const)
	out = append(out, sleb(length)...)
	out = append(out, opCall)
	out = append(out, uleb(fn)...)
	return out
}

// identityAgent copies n input bytes back out through the store
func identityAgent(n int32) []byte {
	body := callHost(fnGetInput, 0, n)
	body = append(body, callHost(fnSetOutput, 0, n)...)
	return wasmAgent{exportMemory: true, entryBody: body}.build()
}

// constantAgent ignores its input and emits the given literal
func constantAgent(literal []byte) []byte {
	return wasmAgent{
		exportMemory: true,
		entryBody:    callHost(fnSetOutput, 0, int32(len(literal))),
		data:         literal,
	}.build()
}

// silentAgent runs without touching the store
func silentAgent() []byte {
	return wasmAgent{exportMemory: true, entryBody: []byte{}}.build()
}

// trapAgent hits an unreachable instruction immediately
func trapAgent() []byte {
	return wasmAgent{exportMemory: true, entryBody: []byte{opUnreachable}}.build()
}

// loopAgent spins forever
func loopAgent() []byte {
	body := []byte{opLoop, blockTypeEmpty, opBr, 0, opEnd}
	return wasmAgent{exportMemory: true, entryBody: body}.build()
}
