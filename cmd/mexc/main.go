/*
Copyright 2026 The goARRG Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"goarrg.com/debug"
	"goarrg.com/rhi/mex"
	"goarrg.com/rhi/mex/macro"
	"goarrg.com/rhi/mex/macro/sim"
)

var flags flag.FlagSet

type chipClass macro.Class

func (c *chipClass) UnmarshalText(data []byte) error {
	switch strings.ToLower(string(data)) {
	case "em100":
		*c = chipClass(macro.ClassEM100)
	case "em200":
		*c = chipClass(macro.ClassEM200)
	default:
		return debug.Errorf("Invalid value: %q", data)
	}
	return nil
}

func (c chipClass) MarshalText() (text []byte, err error) {
	return ([]byte)(strings.ToLower(macro.Class(c).String())), nil
}

type paramList []uint32

func (p *paramList) UnmarshalText(data []byte) error {
	for _, s := range strings.Split(string(data), ",") {
		v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
		if err != nil {
			return debug.ErrorWrapf(err, "Invalid parameter %q", s)
		}
		*p = append(*p, uint32(v))
	}
	return nil
}

func (p paramList) MarshalText() (text []byte, err error) {
	str := ""
	for _, v := range p {
		str += fmt.Sprintf("0x%08X,", v)
	}
	return ([]byte)(strings.TrimSuffix(str, ",")), nil
}

func builtinMacros() map[string]mex.MacroID {
	m := map[string]mex.MacroID{}
	for id := mex.MacroID(0); ; id++ {
		name := id.String()
		if strings.HasPrefix(name, "Macro(") {
			return m
		}
		m[strings.ToLower(name)] = id
	}
}

func main() {
	debug.SetLevel(debug.LogLevelWarn)

	flags.Usage = help
	flags.Init("", flag.ExitOnError)

	v := flags.Bool("v", false, "Verbose - Print high level tasks")
	vv := flags.Bool("vv", false, "Very Verbose - Print everything")

	list := flags.Bool("list", false, "List the builtin macros and exit.")
	run := flags.Bool("run", false, "Execute the macro in the simulator instead of disassembling it.")

	class := chipClass(macro.ClassEM200)
	flags.TextVar(&class, "class", class, "Sets the device class, \"em100\" or \"em200\".")

	params := paramList{}
	flags.TextVar(&params, "params", paramList{}, "Comma separated parameter words for -run, e.g. \"1,0x20,3\".")

	err := flags.Parse(os.Args[1:])
	if err != nil {
		panic(err)
	}

	if *v {
		debug.SetLevel(debug.LogLevelInfo)
	} else if *vv {
		debug.SetLevel(debug.LogLevelVerbose)
	}

	byName := builtinMacros()
	if *list {
		for name := range byName {
			fmt.Println(name)
		}
		return
	}

	args := flags.Args()
	if len(args) != 1 {
		debug.EPrintf("Exactly one macro name required.")
		help()
		os.Exit(2)
	}

	id, ok := byName[strings.ToLower(args[0])]
	if !ok {
		debug.EPrintf("Unknown macro %q, see -list.", args[0])
		os.Exit(2)
	}

	info := macro.DeviceInfo{Class: macro.Class(class)}
	blob, err := mex.NewRegistry().Build(info, id)
	if err != nil {
		debug.EPrintf("Failed to build %s: %s", id, err)
		os.Exit(1)
	}

	if *run {
		s := sim.New(&printEngine{shadow: map[uint16]uint32{}})
		if err := s.Run(blob, params); err != nil {
			debug.EPrintf("Failed to run %s: %s", id, err)
			os.Exit(1)
		}
		if s.Overruns > 0 {
			debug.WPrintf("Macro read %d words past its parameters.", s.Overruns)
		}
		return
	}

	insts, err := macro.DecodeProgram(blob)
	if err != nil {
		panic(err)
	}
	for pc, in := range insts {
		fmt.Printf("%3d: %s\n", pc, in.String())
	}
}

// printEngine prints every emitted method and serves state reads from the
// methods emitted so far.
type printEngine struct {
	shadow map[uint16]uint32
}

func (e *printEngine) Method(addr uint16, data uint32) {
	fmt.Printf("mthd 0x%04X <- 0x%08X\n", addr, data)
	e.shadow[addr] = data
}

func (e *printEngine) State(addr uint16) uint32 {
	return e.shadow[addr]
}

func help() {
	fmt.Fprintf(os.Stderr, "mexc builds the builtin engine macros offline, either disassembling them\n"+
		"or executing them in the software simulator with a chosen parameter stream.\n"+
		"\n")
	args := ""
	flags.VisitAll(func(f *flag.Flag) {
		n, u := flag.UnquoteUsage(f)
		if f.DefValue != "" {
			u += "\n\nDefaults to \"" + f.DefValue + "\"."
		}
		args += "\t-" + f.Name + " " + n + "\n\t\t" + strings.ReplaceAll(strings.TrimSpace(u), "\n", "\n\t\t") + "\n"
	})
	fmt.Fprintf(os.Stderr, "Usage:\n\t%s [arguments] <macro>\n\nArguments:\n%s", filepath.Base(os.Args[0]), args)
}
