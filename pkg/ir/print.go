// Copyright 2026 kleerer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package ir

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// String returns an LLVM-like listing of the program, for debugging and test failures.
func (p *Program) String() string {
	buf := new(bytes.Buffer)
	p.Fprint(buf)
	return buf.String()
}

func (p *Program) Fprint(w io.Writer) {
	fmt.Fprintf(w, "; module %v\n", p.ID)
	for id := range p.globals {
		g := &p.globals[id]
		kind := "global"
		if g.Constant {
			kind = "constant"
		}
		if g.Private {
			kind = "private " + kind
		}
		if g.IsDeclaration() {
			fmt.Fprintf(w, "%v = external %v %v\n", p.ValueName(GlobalRef(GlobalID(id))), kind, p.TypeString(g.Type))
			continue
		}
		fmt.Fprintf(w, "%v = %v %v %v\n", p.ValueName(GlobalRef(GlobalID(id))), kind,
			p.TypeString(g.Type), p.Operand(g.Init))
	}
	for id := range p.funcs {
		p.fprintFunc(w, FuncID(id))
	}
}

func (p *Program) fprintFunc(w io.Writer, id FuncID) {
	fn := &p.funcs[id]
	sig := p.types[fn.Type]
	var params []string
	for i, pt := range sig.Params {
		s := p.TypeString(pt)
		if fn.Params[i].Name != "" {
			s += " %" + fn.Params[i].Name
		}
		params = append(params, s)
	}
	if sig.Variadic {
		params = append(params, "...")
	}
	attrs := ""
	if fn.NoReturn {
		attrs = " noreturn"
	}
	head := fmt.Sprintf("%v @%v(%v)%v", p.TypeString(sig.Ret), fn.Name, strings.Join(params, ", "), attrs)
	if fn.IsDeclaration() {
		fmt.Fprintf(w, "\ndeclare %v\n", head)
		return
	}
	fmt.Fprintf(w, "\ndefine %v {\n", head)
	for _, blk := range fn.Blocks {
		fmt.Fprintf(w, "%v:\n", p.blockName(blk))
		for _, inst := range p.blocks[blk].Insts {
			fmt.Fprintf(w, "  %v\n", p.InstString(inst))
		}
	}
	fmt.Fprintf(w, "}\n")
}

func (p *Program) blockName(id BlockID) string {
	if name := p.blocks[id].Name; name != "" {
		return name
	}
	return "bb" + strconv.Itoa(int(id))
}

// ValueName returns the symbolic name of v without its type.
func (p *Program) ValueName(v Value) string {
	switch v.Kind {
	case InstValue:
		if name := p.insts[v.ID].Name; name != "" {
			return fmt.Sprintf("%%%v.%v", name, v.ID)
		}
		return fmt.Sprintf("%%%v", v.ID)
	case ParamValue:
		if name := p.funcs[v.ID].Params[v.Index].Name; name != "" {
			return "%" + name
		}
		return fmt.Sprintf("%%arg%v", v.Index)
	case GlobalValue:
		if name := p.globals[v.ID].Name; name != "" {
			return "@" + name
		}
		return fmt.Sprintf("@.str%v", v.ID)
	case FuncValue:
		return "@" + p.funcs[v.ID].Name
	case ConstValue:
		return p.constString(ConstID(v.ID))
	}
	return v.String()
}

// Operand returns "type name" for v.
func (p *Program) Operand(v Value) string {
	if !p.ValidValue(v) {
		return fmt.Sprintf("<invalid %v>", v)
	}
	return p.TypeString(p.TypeOf(v)) + " " + p.ValueName(v)
}

func (p *Program) constString(id ConstID) string {
	c := &p.consts[id]
	switch c.Kind {
	case ConstInt:
		return strconv.FormatInt(c.Int, 10)
	case ConstNull:
		return "null"
	case ConstZero:
		return "zeroinitializer"
	case ConstBytes:
		return "c" + strconv.Quote(c.Bytes)
	case ConstArray:
		var elems []string
		for _, e := range c.Elems {
			elems = append(elems, p.Operand(e))
		}
		return "[" + strings.Join(elems, ", ") + "]"
	case ConstBitCast:
		return fmt.Sprintf("bitcast (%v to %v)", p.Operand(c.Elems[0]), p.TypeString(c.Type))
	case ConstElemAddr:
		return fmt.Sprintf("getelementptr inbounds (%v, i32 0, i32 0)", p.Operand(c.Elems[0]))
	}
	return fmt.Sprintf("<const kind %v>", c.Kind)
}

func (p *Program) InstString(id InstID) string {
	in := &p.insts[id]
	res := ""
	if p.HasResult(id) {
		res = p.ValueName(InstRef(id)) + " = "
	}
	var s string
	switch in.Op {
	case OpAlloca:
		s = fmt.Sprintf("alloca %v", p.TypeString(in.Elem))
	case OpLoad, OpStore:
		vol := ""
		if in.Volatile {
			vol = "volatile "
		}
		s = fmt.Sprintf("%v %v%v", in.Op, vol, p.operands(in.Args))
	case OpGEP:
		s = fmt.Sprintf("getelementptr inbounds %v, %v", p.TypeString(in.Elem), p.operands(in.Args))
	case OpBitCast, OpZExt:
		s = fmt.Sprintf("%v %v to %v", in.Op, p.operands(in.Args), p.TypeString(in.Type))
	case OpICmp:
		s = fmt.Sprintf("icmp %v %v", in.Pred, p.operands(in.Args))
	case OpCall:
		s = fmt.Sprintf("call %v %v(%v)", p.TypeString(in.Type), p.ValueName(in.Callee), p.operands(in.Args))
	case OpBr:
		s = fmt.Sprintf("br label %%%v", p.blockName(in.Succs[0]))
	case OpCondBr:
		s = fmt.Sprintf("br %v, label %%%v, label %%%v", p.operands(in.Args),
			p.blockName(in.Succs[0]), p.blockName(in.Succs[1]))
	case OpRet:
		if len(in.Args) == 0 {
			s = "ret void"
		} else {
			s = "ret " + p.operands(in.Args)
		}
	default:
		s = fmt.Sprintf("%v %v", in.Op, p.operands(in.Args))
	}
	if !in.Loc.IsZero() {
		s += fmt.Sprintf(" ; %v", in.Loc)
	}
	return res + s
}

func (p *Program) operands(args []Value) string {
	var res []string
	for _, arg := range args {
		res = append(res, p.Operand(arg))
	}
	return strings.Join(res, ", ")
}
