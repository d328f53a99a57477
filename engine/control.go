package engine

import (
	"github.com/pgavlin/polywarp/compiler/wax"
	"github.com/pgavlin/polywarp/exec"
	"github.com/pgavlin/polywarp/wasm/code"
)

// next is returned by a statement that does not branch.
const next = -1

// A stmt runs a statement. It returns next if control continues with the following statement, or the label of the
// structure targeted by a taken branch. Labels are nesting levels; the function body has label 0.
type stmt func(fr *frame) int

func runBody(fr *frame, body []stmt) int {
	for _, s := range body {
		if r := s(fr); r != next {
			return r
		}
	}
	return next
}

func isBranch(op code.Opcode) bool {
	switch op {
	case code.OpBr, code.OpBrIf, code.OpBrTable, code.OpReturn:
		return true
	default:
		return false
	}
}

func isEntry(d *wax.Def) bool {
	return d.Block != nil && d == d.Block.Entry
}

// entry returns the parts of a structure's entry: an action that stores the structure's parameters and, for an if,
// the condition.
func (c *compiler) entry(b *wax.Block) (action, expr) {
	uses := b.Entry.Uses
	if b.Kind != code.OpIf {
		return c.storeValues(uses, b.InTemp), nil
	}
	n := len(uses) - 1
	return c.storeValues(uses[:n], b.InTemp), c.expr(uses[n])
}

// copyIns returns an action that forwards the parameters of an if without an else to its results when the
// condition is false.
func copyIns(b *wax.Block) action {
	if len(b.Ins) == 0 {
		return nil
	}
	types, in, out := b.Ins, b.InTemp, b.OutTemp
	return func(fr *frame) {
		for i, t := range types {
			if t.IsRef() {
				fr.refs[out+i] = fr.refs[in+i]
			} else {
				fr.slots[out+i] = fr.slots[in+i]
			}
		}
	}
}

// branchTable returns a closure that evaluates the values and index of a br_table, stores the values for the
// selected target, and returns the target's position in the branch's target list.
func (c *compiler) branchTable(d *wax.Def) func(fr *frame) int {
	n := len(d.Uses) - 1
	vals, index := c.operands(d.Uses[:n]), c.expr(d.Uses[n])
	hasRefs := false
	for _, v := range vals {
		hasRefs = hasRefs || v.isRef()
	}

	temps := make([]int, len(d.BranchTargets))
	for i, t := range d.BranchTargets {
		temps[i] = t.LabelTemp()
	}
	last := uint32(len(temps) - 1)

	return func(fr *frame) int {
		var nums []uint64
		var refs []exec.Reference
		if n != 0 {
			nums, refs = evaluateOperands(fr, vals, hasRefs)
		}

		i := uint32(index(fr))
		if i > last {
			i = last
		}

		temp := temps[i]
		for k, v := range vals {
			if v.isRef() {
				fr.refs[temp+k] = refs[k]
			} else {
				fr.slots[temp+k] = nums[k]
			}
		}
		return int(i)
	}
}

// lowerStatement lowers a non-structure statement in nested-closure form.
func (c *compiler) lowerStatement(d *wax.Def) stmt {
	switch d.Instr.Opcode {
	case code.OpBr, code.OpReturn:
		dest := d.BranchTargets[0]
		label, store := dest.Label, c.storeValues(d.Uses, dest.LabelTemp())
		if store == nil {
			return func(fr *frame) int { return label }
		}
		return func(fr *frame) int {
			store(fr)
			return label
		}

	case code.OpBrIf:
		// The branch values are always temps, so the condition may be evaluated first.
		dest, n := d.BranchTargets[0], len(d.Uses)-1
		label, cond, store := dest.Label, c.expr(d.Uses[n]), c.storeValues(d.Uses[:n], dest.LabelTemp())
		if store == nil {
			return func(fr *frame) int {
				if uint32(cond(fr)) == 0 {
					return next
				}
				return label
			}
		}
		return func(fr *frame) int {
			if uint32(cond(fr)) == 0 {
				return next
			}
			store(fr)
			return label
		}

	case code.OpBrTable:
		labels := make([]int, len(d.BranchTargets))
		for i, t := range d.BranchTargets {
			labels[i] = t.Label
		}
		sel := c.branchTable(d)
		return func(fr *frame) int { return labels[sel(fr)] }
	}

	a := c.lowerAction(d)
	return func(fr *frame) int {
		a(fr)
		return next
	}
}

// lowerStructure lowers the structure whose entry is the i'th statement of the function body. It returns the
// structure's closure and the index of the statement that follows the structure's end.
func (c *compiler) lowerStructure(i int) (stmt, int) {
	b := c.fn.Body[i].Block
	if b.Label >= c.threshold {
		return c.lowerDispatch(i)
	}

	var body, elseBody []stmt
	list, j := &body, i+1
loop:
	for {
		d := c.fn.Body[j]
		switch {
		case d == b.End:
			j++
			break loop
		case d == b.Else:
			list, j = &elseBody, j+1
		case isEntry(d):
			s, k := c.lowerStructure(j)
			*list, j = append(*list, s), k
		default:
			*list, j = append(*list, c.lowerStatement(d)), j+1
		}
	}

	label := b.Label
	entry, cond := c.entry(b)
	end := c.storeValues(b.End.Uses, b.OutTemp)

	switch b.Kind {
	case code.OpLoop:
		return func(fr *frame) int {
			if entry != nil {
				entry(fr)
			}
			for {
				r := runBody(fr, body)
				if r == next {
					break
				}
				if r != label {
					return r
				}
			}
			if end != nil {
				end(fr)
			}
			return next
		}, j

	case code.OpIf:
		thenEnd, elseEnd, forward := end, end, copyIns(b)
		hasElse := b.Else != nil
		if hasElse {
			thenEnd = c.storeValues(b.Else.Uses, b.OutTemp)
		}
		return func(fr *frame) int {
			if entry != nil {
				entry(fr)
			}
			switch {
			case uint32(cond(fr)) != 0:
				if r := runBody(fr, body); r != next {
					if r == label {
						return next
					}
					return r
				}
				if thenEnd != nil {
					thenEnd(fr)
				}
			case hasElse:
				if r := runBody(fr, elseBody); r != next {
					if r == label {
						return next
					}
					return r
				}
				if elseEnd != nil {
					elseEnd(fr)
				}
			case forward != nil:
				forward(fr)
			}
			return next
		}, j

	default:
		return func(fr *frame) int {
			if entry != nil {
				entry(fr)
			}
			if r := runBody(fr, body); r != next {
				if r == label {
					return next
				}
				return r
			}
			if end != nil {
				end(fr)
			}
			return next
		}, j
	}
}

// A step is a single statement in dispatch-table form. It returns the index of the next step to run.
type step func(fr *frame) int

type dispatchBuilder struct {
	c       *compiler
	steps   []step
	targets map[*wax.Block]*int
	outer   map[int]*int
}

// target returns the step index that a branch to b transfers control to. The index is filled in once the target
// step has been emitted. Branches that leave the dispatch region target an index past its exit that encodes the
// outer label.
func (db *dispatchBuilder) target(b *wax.Block) *int {
	if pc, ok := db.targets[b]; ok {
		return pc
	}
	pc, ok := db.outer[b.Label]
	if !ok {
		pc = new(int)
		db.outer[b.Label] = pc
	}
	return pc
}

func (db *dispatchBuilder) emit(s step) {
	db.steps = append(db.steps, s)
}

func (db *dispatchBuilder) action(a action) {
	pc := len(db.steps)
	db.emit(func(fr *frame) int {
		a(fr)
		return pc + 1
	})
}

func (db *dispatchBuilder) jump(target *int) {
	db.emit(func(fr *frame) int { return *target })
}

func (db *dispatchBuilder) branch(d *wax.Def) {
	c, pc := db.c, len(db.steps)

	switch d.Instr.Opcode {
	case code.OpBr, code.OpReturn:
		dest := d.BranchTargets[0]
		target, store := db.target(dest), c.storeValues(d.Uses, dest.LabelTemp())
		if store == nil {
			db.jump(target)
			return
		}
		db.emit(func(fr *frame) int {
			store(fr)
			return *target
		})

	case code.OpBrIf:
		dest, n := d.BranchTargets[0], len(d.Uses)-1
		target, cond, store := db.target(dest), c.expr(d.Uses[n]), c.storeValues(d.Uses[:n], dest.LabelTemp())
		db.emit(func(fr *frame) int {
			if uint32(cond(fr)) == 0 {
				return pc + 1
			}
			if store != nil {
				store(fr)
			}
			return *target
		})

	case code.OpBrTable:
		targets := make([]*int, len(d.BranchTargets))
		for i, t := range d.BranchTargets {
			targets[i] = db.target(t)
		}
		sel := c.branchTable(d)
		db.emit(func(fr *frame) int { return *targets[sel(fr)] })
	}
}

// lowerDispatch lowers the structure whose entry is the i'th statement of the function body and every structure
// nested within it into a single loop over a flat list of steps.
func (c *compiler) lowerDispatch(i int) (stmt, int) {
	type openBlock struct {
		b        *wax.Block
		end, els *int
	}

	c.stats.Dispatch = true
	log().Sugar().Debugf("function %d: lowering structure at label %d in dispatch form", c.index, c.fn.Body[i].Block.Label)

	db := &dispatchBuilder{c: c, targets: map[*wax.Block]*int{}, outer: map[int]*int{}}

	var open []*openBlock
	j := i
	for {
		d := c.fn.Body[j]
		j++

		switch {
		case isEntry(d):
			b := d.Block
			o := &openBlock{b: b, end: new(int), els: new(int)}
			open = append(open, o)

			entry, cond := c.entry(b)
			switch b.Kind {
			case code.OpLoop:
				if entry != nil {
					db.action(entry)
				}
				start := new(int)
				*start, db.targets[b] = len(db.steps), start
			case code.OpIf:
				db.targets[b] = o.end
				pc, els := len(db.steps), o.els
				db.emit(func(fr *frame) int {
					if entry != nil {
						entry(fr)
					}
					if uint32(cond(fr)) != 0 {
						return pc + 1
					}
					return *els
				})
			default:
				db.targets[b] = o.end
				if entry != nil {
					db.action(entry)
				}
			}

		case d.Block != nil && d == d.Block.Else:
			o := open[len(open)-1]
			if store := c.storeValues(d.Uses, o.b.OutTemp); store != nil {
				end := o.end
				db.emit(func(fr *frame) int {
					store(fr)
					return *end
				})
			} else {
				db.jump(o.end)
			}
			*o.els = len(db.steps)

		case d.Block != nil && d == d.Block.End:
			o := open[len(open)-1]
			open = open[:len(open)-1]

			if store := c.storeValues(d.Uses, o.b.OutTemp); store != nil {
				db.action(store)
			}
			if o.b.Kind == code.OpIf && o.b.Else == nil {
				if forward := copyIns(o.b); forward != nil {
					db.jump(o.end)
					*o.els = len(db.steps)
					db.action(forward)
				} else {
					*o.els = len(db.steps)
				}
			}
			*o.end = len(db.steps)

		case isBranch(d.Instr.Opcode):
			db.branch(d)

		default:
			db.action(c.lowerAction(d))
		}

		if len(open) == 0 {
			break
		}
	}

	steps, exit := db.steps, len(db.steps)
	for label, pc := range db.outer {
		*pc = exit + 1 + label
	}

	return func(fr *frame) int {
		pc := 0
		for pc < exit {
			pc = steps[pc](fr)
		}
		if pc == exit {
			return next
		}
		return pc - exit - 1
	}, j
}
