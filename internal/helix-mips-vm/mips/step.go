package mips

import (
	"fmt"
)

// Step executes exactly one instruction and returns its step record.
// On a fault the machine state is left at the faulting instruction and the
// returned error wraps ErrIllegalInstruction or ErrMemoryFault; stepping a
// halted machine returns ErrHalted.
func (st *State) Step() (*StepEvent, error) {
	if st.Halted {
		return nil, ErrHalted
	}

	ev := &StepEvent{
		Cycle:  st.Cycle,
		PC:     st.PC,
		NextPC: st.NextPC,
	}
	st.ev = ev

	insn, err := st.ReadWord(st.PC)
	if err != nil {
		return nil, fmt.Errorf("instruction fetch at pc 0x%08x (step %d): %w", st.PC, st.Cycle, err)
	}
	ev.Insn = insn

	if err := st.execute(insn); err != nil {
		return nil, fmt.Errorf("pc 0x%08x insn 0x%08x (step %d): %w", st.PC, insn, st.Cycle, err)
	}

	ev.Halted = st.Halted
	st.Cycle++
	st.ev = nil
	return ev, nil
}

// advance moves past the current instruction, executing the delay-slot
// successor next
func (st *State) advance() {
	st.PC = st.NextPC
	st.NextPC = st.NextPC + 4
}

// jump schedules a control transfer: the delay slot at NextPC still
// executes, then control continues at target
func (st *State) jump(target uint32) {
	st.PC = st.NextPC
	st.NextPC = target
}

// branchTarget computes a PC-relative branch destination from a 16-bit
// word offset
func (st *State) branchTarget(imm16 uint32) uint32 {
	return st.PC + 4 + signExt16(imm16)<<2
}

func signExt16(v uint32) uint32 {
	return uint32(int32(int16(uint16(v))))
}

func signExt8(v uint32) uint32 {
	return uint32(int32(int8(uint8(v))))
}

// execute decodes and performs one instruction. Field extraction follows
// the MIPS32 encoding: opcode in the top six bits, funct in the bottom six,
// register selectors rs/rt/rd, shift amount sa, 16-bit immediate and 26-bit
// jump target.
func (st *State) execute(insn uint32) error {
	opcode := uint8(insn >> 26 & 0x3f)
	funct := uint8(insn & 0x3f)
	rs := uint8(insn >> 21 & 0x1f)
	rt := uint8(insn >> 16 & 0x1f)
	rd := uint8(insn >> 11 & 0x1f)
	sa := uint8(insn >> 6 & 0x1f)
	imm := insn & 0xffff
	target := insn & 0x3ffffff

	ev := st.ev

	switch opcode {
	case 0x00: // SPECIAL
		return st.executeSpecial(funct, rs, rt, rd, sa)

	case 0x01: // REGIMM: BLTZ / BGEZ
		switch rt {
		case 0x00:
			ev.Op = "bltz"
			if int32(st.Regs[rs]) < 0 {
				st.jump(st.branchTarget(imm))
			} else {
				st.advance()
			}
			return nil
		case 0x01:
			ev.Op = "bgez"
			if int32(st.Regs[rs]) >= 0 {
				st.jump(st.branchTarget(imm))
			} else {
				st.advance()
			}
			return nil
		}
		return fmt.Errorf("regimm rt 0x%02x: %w", rt, ErrIllegalInstruction)

	case 0x02: // J
		ev.Op = "j"
		st.jump((st.PC+4)&0xf000_0000 | target<<2)
		return nil

	case 0x03: // JAL
		ev.Op = "jal"
		st.writeReg(RegRA, st.PC+8)
		st.jump((st.PC+4)&0xf000_0000 | target<<2)
		return nil

	case 0x04: // BEQ
		ev.Op = "beq"
		if st.Regs[rs] == st.Regs[rt] {
			st.jump(st.branchTarget(imm))
		} else {
			st.advance()
		}
		return nil

	case 0x05: // BNE
		ev.Op = "bne"
		if st.Regs[rs] != st.Regs[rt] {
			st.jump(st.branchTarget(imm))
		} else {
			st.advance()
		}
		return nil

	case 0x06: // BLEZ
		ev.Op = "blez"
		if int32(st.Regs[rs]) <= 0 {
			st.jump(st.branchTarget(imm))
		} else {
			st.advance()
		}
		return nil

	case 0x07: // BGTZ
		ev.Op = "bgtz"
		if int32(st.Regs[rs]) > 0 {
			st.jump(st.branchTarget(imm))
		} else {
			st.advance()
		}
		return nil

	case 0x08, 0x09: // ADDI / ADDIU
		ev.Op = "addiu"
		st.writeReg(rt, st.Regs[rs]+signExt16(imm))
		st.advance()
		return nil

	case 0x0a: // SLTI
		ev.Op = "slti"
		st.writeReg(rt, boolToWord(int32(st.Regs[rs]) < int32(signExt16(imm))))
		st.advance()
		return nil

	case 0x0b: // SLTIU
		ev.Op = "sltiu"
		st.writeReg(rt, boolToWord(st.Regs[rs] < signExt16(imm)))
		st.advance()
		return nil

	case 0x0c: // ANDI
		ev.Op = "andi"
		st.writeReg(rt, st.Regs[rs]&imm)
		st.advance()
		return nil

	case 0x0d: // ORI
		ev.Op = "ori"
		st.writeReg(rt, st.Regs[rs]|imm)
		st.advance()
		return nil

	case 0x0e: // XORI
		ev.Op = "xori"
		st.writeReg(rt, st.Regs[rs]^imm)
		st.advance()
		return nil

	case 0x0f: // LUI
		ev.Op = "lui"
		st.writeReg(rt, imm<<16)
		st.advance()
		return nil

	case 0x20, 0x21, 0x23, 0x24, 0x25, 0x28, 0x29, 0x2b:
		return st.executeLoadStore(opcode, rs, rt, imm)
	}

	return fmt.Errorf("opcode 0x%02x funct 0x%02x: %w", opcode, funct, ErrIllegalInstruction)
}

// executeSpecial performs the opcode-zero (SPECIAL) instruction group
func (st *State) executeSpecial(funct, rs, rt, rd, sa uint8) error {
	ev := st.ev

	switch funct {
	case 0x00: // SLL
		ev.Op = "sll"
		st.writeReg(rd, st.Regs[rt]<<sa)
	case 0x02: // SRL
		ev.Op = "srl"
		st.writeReg(rd, st.Regs[rt]>>sa)
	case 0x03: // SRA
		ev.Op = "sra"
		st.writeReg(rd, uint32(int32(st.Regs[rt])>>sa))
	case 0x04: // SLLV
		ev.Op = "sllv"
		st.writeReg(rd, st.Regs[rt]<<(st.Regs[rs]&0x1f))
	case 0x06: // SRLV
		ev.Op = "srlv"
		st.writeReg(rd, st.Regs[rt]>>(st.Regs[rs]&0x1f))
	case 0x07: // SRAV
		ev.Op = "srav"
		st.writeReg(rd, uint32(int32(st.Regs[rt])>>(st.Regs[rs]&0x1f)))
	case 0x08: // JR
		ev.Op = "jr"
		st.jump(st.Regs[rs])
		return nil
	case 0x09: // JALR
		ev.Op = "jalr"
		st.writeReg(rd, st.PC+8)
		st.jump(st.Regs[rs])
		return nil
	case 0x0c: // SYSCALL
		ev.Op = "syscall"
		return st.syscall()
	case 0x10: // MFHI
		ev.Op = "mfhi"
		st.writeReg(rd, st.HI)
	case 0x11: // MTHI
		ev.Op = "mthi"
		st.HI = st.Regs[rs]
	case 0x12: // MFLO
		ev.Op = "mflo"
		st.writeReg(rd, st.LO)
	case 0x13: // MTLO
		ev.Op = "mtlo"
		st.LO = st.Regs[rs]
	case 0x18: // MULT
		ev.Op = "mult"
		prod := int64(int32(st.Regs[rs])) * int64(int32(st.Regs[rt]))
		st.LO = uint32(prod)
		st.HI = uint32(prod >> 32)
	case 0x19: // MULTU
		ev.Op = "multu"
		prod := uint64(st.Regs[rs]) * uint64(st.Regs[rt])
		st.LO = uint32(prod)
		st.HI = uint32(prod >> 32)
	case 0x1a: // DIV
		ev.Op = "div"
		num, den := int32(st.Regs[rs]), int32(st.Regs[rt])
		if den == 0 {
			// Architecturally unpredictable; pinned for determinism.
			st.LO = ^uint32(0)
			st.HI = st.Regs[rs]
		} else {
			st.LO = uint32(num / den)
			st.HI = uint32(num % den)
		}
	case 0x1b: // DIVU
		ev.Op = "divu"
		if st.Regs[rt] == 0 {
			st.LO = ^uint32(0)
			st.HI = st.Regs[rs]
		} else {
			st.LO = st.Regs[rs] / st.Regs[rt]
			st.HI = st.Regs[rs] % st.Regs[rt]
		}
	case 0x20, 0x21: // ADD / ADDU
		ev.Op = "addu"
		st.writeReg(rd, st.Regs[rs]+st.Regs[rt])
	case 0x22, 0x23: // SUB / SUBU
		ev.Op = "subu"
		st.writeReg(rd, st.Regs[rs]-st.Regs[rt])
	case 0x24: // AND
		ev.Op = "and"
		st.writeReg(rd, st.Regs[rs]&st.Regs[rt])
	case 0x25: // OR
		ev.Op = "or"
		st.writeReg(rd, st.Regs[rs]|st.Regs[rt])
	case 0x26: // XOR
		ev.Op = "xor"
		st.writeReg(rd, st.Regs[rs]^st.Regs[rt])
	case 0x27: // NOR
		ev.Op = "nor"
		st.writeReg(rd, ^(st.Regs[rs] | st.Regs[rt]))
	case 0x2a: // SLT
		ev.Op = "slt"
		st.writeReg(rd, boolToWord(int32(st.Regs[rs]) < int32(st.Regs[rt])))
	case 0x2b: // SLTU
		ev.Op = "sltu"
		st.writeReg(rd, boolToWord(st.Regs[rs] < st.Regs[rt]))
	default:
		return fmt.Errorf("special funct 0x%02x: %w", funct, ErrIllegalInstruction)
	}

	st.advance()
	return nil
}

// executeLoadStore performs the memory access instruction group. Sub-word
// accesses read or rewrite the containing aligned word so every access is
// visible in the trace at word granularity.
func (st *State) executeLoadStore(opcode, rs, rt uint8, imm uint32) error {
	addr := st.Regs[rs] + signExt16(imm)
	ev := st.ev

	switch opcode {
	case 0x23: // LW
		ev.Op = "lw"
		v, err := st.ReadWord(addr)
		if err != nil {
			return err
		}
		st.writeReg(rt, v)
	case 0x2b: // SW
		ev.Op = "sw"
		if err := st.WriteWord(addr, st.Regs[rt]); err != nil {
			return err
		}
	case 0x20, 0x24: // LB / LBU
		if opcode == 0x20 {
			ev.Op = "lb"
		} else {
			ev.Op = "lbu"
		}
		word, err := st.ReadWord(addr &^ 3)
		if err != nil {
			return err
		}
		b := word >> (24 - 8*(addr&3)) & 0xff
		if opcode == 0x20 {
			b = signExt8(b)
		}
		st.writeReg(rt, b)
	case 0x21, 0x25: // LH / LHU
		if addr%2 != 0 {
			return fmt.Errorf("misaligned 2-byte access at 0x%08x: %w", addr, ErrMemoryFault)
		}
		if opcode == 0x21 {
			ev.Op = "lh"
		} else {
			ev.Op = "lhu"
		}
		word, err := st.ReadWord(addr &^ 3)
		if err != nil {
			return err
		}
		half := word >> (16 - 8*(addr&2)) & 0xffff
		if opcode == 0x21 {
			half = signExt16(half)
		}
		st.writeReg(rt, half)
	case 0x28: // SB
		ev.Op = "sb"
		word, err := st.ReadWord(addr &^ 3)
		if err != nil {
			return err
		}
		shift := 24 - 8*(addr&3)
		word = word&^(0xff<<shift) | (st.Regs[rt]&0xff)<<shift
		if err := st.WriteWord(addr&^3, word); err != nil {
			return err
		}
	case 0x29: // SH
		if addr%2 != 0 {
			return fmt.Errorf("misaligned 2-byte access at 0x%08x: %w", addr, ErrMemoryFault)
		}
		ev.Op = "sh"
		word, err := st.ReadWord(addr &^ 3)
		if err != nil {
			return err
		}
		shift := 16 - 8*(addr&2)
		word = word&^(0xffff<<shift) | (st.Regs[rt]&0xffff)<<shift
		if err := st.WriteWord(addr&^3, word); err != nil {
			return err
		}
	default:
		return fmt.Errorf("load/store opcode 0x%02x: %w", opcode, ErrIllegalInstruction)
	}

	st.advance()
	return nil
}

func boolToWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
