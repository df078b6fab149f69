package mips

// Instruction encoders used by tests and examples to assemble guest
// programs in-process. They produce the same big-endian words a MIPS
// assembler would emit for the documented instruction subset.

// EncodeR encodes an R-type (SPECIAL) instruction
func EncodeR(funct, rs, rt, rd, sa uint8) uint32 {
	return uint32(rs&0x1f)<<21 | uint32(rt&0x1f)<<16 | uint32(rd&0x1f)<<11 |
		uint32(sa&0x1f)<<6 | uint32(funct&0x3f)
}

// EncodeI encodes an I-type instruction
func EncodeI(opcode, rs, rt uint8, imm uint16) uint32 {
	return uint32(opcode&0x3f)<<26 | uint32(rs&0x1f)<<21 | uint32(rt&0x1f)<<16 | uint32(imm)
}

// EncodeJ encodes a J-type instruction with an absolute word target
func EncodeJ(opcode uint8, target uint32) uint32 {
	return uint32(opcode&0x3f)<<26 | (target>>2)&0x3ff_ffff
}

// Common mnemonic helpers

// Nop is sll $0, $0, 0
func Nop() uint32 { return 0 }

// Lui loads imm into the upper half of rt
func Lui(rt uint8, imm uint16) uint32 { return EncodeI(0x0f, 0, rt, imm) }

// Ori computes rt = rs | imm
func Ori(rt, rs uint8, imm uint16) uint32 { return EncodeI(0x0d, rs, rt, imm) }

// Addiu computes rt = rs + signext(imm)
func Addiu(rt, rs uint8, imm uint16) uint32 { return EncodeI(0x09, rs, rt, imm) }

// Addu computes rd = rs + rt
func Addu(rd, rs, rt uint8) uint32 { return EncodeR(0x21, rs, rt, rd, 0) }

// Subu computes rd = rs - rt
func Subu(rd, rs, rt uint8) uint32 { return EncodeR(0x23, rs, rt, rd, 0) }

// And computes rd = rs & rt
func And(rd, rs, rt uint8) uint32 { return EncodeR(0x24, rs, rt, rd, 0) }

// Or computes rd = rs | rt
func Or(rd, rs, rt uint8) uint32 { return EncodeR(0x25, rs, rt, rd, 0) }

// Xor computes rd = rs ^ rt
func Xor(rd, rs, rt uint8) uint32 { return EncodeR(0x26, rs, rt, rd, 0) }

// Sll computes rd = rt << sa
func Sll(rd, rt, sa uint8) uint32 { return EncodeR(0x00, 0, rt, rd, sa) }

// Srl computes rd = rt >> sa (logical)
func Srl(rd, rt, sa uint8) uint32 { return EncodeR(0x02, 0, rt, rd, sa) }

// Slt computes rd = (rs < rt), signed
func Slt(rd, rs, rt uint8) uint32 { return EncodeR(0x2a, rs, rt, rd, 0) }

// Sltu computes rd = (rs < rt), unsigned
func Sltu(rd, rs, rt uint8) uint32 { return EncodeR(0x2b, rs, rt, rd, 0) }

// Mult computes HI:LO = rs * rt, signed
func Mult(rs, rt uint8) uint32 { return EncodeR(0x18, rs, rt, 0, 0) }

// Mflo copies LO into rd
func Mflo(rd uint8) uint32 { return EncodeR(0x12, 0, 0, rd, 0) }

// Lw loads the word at rs+signext(imm) into rt
func Lw(rt, rs uint8, imm uint16) uint32 { return EncodeI(0x23, rs, rt, imm) }

// Sw stores rt at rs+signext(imm)
func Sw(rt, rs uint8, imm uint16) uint32 { return EncodeI(0x2b, rs, rt, imm) }

// Lbu loads the byte at rs+signext(imm) into rt, zero extended
func Lbu(rt, rs uint8, imm uint16) uint32 { return EncodeI(0x24, rs, rt, imm) }

// Sb stores the low byte of rt at rs+signext(imm)
func Sb(rt, rs uint8, imm uint16) uint32 { return EncodeI(0x28, rs, rt, imm) }

// Beq branches to pc+4+signext(imm)<<2 when rs == rt
func Beq(rs, rt uint8, imm uint16) uint32 { return EncodeI(0x04, rs, rt, imm) }

// Bne branches to pc+4+signext(imm)<<2 when rs != rt
func Bne(rs, rt uint8, imm uint16) uint32 { return EncodeI(0x05, rs, rt, imm) }

// J jumps to the absolute word target
func J(target uint32) uint32 { return EncodeJ(0x02, target) }

// Jr jumps to the address in rs
func Jr(rs uint8) uint32 { return EncodeR(0x08, rs, 0, 0, 0) }

// Syscall invokes the system call in v0
func Syscall() uint32 { return EncodeR(0x0c, 0, 0, 0, 0) }
