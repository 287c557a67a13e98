package x64

// Encoders for the small instruction subset the stack machine lowers to.
// Each returns the offset of any rel32 field it leaves for patching.

func rex(w bool, reg, rm Register) uint8 {
	b := uint8(0x40)
	if w {
		b |= 0x08
	}
	if reg.Extended() {
		b |= 0x04
	}
	if rm.Extended() {
		b |= 0x01
	}
	return b
}

func modrm(reg, rm Register) uint8 {
	return 0xC0 | (reg.Encoding&7)<<3 | rm.Encoding&7
}

// PushReg emits PUSH reg
func (o *Out) PushReg(r Register) {
	o.begin("push %s", r.Name)
	if r.Extended() {
		o.Write(0x41)
	}
	o.Write(0x50 + r.Encoding&7)
	o.end()
}

// PopReg emits POP reg
func (o *Out) PopReg(r Register) {
	o.begin("pop %s", r.Name)
	if r.Extended() {
		o.Write(0x41)
	}
	o.Write(0x58 + r.Encoding&7)
	o.end()
}

// PushImm32 emits PUSH imm32, sign-extended to 64 bits
func (o *Out) PushImm32(v int32) {
	o.begin("push %d", v)
	o.Write(0x68)
	o.write32(uint32(v))
	o.end()
}

// PushLocal emits PUSH QWORD [rbp+disp8]
func (o *Out) PushLocal(disp int8) {
	o.begin("push qword [rbp%+d]", disp)
	o.Write(0xFF)
	o.Write(0x75) // mod=01 reg=/6 rm=rbp
	o.Write(uint8(disp))
	o.end()
}

// MovImm64 emits MOV reg, imm64
func (o *Out) MovImm64(r Register, v int64) {
	o.begin("mov %s, %d", r.Name, v)
	o.Write(rex(true, Register{}, r))
	o.Write(0xB8 + r.Encoding&7)
	o.write64(uint64(v))
	o.end()
}

// MovRegToReg emits MOV dst, src
func (o *Out) MovRegToReg(dst, src Register) {
	o.begin("mov %s, %s", dst.Name, src.Name)
	o.Write(rex(true, src, dst))
	o.Write(0x89)
	o.Write(modrm(src, dst))
	o.end()
}

// AddRegToReg emits ADD dst, src
func (o *Out) AddRegToReg(dst, src Register) {
	o.begin("add %s, %s", dst.Name, src.Name)
	o.Write(rex(true, src, dst))
	o.Write(0x01)
	o.Write(modrm(src, dst))
	o.end()
}

// SubRegFromReg emits SUB dst, src
func (o *Out) SubRegFromReg(dst, src Register) {
	o.begin("sub %s, %s", dst.Name, src.Name)
	o.Write(rex(true, src, dst))
	o.Write(0x29)
	o.Write(modrm(src, dst))
	o.end()
}

// ImulRegWithReg emits IMUL dst, src
func (o *Out) ImulRegWithReg(dst, src Register) {
	o.begin("imul %s, %s", dst.Name, src.Name)
	o.Write(rex(true, dst, src))
	o.Write(0x0F)
	o.Write(0xAF)
	o.Write(modrm(dst, src))
	o.end()
}

// TestRegReg emits TEST a, b
func (o *Out) TestRegReg(a, b Register) {
	o.begin("test %s, %s", a.Name, b.Name)
	o.Write(rex(true, b, a))
	o.Write(0x85)
	o.Write(modrm(b, a))
	o.end()
}

// AdjustStack emits ADD/SUB rsp, imm8
func (o *Out) AdjustStack(delta int8) {
	if delta == 0 {
		return
	}
	ext := uint8(0xC4) // add
	name := "add"
	if delta < 0 {
		ext = 0xEC // sub
		name = "sub"
		delta = -delta
	}
	o.begin("%s rsp, %d", name, delta)
	o.Write(0x48)
	o.Write(0x83)
	o.Write(ext)
	o.Write(uint8(delta))
	o.end()
}

// CallRelative emits CALL rel32 and returns the offset of the rel32 field
func (o *Out) CallRelative(offset int32) int {
	o.begin("call %d", offset)
	o.Write(0xE8)
	at := o.Len()
	o.write32(uint32(offset))
	o.end()
	return at
}

// JumpUnconditional emits JMP rel32 and returns the offset of the rel32 field
func (o *Out) JumpUnconditional(offset int32) int {
	o.begin("jmp %d", offset)
	o.Write(0xE9)
	at := o.Len()
	o.write32(uint32(offset))
	o.end()
	return at
}

// JumpIfZero emits JZ rel32 and returns the offset of the rel32 field
func (o *Out) JumpIfZero(offset int32) int {
	o.begin("jz %d", offset)
	o.Write(0x0F)
	o.Write(0x84)
	at := o.Len()
	o.write32(uint32(offset))
	o.end()
	return at
}

func (o *Out) Leave() {
	o.begin("leave")
	o.Write(0xC9)
	o.end()
}

func (o *Out) Ret() {
	o.begin("ret")
	o.Write(0xC3)
	o.end()
}

// Ud2 emits the undefined instruction used for traps
func (o *Out) Ud2() {
	o.begin("ud2")
	o.Write(0x0F)
	o.Write(0x0B)
	o.end()
}
