package amd64

import "fmt"

// Register identifies a 64-bit general-purpose register by its hardware
// number, so R8-R15 need the REX extension bit.
type Register uint8

const (
	RAX Register = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

var registerNames = [...]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

func (r Register) String() string {
	if int(r) < len(registerNames) {
		return registerNames[r]
	}
	return fmt.Sprintf("reg%d", uint8(r))
}

type registerCode struct {
	code byte
	high bool
}

func regInfo(r Register) (registerCode, error) {
	if r > R15 {
		return registerCode{}, fmt.Errorf("unsupported register %d", uint8(r))
	}
	return registerCode{code: byte(r) & 7, high: r >= R8}, nil
}

type rexState struct {
	w bool
	r bool
	x bool
	b bool
}

func (r rexState) prefix() byte {
	if !r.w && !r.r && !r.x && !r.b {
		return 0
	}
	p := byte(0x40)
	if r.w {
		p |= 0x08
	}
	if r.r {
		p |= 0x04
	}
	if r.x {
		p |= 0x02
	}
	if r.b {
		p |= 0x01
	}
	return p
}

type memEncoding struct {
	modrm byte
	sib   []byte
	disp  []byte
	rex   rexState
}

// encodeBaseOperand encodes the [base] addressing form. RSP and R12 share
// the SIB escape in the r/m field; RBP and R13 share the RIP/disp32 escape in
// mod=00, so they are emitted with a zero disp8.
func encodeBaseOperand(base Register) (memEncoding, error) {
	info, err := regInfo(base)
	if err != nil {
		return memEncoding{}, err
	}
	enc := memEncoding{
		modrm: info.code,
		rex:   rexState{b: info.high},
	}
	switch info.code {
	case 4:
		enc.sib = []byte{0x24}
	case 5:
		enc.modrm |= 0x40
		enc.disp = []byte{0}
	}
	return enc, nil
}
