package rtltcp

import (
	"encoding/binary"
	"fmt"
)

// CommandSize is the wire size of a command: type byte plus big endian uint32.
const CommandSize = 5

type CommandType uint8

const (
	SetFrequency           CommandType = 0x01
	SetSampleRate          CommandType = 0x02
	SetGainMode            CommandType = 0x03
	SetGain                CommandType = 0x04
	SetFrequencyCorrection CommandType = 0x05
	SetIfStage             CommandType = 0x06
	SetTestMode            CommandType = 0x07
	SetAgcMode             CommandType = 0x08
	SetDirectSampling      CommandType = 0x09
	SetOffsetTuning        CommandType = 0x0A
	SetRtlCrystal          CommandType = 0x0B
	SetTunerCrystal        CommandType = 0x0C
	SetTunerGainByIndex    CommandType = 0x0D
	SetTunerBandwidth      CommandType = 0x0E
	SetBiasTee             CommandType = 0x0F
)

func (c CommandType) String() string {
	if name, ok := CommandTypeToName[c]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint8(c))
}

var CommandTypeToName = map[CommandType]string{
	SetFrequency:           "SetFrequency",
	SetSampleRate:          "SetSampleRate",
	SetGainMode:            "SetGainMode",
	SetGain:                "SetGain",
	SetFrequencyCorrection: "SetFrequencyCorrection",
	SetIfStage:             "SetIfStage",
	SetTestMode:            "SetTestMode",
	SetAgcMode:             "SetAgcMode",
	SetDirectSampling:      "SetDirectSampling",
	SetOffsetTuning:        "SetOffsetTuning",
	SetRtlCrystal:          "SetRtlCrystal",
	SetTunerCrystal:        "SetTunerCrystal",
	SetTunerGainByIndex:    "SetTunerGainByIndex",
	SetTunerBandwidth:      "SetTunerBandwidth",
	SetBiasTee:             "SetBiasTee",
}

type Command struct {
	Type  CommandType
	Param [4]byte
}

func MakeCommand(t CommandType, value uint32) Command {
	cmd := Command{Type: t}
	binary.BigEndian.PutUint32(cmd.Param[:], value)
	return cmd
}

// ParseCommand decodes one frame. b must hold at least CommandSize bytes.
func ParseCommand(b []byte) Command {
	cmd := Command{Type: CommandType(b[0])}
	copy(cmd.Param[:], b[1:CommandSize])
	return cmd
}

func (c Command) Value() uint32 {
	return binary.BigEndian.Uint32(c.Param[:])
}

func (c Command) Bytes() []byte {
	b := make([]byte, CommandSize)
	b[0] = byte(c.Type)
	copy(b[1:], c.Param[:])
	return b
}

// FrameReader splits a TCP byte stream into commands. Bytes of an incomplete
// trailing frame are held until the rest arrives.
type FrameReader struct {
	pending []byte
}

func (f *FrameReader) Feed(data []byte) []Command {
	f.pending = append(f.pending, data...)

	n := len(f.pending) / CommandSize
	cmds := make([]Command, n)
	for i := range cmds {
		cmds[i] = ParseCommand(f.pending[i*CommandSize:])
	}

	rest := len(f.pending) - n*CommandSize
	copy(f.pending, f.pending[n*CommandSize:])
	f.pending = f.pending[:rest]
	return cmds
}

// Pending is the number of bytes waiting for the rest of a frame.
func (f *FrameReader) Pending() int {
	return len(f.pending)
}
