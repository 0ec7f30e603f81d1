package rtltcp

import (
	"bytes"
	"testing"
)

func TestParseCommand(t *testing.T) {
	cmd := ParseCommand([]byte{2, 0x00, 0x00, 0xBB, 0x80})
	if cmd.Type != SetSampleRate {
		t.Errorf("expected SetSampleRate, got %s", cmd.Type)
	}
	if cmd.Value() != 48000 {
		t.Errorf("expected 48000, got %d", cmd.Value())
	}
	if !bytes.Equal(MakeCommand(SetSampleRate, 48000).Bytes(), []byte{2, 0x00, 0x00, 0xBB, 0x80}) {
		t.Errorf("unexpected encoding %v", MakeCommand(SetSampleRate, 48000).Bytes())
	}
}

func TestCommandType_String(t *testing.T) {
	if SetGain.String() != "SetGain" {
		t.Errorf("got %q", SetGain.String())
	}
	if CommandType(0x42).String() != "Unknown(66)" {
		t.Errorf("got %q", CommandType(0x42).String())
	}
}

func TestFrameReader_Concatenated(t *testing.T) {
	var data []byte
	data = append(data, MakeCommand(SetFrequency, 7100000).Bytes()...)
	data = append(data, MakeCommand(SetSampleRate, 192000).Bytes()...)
	data = append(data, MakeCommand(SetGain, 120).Bytes()...)

	f := &FrameReader{}
	cmds := f.Feed(data)
	if len(cmds) != 3 {
		t.Fatalf("expected 3 commands, got %d", len(cmds))
	}
	want := []Command{
		MakeCommand(SetFrequency, 7100000),
		MakeCommand(SetSampleRate, 192000),
		MakeCommand(SetGain, 120),
	}
	for i := range want {
		if cmds[i] != want[i] {
			t.Errorf("command %d: expected %v, got %v", i, want[i], cmds[i])
		}
	}
	if f.Pending() != 0 {
		t.Errorf("expected nothing pending, got %d", f.Pending())
	}
}

func TestFrameReader_Split(t *testing.T) {
	data := append(MakeCommand(SetFrequency, 14074000).Bytes(), MakeCommand(SetGain, 250).Bytes()...)

	f := &FrameReader{}
	var got []Command
	for _, cut := range [][]byte{data[:3], data[3:7], data[7:8], data[8:]} {
		got = append(got, f.Feed(cut)...)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(got))
	}
	if got[0].Type != SetFrequency || got[0].Value() != 14074000 {
		t.Errorf("unexpected first command %v", got[0])
	}
	if got[1].Type != SetGain || got[1].Value() != 250 {
		t.Errorf("unexpected second command %v", got[1])
	}
}

func TestFrameReader_HoldsPartial(t *testing.T) {
	f := &FrameReader{}
	if cmds := f.Feed([]byte{1, 0, 0}); len(cmds) != 0 {
		t.Fatalf("partial frame must not decode, got %v", cmds)
	}
	if f.Pending() != 3 {
		t.Errorf("expected 3 pending bytes, got %d", f.Pending())
	}
}
