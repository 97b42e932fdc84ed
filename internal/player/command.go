package player

import "fmt"

// Command is a device opcode. The set is fixed on both ends of the link.
type Command uint32

const (
	WriteBlock         Command = 0x06
	ReadBlock          Command = 0x07
	WriteBlockAndSpare Command = 0x10
	ReadBlockAndSpare  Command = 0x11
	InitFS             Command = 0x12
	GetNumBlocks       Command = 0x15
	SetSeqNo           Command = 0x16
	GetSeqNo           Command = 0x17
	FileChksum         Command = 0x1C
	SetLED             Command = 0x1D
	SetTime            Command = 0x1E
	GetBBID            Command = 0x1F
	SignHash           Command = 0x20
)

var commandNames = map[Command]string{
	WriteBlock:         "WriteBlock",
	ReadBlock:          "ReadBlock",
	WriteBlockAndSpare: "WriteBlockAndSpare",
	ReadBlockAndSpare:  "ReadBlockAndSpare",
	InitFS:             "InitFS",
	GetNumBlocks:       "GetNumBlocks",
	SetSeqNo:           "SetSeqNo",
	GetSeqNo:           "GetSeqNo",
	FileChksum:         "FileChksum",
	SetLED:             "SetLED",
	SetTime:            "SetTime",
	GetBBID:            "GetBBID",
	SignHash:           "SignHash",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Command(0x%02X)", uint32(c))
}
