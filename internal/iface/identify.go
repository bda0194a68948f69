package iface

import (
	"bytes"
	"fmt"
)

// UnknownPacket names payloads that match no PacketDef.
const UnknownPacket = "UNKNOWN"

// PacketDef identifies a packet by fixed id bytes at a fixed offset.
type PacketDef struct {
	Name   string
	Offset int
	ID     []byte
}

func (d PacketDef) validate() error {
	if d.Name == "" {
		return fmt.Errorf("packet definition has no name")
	}
	if d.Offset < 0 {
		return fmt.Errorf("packet %s: offset %d is negative", d.Name, d.Offset)
	}
	if len(d.ID) == 0 {
		return fmt.Errorf("packet %s: id is empty", d.Name)
	}
	return nil
}

func (d PacketDef) matches(data []byte) bool {
	end := d.Offset + len(d.ID)
	if end > len(data) {
		return false
	}
	return bytes.Equal(data[d.Offset:end], d.ID)
}

// Identify returns the name of the first definition matching data.
func Identify(defs []PacketDef, data []byte) string {
	for _, d := range defs {
		if d.matches(data) {
			return d.Name
		}
	}
	return UnknownPacket
}
