package core

import (
	"crypto/rand"
	"encoding/hex"

	"pkt.systems/tabkeeper/schema"
)

func newWindowID() schema.WindowID {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "win-unknown"
	}
	return schema.WindowID("win-" + hex.EncodeToString(buf[:]))
}
