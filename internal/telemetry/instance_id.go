package telemetry

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strconv"
)

// InstanceID returns a unique string for this process (hostname+pid+random).
func InstanceID() string {
	host, _ := os.Hostname()
	rnd := make([]byte, 4)
	_, _ = rand.Read(rnd)

	return host + "-" + strconv.Itoa(os.Getpid()) + "-" + hex.EncodeToString(rnd)
}
