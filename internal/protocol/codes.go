package protocol

import (
	"fmt"
	"sync"

	"github.com/danmuck/nxcp/internal/protocol/frame"
)

var (
	codeNamesMu sync.RWMutex
	codeNames   = map[uint16]string{
		frame.CodeEncryptedMessage: "CMD_ENCRYPTED_MESSAGE",
	}
)

// RegisterCodeName names a message code for dumps and logs. Applications
// register the codes of their command set at init time.
func RegisterCodeName(code uint16, name string) {
	codeNamesMu.Lock()
	defer codeNamesMu.Unlock()
	codeNames[code] = name
}

// CodeName returns the registered name of code, or its hex form.
func CodeName(code uint16) string {
	codeNamesMu.RLock()
	name, ok := codeNames[code]
	codeNamesMu.RUnlock()
	if ok {
		return name
	}
	return fmt.Sprintf("0x%04X", code)
}
