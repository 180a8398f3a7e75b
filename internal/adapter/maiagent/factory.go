package maiagent

import (
	"log"
	"strings"
	"time"
)

// ModeMock selects the in-process mock provider.
const ModeMock = "MOCK"

// NewProvider creates a provider based on mode.
// If mode is MOCK, returns a MockClient; otherwise returns a real Client.
func NewProvider(mode, baseURL, apiKey string, timeout time.Duration) Provider {
	if strings.EqualFold(mode, ModeMock) {
		log.Println("OCRFLOW_MODE=MOCK detected, using mock MaiAgent provider")
		return NewMockClient()
	}

	return NewClient(baseURL, apiKey, timeout)
}
