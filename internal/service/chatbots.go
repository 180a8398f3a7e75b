package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/xiaot623/ocrflow/internal/adapter/maiagent"
	"github.com/xiaot623/ocrflow/internal/domain"
)

// chatbotCatalogTimeout bounds a shared catalog fetch. The fetch outlives any
// single caller so one disconnect cannot fail everyone waiting on it.
const chatbotCatalogTimeout = 2 * time.Minute

// ChatbotCatalog is the OCR-capable subset of the provider's chatbots.
type ChatbotCatalog struct {
	TotalCount    int                `json:"totalCount"`
	FilteredCount int                `json:"filteredCount"`
	Chatbots      []maiagent.Chatbot `json:"chatbots"`
}

// ListOCRChatbots returns chatbots whose name or description mentions OCR or
// scanning. Names containing "ocr" sort first, then by name. Concurrent
// callers share one catalog fetch.
func (s *Service) ListOCRChatbots(ctx context.Context) (*ChatbotCatalog, error) {
	if err := s.requireAPIKey(); err != nil {
		return nil, err
	}

	ch := s.chatbots.DoChan("chatbots", func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), chatbotCatalogTimeout)
		defer cancel()
		return s.provider.ListChatbots(fetchCtx)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, fmt.Errorf("failed to list chatbots: %w", ctx.Err())
	}
	if res.Err != nil {
		return nil, fmt.Errorf("failed to list chatbots: %w", res.Err)
	}
	all := res.Val.([]maiagent.Chatbot)

	filtered := make([]maiagent.Chatbot, 0, len(all))
	for _, bot := range all {
		text := strings.ToLower(bot.Name + " " + bot.Description)
		if strings.Contains(text, "ocr") || strings.Contains(text, "掃描") {
			filtered = append(filtered, bot)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		a, b := filtered[i], filtered[j]
		aOCR := strings.Contains(strings.ToLower(a.Name), "ocr")
		bOCR := strings.Contains(strings.ToLower(b.Name), "ocr")
		if aOCR != bOCR {
			return aOCR
		}
		return a.Name < b.Name
	})

	return &ChatbotCatalog{
		TotalCount:    len(all),
		FilteredCount: len(filtered),
		Chatbots:      filtered,
	}, nil
}

// SupportedFileTypes passes the provider's file type list through.
func (s *Service) SupportedFileTypes(ctx context.Context) (json.RawMessage, error) {
	if err := s.requireAPIKey(); err != nil {
		return nil, err
	}
	return s.provider.SupportedFileTypes(ctx)
}

func (s *Service) requireAPIKey() error {
	for _, name := range s.config.Missing() {
		if name == "MAIAGENT_API_KEY" {
			return domain.NewError(domain.ErrorKindConfiguration, "MaiAgent configuration incomplete, set MAIAGENT_API_KEY", nil)
		}
	}
	return nil
}
