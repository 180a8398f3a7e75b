package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xiaot623/ocrflow/internal/adapter/maiagent"
	"github.com/xiaot623/ocrflow/internal/adapter/pdf"
	"github.com/xiaot623/ocrflow/internal/domain"
	"github.com/xiaot623/ocrflow/internal/extract"
	"github.com/xiaot623/ocrflow/internal/policy"
	"github.com/xiaot623/ocrflow/internal/progress"
	"github.com/xiaot623/ocrflow/internal/sessionlog"
)

// Step names, in execution order.
const (
	StepCheckConfig  = "check provider configuration"
	StepCheckFile    = "check uploaded file"
	StepCheckChatbot = "check chatbot id"
	StepValidate     = "validate document"
	StepUpload       = "upload file"
	StepRegister     = "register attachment"
	StepAttach       = "attach to conversation"
	StepWait         = "wait before completion"
	StepComplete     = "request completion"
	StepPoll         = "poll for reply"
	StepExtract      = "extract structured data"
)

var extensionsByType = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

type stepFunc func(ctx context.Context) (any, error)

// workflow carries the state of one ProcessDocument call.
type workflow struct {
	svc     *Service
	req     *domain.OCRRequest
	sess    *sessionlog.Session
	runID   string
	started time.Time

	mediaType  string
	size       int64
	attachment domain.RemoteAttachment
	completion *maiagent.CompletionResponse
	reply      *maiagent.Message
	invoice    *extract.Invoice
}

// ProcessDocument runs the OCR workflow for one document. Once started the
// workflow ignores the caller's cancellation and is bounded by the configured
// workflow budget instead. Failures are returned as *domain.WorkflowError.
func (s *Service) ProcessDocument(ctx context.Context, req *domain.OCRRequest) (*domain.OCRResult, error) {
	if req == nil {
		req = &domain.OCRRequest{}
	}

	ctx = context.WithoutCancel(ctx)
	if budget := s.config.Timing.WorkflowBudget; budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	w := &workflow{
		svc:     s,
		req:     req,
		sess:    s.logs.NewSession(),
		runID:   "run_" + uuid.New().String()[:8],
		started: s.now(),
	}

	ctx, span := s.tracer.Start(ctx, "ocr.process", trace.WithAttributes(
		attribute.String("ocr.session_id", w.sess.ID()),
		attribute.String("ocr.run_id", w.runID),
		attribute.String("ocr.chatbot_id", req.ChatbotID),
	))
	defer span.End()

	w.begin(ctx)

	result, err := w.run(ctx)
	if err != nil {
		var wfErr *domain.WorkflowError
		if !errors.As(err, &wfErr) {
			wfErr = domain.NewError(domain.ErrorKindInternal, "unexpected failure", err)
		}
		span.RecordError(wfErr)
		span.SetStatus(codes.Error, wfErr.Error())
		w.fail(ctx, wfErr)
		return nil, wfErr
	}

	w.finish(ctx, result)
	return result, nil
}

func (w *workflow) run(ctx context.Context) (*domain.OCRResult, error) {
	steps := []struct {
		name string
		fn   stepFunc
	}{
		{StepCheckConfig, w.checkConfig},
		{StepCheckFile, w.checkFile},
		{StepCheckChatbot, w.checkChatbot},
		{StepValidate, w.validate},
		{StepUpload, w.upload},
		{StepRegister, w.register},
		{StepAttach, w.attach},
		{StepWait, w.wait},
		{StepComplete, w.complete},
		{StepPoll, w.poll},
		{StepExtract, w.extractData},
	}

	for _, st := range steps {
		if err := w.step(ctx, st.name, st.fn); err != nil {
			return nil, err
		}
	}
	return w.result(), nil
}

// step runs fn as one numbered step: session log, audit event, progress and span.
func (w *workflow) step(ctx context.Context, name string, fn stepFunc) error {
	s := w.svc
	ctx, span := s.tracer.Start(ctx, "ocr.step", trace.WithAttributes(attribute.String("ocr.step", name)))
	defer span.End()

	stepID := w.sess.Start(name)
	span.SetAttributes(attribute.String("ocr.step_id", stepID))

	payload := domain.StepPayload{Step: stepID, Name: name}
	s.recordEventBestEffort(ctx, w.runID, domain.EventTypeStepStarted, payload)
	w.publish(progress.TypeStepStarted, payload)

	result, err := fn(ctx)
	if err != nil {
		wfErr := classify(ctx, err)
		wfErr.Step = stepID
		w.sess.End(stepID, false, failureDetails(wfErr))

		span.RecordError(wfErr)
		span.SetStatus(codes.Error, wfErr.Error())

		payload.Kind = wfErr.Kind
		payload.Message = wfErr.Message
		s.recordEventBestEffort(ctx, w.runID, domain.EventTypeStepFailed, payload)
		w.publish(progress.TypeStepFailed, payload)
		return wfErr
	}

	w.sess.End(stepID, true, result)
	s.recordEventBestEffort(ctx, w.runID, domain.EventTypeStepDone, payload)
	w.publish(progress.TypeStepDone, payload)
	return nil
}

func (w *workflow) checkConfig(ctx context.Context) (any, error) {
	cfg := w.svc.config
	if missing := cfg.Missing(); len(missing) > 0 {
		return nil, domain.NewError(domain.ErrorKindConfiguration,
			"MaiAgent configuration incomplete, set "+strings.Join(missing, ", "), nil)
	}
	return map[string]any{
		"baseUrl":        cfg.Provider.BaseURL,
		"conversationId": cfg.Provider.ConversationID,
	}, nil
}

func (w *workflow) checkFile(ctx context.Context) (any, error) {
	doc := w.req.Document
	if doc == nil {
		return nil, domain.NewError(domain.ErrorKindValidation, "no file uploaded", nil)
	}
	w.mediaType = policy.NormalizeMediaType(doc.MediaType)
	w.size = max(doc.Size, int64(len(doc.Data)))
	return map[string]any{
		"filename":  doc.Filename,
		"mediaType": w.mediaType,
		"size":      w.size,
	}, nil
}

func (w *workflow) checkChatbot(ctx context.Context) (any, error) {
	chatbotID := strings.TrimSpace(w.req.ChatbotID)
	if chatbotID == "" {
		return nil, domain.NewError(domain.ErrorKindValidation, "chatbot id is required", nil)
	}
	w.req.ChatbotID = chatbotID
	return map[string]any{"chatbotId": chatbotID}, nil
}

func (w *workflow) validate(ctx context.Context) (any, error) {
	s := w.svc
	doc := w.req.Document

	reasons, err := s.policyEngine.Evaluate(ctx, policy.Intake{
		MediaType:          w.mediaType,
		Size:               w.size,
		MaxSize:            s.config.Upload.MaxBytes,
		AcceptedMediaTypes: s.config.Upload.AcceptedMediaTypes,
	})
	if err != nil {
		return nil, domain.NewError(domain.ErrorKindInternal, "intake policy evaluation failed", err)
	}
	if len(reasons) > 0 {
		return nil, domain.NewError(domain.ErrorKindValidation, strings.Join(reasons, "; "), nil)
	}

	result := map[string]any{"mediaType": w.mediaType, "size": w.size}
	if w.mediaType == pdf.MediaType && s.pdf != nil {
		pages, err := s.pdf.PageCount(doc.Data)
		if err != nil {
			return nil, domain.NewError(domain.ErrorKindValidation, "invalid PDF document", err)
		}
		result["pages"] = pages
	}

	w.attachment.StandardizedFilename = standardizedFilename(doc.Filename, w.mediaType, w.started)
	result["standardizedFilename"] = w.attachment.StandardizedFilename
	return result, nil
}

func (w *workflow) upload(ctx context.Context) (any, error) {
	doc := w.req.Document
	res, err := w.svc.provider.UploadAttachment(ctx, w.attachment.StandardizedFilename, w.mediaType, doc.Data)
	if err != nil {
		return nil, uploadError(err, res)
	}
	w.attachment.RawURI = res.URI

	out := map[string]any{"rawUri": res.URI}
	if res.Response != nil {
		out["status"] = res.Response.StatusCode
	}
	return out, nil
}

func (w *workflow) register(ctx context.Context) (any, error) {
	att, err := w.svc.provider.RegisterAttachment(ctx, &maiagent.RegisterRequest{
		Filename: w.attachment.StandardizedFilename,
		File:     w.attachment.RawURI,
	})
	if err != nil {
		return nil, providerError(domain.ErrorKindRegistration, "attachment registration failed", err)
	}
	if att.ID == "" {
		return nil, domain.NewError(domain.ErrorKindRegistration, "registration response carries no attachment id", nil)
	}

	w.attachment.AttachmentID = att.ID
	w.attachment.FileURI = att.File
	if w.attachment.FileURI == "" {
		w.attachment.FileURI = w.attachment.RawURI
	}
	return w.attachment, nil
}

func (w *workflow) attach(ctx context.Context) (any, error) {
	conversationID := w.svc.config.Provider.ConversationID
	err := w.svc.provider.AttachToConversation(ctx, conversationID, &maiagent.ConversationAttachment{
		Filename: w.attachment.StandardizedFilename,
		File:     w.attachment.FileURI,
		Type:     domain.AttachmentTypeImage,
	})
	if err != nil {
		return nil, providerError(domain.ErrorKindConversationAttachment, "conversation attachment failed", err)
	}
	return map[string]any{"conversationId": conversationID, "attachmentId": w.attachment.AttachmentID}, nil
}

func (w *workflow) wait(ctx context.Context) (any, error) {
	delay := w.svc.config.Timing.PreCompletionDelay
	if err := w.svc.sleep(ctx, delay); err != nil {
		return nil, domain.NewError(domain.ErrorKindTimeout, "workflow time budget exhausted before completion request", err)
	}
	return map[string]any{"delayMs": delay.Milliseconds()}, nil
}

func (w *workflow) complete(ctx context.Context) (any, error) {
	resp, err := w.svc.provider.CreateCompletion(ctx, w.req.ChatbotID, &maiagent.CompletionRequest{
		Message: maiagent.CompletionMessage{
			Content: w.svc.config.Provider.Prompt,
			Attachments: []maiagent.CompletionAttachment{{
				ID:       w.attachment.AttachmentID,
				Type:     domain.AttachmentTypeImage,
				Filename: w.attachment.StandardizedFilename,
				File:     w.attachment.FileURI,
			}},
		},
		IsStreaming: false,
	})
	if err != nil {
		return nil, providerError(domain.ErrorKindCompletionRequest, "completion request failed", err)
	}
	if resp.ConversationID == "" {
		return nil, domain.NewError(domain.ErrorKindCompletionRequest, "completion response carries no conversationId", nil)
	}
	w.completion = resp
	return resp, nil
}

func (w *workflow) poll(ctx context.Context) (any, error) {
	reply, attempts, err := w.pollReply(ctx, w.completion.ConversationID)
	if err != nil {
		return nil, err
	}
	w.reply = reply
	return map[string]any{"aiResponseId": reply.ID, "attempts": attempts, "contentLength": len(reply.Content)}, nil
}

func (w *workflow) extractData(ctx context.Context) (any, error) {
	inv, err := extract.ParseReply(w.reply.Content)
	if err != nil {
		w.sess.Log(sessionlog.LevelError, "structured data could not be parsed, returning raw reply only",
			map[string]any{"error": err.Error()})
		return map[string]any{"extracted": false}, nil
	}
	w.invoice = inv
	return map[string]any{"extracted": inv != nil, "invoice": inv}, nil
}

func (w *workflow) result() *domain.OCRResult {
	raw := w.reply.Raw
	if len(raw) == 0 {
		raw, _ = json.Marshal(w.reply)
	}
	extracted := json.RawMessage("null")
	if w.invoice != nil {
		if b, err := json.Marshal(w.invoice); err == nil {
			extracted = b
		}
	}
	elapsed := w.svc.now().Sub(w.started).Seconds()

	return &domain.OCRResult{
		Success:                true,
		SessionID:              w.sess.ID(),
		ConversationID:         w.completion.ConversationID,
		AttachedConversationID: w.svc.config.Provider.ConversationID,
		MessageID:              w.completion.ID,
		AIResponseID:           w.reply.ID,
		RawResponse:            raw,
		ExtractedData:          extracted,
		ProcessingTimeSeconds:  math.Round(elapsed*1000) / 1000,
		Method:                 domain.MethodMessagesAPI,
	}
}

func (w *workflow) begin(ctx context.Context) {
	s := w.svc
	run := &domain.Run{
		RunID:     w.runID,
		SessionID: w.sess.ID(),
		ChatbotID: w.req.ChatbotID,
		Status:    domain.RunStatusRunning,
		StartedAt: w.started,
	}
	if doc := w.req.Document; doc != nil {
		run.Filename = doc.Filename
		run.MediaType = doc.MediaType
		run.Size = max(doc.Size, int64(len(doc.Data)))
	}

	w.sess.Log(sessionlog.LevelInfo, "OCR request received", map[string]any{
		"runId":     w.runID,
		"chatbotId": run.ChatbotID,
		"filename":  run.Filename,
		"mediaType": run.MediaType,
		"size":      run.Size,
	})

	pctx, cancel := persistContext(ctx)
	defer cancel()
	if err := s.store.CreateRun(pctx, run); err != nil {
		log.Printf("WARN: failed to create run %s: %v", w.runID, err)
	}
	s.recordEventBestEffort(ctx, w.runID, domain.EventTypeRunStarted, run)
	w.publish(progress.TypeRunStarted, domain.StepPayload{})
}

func (w *workflow) finish(ctx context.Context, result *domain.OCRResult) {
	s := w.svc
	w.sess.Log(sessionlog.LevelSuccess, "OCR workflow completed", map[string]any{
		"conversationId":        result.ConversationID,
		"aiResponseId":          result.AIResponseID,
		"processingTimeSeconds": result.ProcessingTimeSeconds,
	})

	resultJSON, _ := json.Marshal(result)
	pctx, cancel := persistContext(ctx)
	defer cancel()
	if _, err := s.store.UpdateRunCompleted(pctx, w.runID, domain.RunStatusDone, "", nil, resultJSON); err != nil {
		log.Printf("WARN: failed to complete run %s: %v", w.runID, err)
	}
	s.recordEventBestEffort(ctx, w.runID, domain.EventTypeRunDone, map[string]any{
		"processingTimeSeconds": result.ProcessingTimeSeconds,
	})
	w.publish(progress.TypeDone, domain.StepPayload{})
}

func (w *workflow) fail(ctx context.Context, wfErr *domain.WorkflowError) {
	s := w.svc
	details := failureDetails(wfErr)
	w.sess.Log(sessionlog.LevelError, "OCR workflow failed", details)

	status := domain.RunStatusFailed
	if wfErr.Kind == domain.ErrorKindTimeout {
		status = domain.RunStatusTimeout
	}
	errData, _ := json.Marshal(map[string]any{
		"kind":        wfErr.Kind,
		"step":        wfErr.Step,
		"message":     wfErr.Message,
		"status_code": wfErr.StatusCode,
	})

	pctx, cancel := persistContext(ctx)
	defer cancel()
	if _, err := s.store.UpdateRunCompleted(pctx, w.runID, status, wfErr.Kind, errData, nil); err != nil {
		log.Printf("WARN: failed to fail run %s: %v", w.runID, err)
	}
	s.recordEventBestEffort(ctx, w.runID, domain.EventTypeRunFailed, domain.StepPayload{
		Step:    wfErr.Step,
		Kind:    wfErr.Kind,
		Message: wfErr.Message,
	})
	w.publish(progress.TypeError, domain.StepPayload{Step: wfErr.Step, Kind: wfErr.Kind, Message: wfErr.Message})
}

func (w *workflow) publish(msgType string, p domain.StepPayload) {
	w.svc.publish(w.req.ClientID, &progress.Message{
		Type:      msgType,
		Ts:        w.svc.now().UnixMilli(),
		RunID:     w.runID,
		SessionID: w.sess.ID(),
		Step:      p.Step,
		Name:      p.Name,
		Kind:      string(p.Kind),
		Message:   p.Message,
	})
}

// classify turns any step failure into a WorkflowError. Once the workflow
// budget is spent every failure is reported as a timeout.
func classify(ctx context.Context, err error) *domain.WorkflowError {
	var wfErr *domain.WorkflowError
	isWF := errors.As(err, &wfErr)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && (!isWF || wfErr.Kind != domain.ErrorKindTimeout) {
		return &domain.WorkflowError{
			Kind:    domain.ErrorKindTimeout,
			Message: "workflow time budget exhausted",
			Err:     err,
		}
	}
	if isWF {
		return wfErr
	}
	return domain.NewError(domain.ErrorKindInternal, "unexpected failure", err)
}

// providerError wraps a provider failure, keeping the upstream response for diagnostics.
func providerError(kind domain.ErrorKind, message string, err error) *domain.WorkflowError {
	wfErr := domain.NewError(kind, message, err)
	if apiErr, ok := maiagent.AsAPIError(err); ok {
		wfErr.StatusCode = apiErr.StatusCode
		wfErr.Body = apiErr.Body
		wfErr.Header = apiErr.Header
	}
	return wfErr
}

func uploadError(err error, res *maiagent.UploadResult) *domain.WorkflowError {
	if maiagent.IsUnauthorized(err) {
		return providerError(domain.ErrorKindAuthentication, "MaiAgent rejected the API key", err)
	}
	if errors.Is(err, maiagent.ErrNoResourceURI) {
		wfErr := domain.NewError(domain.ErrorKindUpload, "upload response carries no file URI", err)
		if res != nil && res.Response != nil {
			wfErr.StatusCode = res.Response.StatusCode
			wfErr.Body = string(res.Response.Body)
			wfErr.Header = res.Response.Header
		}
		return wfErr
	}
	return providerError(domain.ErrorKindUpload, "file upload failed", err)
}

func failureDetails(wfErr *domain.WorkflowError) map[string]any {
	details := map[string]any{
		"kind":    wfErr.Kind,
		"message": wfErr.Message,
		"error":   wfErr.Error(),
	}
	if wfErr.StatusCode != 0 {
		details["status"] = wfErr.StatusCode
	}
	if wfErr.Body != "" {
		details["body"] = wfErr.Body
	}
	if len(wfErr.Header) > 0 {
		details["headers"] = wfErr.Header
	}
	return details
}

// standardizedFilename names the upload "ocr-<unix millis><ext>". The extension
// comes from the original filename, else from the media type.
// safeExt limits kept extensions to short lowercase ASCII suffixes.
var safeExt = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

func standardizedFilename(original, mediaType string, at time.Time) string {
	ext := strings.ToLower(filepath.Ext(original))
	if !safeExt.MatchString(ext) {
		ext = extensionsByType[mediaType]
	}
	if ext == "" {
		ext = ".bin"
	}
	return fmt.Sprintf("ocr-%d%s", at.UnixMilli(), ext)
}
