// ABOUTME: Routes inbound page and popup messages to the merge engine and extraction coordinator
// ABOUTME: Every failure becomes an error response; nothing escapes as a panic
package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/oklog/ulid/v2"

	"github.com/harperreed/sfcrm/extract"
	"github.com/harperreed/sfcrm/merge"
	"github.com/harperreed/sfcrm/models"
)

// Message types accepted by the router.
const (
	TypePing             = "PING"
	TypePong             = "PONG"
	TypeMergeRecord      = "MERGE_RECORD"
	TypeExtractionResult = "EXTRACTION_RESULT"
	TypeRequestExtract   = "REQUEST_EXTRACT_ACTIVE_TAB"
	TypePageReady        = "PAGE_READY"
	TypePageGone         = "PAGE_GONE"
)

// Message is one inbound command.
//
// MERGE_RECORD carries {objectType, record} in Payload. EXTRACTION_RESULT
// carries the record itself in Payload with the type in ObjectType.
type Message struct {
	ID         string          `json:"id,omitempty"`
	Type       string          `json:"type"`
	ObjectType string          `json:"objectType,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	PageID     string          `json:"pageId,omitempty"`
	URL        string          `json:"url,omitempty"`
	Source     string          `json:"source,omitempty"`
}

// Response is the reply to one Message.
type Response struct {
	ReplyTo    string            `json:"replyTo,omitempty"`
	Type       string            `json:"type,omitempty"`
	Received   bool              `json:"received,omitempty"`
	Status     extract.Status    `json:"status,omitempty"`
	Updated    *merge.Result     `json:"updated,omitempty"`
	Error      string            `json:"error,omitempty"`
	ObjectType models.ObjectType `json:"objectType,omitempty"`
}

func errorResponse(err error) Response {
	return Response{Status: extract.StatusError, Error: err.Error()}
}

func okResponse(res merge.Result) Response {
	return Response{Status: extract.StatusOK, Updated: &res}
}

func fromOutcome(o extract.Outcome) Response {
	return Response{Status: o.Status, Updated: o.Updated, Error: o.Error, ObjectType: o.ObjectType}
}

// SenderFactory builds the channel a registered page receives commands on.
type SenderFactory func(pageID string) extract.Sender

// Router dispatches messages. It is safe for concurrent use.
type Router struct {
	merger      extract.Merger
	coordinator *extract.Coordinator
	pages       *extract.Pages
	senders     SenderFactory
	logger      *log.Logger
}

// NewRouter wires the message handlers. pages and senders may be nil when
// pages never register themselves (PAGE_READY then fails).
func NewRouter(m extract.Merger, c *extract.Coordinator, pages *extract.Pages, senders SenderFactory, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.Default()
	}
	return &Router{
		merger:      m,
		coordinator: c,
		pages:       pages,
		senders:     senders,
		logger:      logger.With("component", "router"),
	}
}

// Handle processes one message and always returns a response.
func (r *Router) Handle(ctx context.Context, msg Message) (resp Response) {
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	logger := r.logger.With("msg", msg.ID, "type", msg.Type)

	defer func() {
		if p := recover(); p != nil {
			logger.Error("handler panicked", "panic", p)
			resp = errorResponse(fmt.Errorf("internal error: %v", p))
		}
		resp.ReplyTo = msg.ID
	}()

	logger.Debug("message received", "objectType", msg.ObjectType, "source", msg.Source)

	switch msg.Type {
	case TypePing:
		return Response{Type: TypePong, Received: true}
	case TypeMergeRecord:
		return r.handleMergeRecord(ctx, msg)
	case TypeExtractionResult:
		return r.handleExtractionResult(ctx, msg)
	case TypeRequestExtract:
		return r.handleRequestExtract(ctx, msg)
	case TypePageReady:
		return r.handlePageReady(msg)
	case TypePageGone:
		return r.handlePageGone(msg)
	case "":
		return errorResponse(fmt.Errorf("message type is required"))
	default:
		return errorResponse(fmt.Errorf("unknown message type %q", msg.Type))
	}
}

type mergePayload struct {
	ObjectType string          `json:"objectType"`
	Record     json.RawMessage `json:"record"`
}

func (r *Router) handleMergeRecord(ctx context.Context, msg Message) Response {
	var p mergePayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return errorResponse(fmt.Errorf("invalid MERGE_RECORD payload: %w", err))
		}
	}
	if p.ObjectType == "" || len(p.Record) == 0 {
		return errorResponse(fmt.Errorf("MERGE_RECORD requires payload.objectType and payload.record"))
	}

	t, err := models.ParseObjectType(p.ObjectType)
	if err != nil {
		return errorResponse(err)
	}
	record, err := models.ParseRecord(p.Record)
	if err != nil {
		return errorResponse(err)
	}

	res, err := r.merger.MergeRecord(ctx, t, record)
	if err != nil {
		r.logger.Error("failed to merge record", "type", t, "err", err)
		return errorResponse(err)
	}
	return okResponse(res)
}

func (r *Router) handleExtractionResult(ctx context.Context, msg Message) Response {
	if msg.ObjectType == "" || len(msg.Payload) == 0 {
		return errorResponse(fmt.Errorf("EXTRACTION_RESULT requires objectType and payload"))
	}
	t, err := models.ParseObjectType(msg.ObjectType)
	if err != nil {
		return errorResponse(err)
	}
	record, err := models.ParseRecord(msg.Payload)
	if err != nil {
		return errorResponse(err)
	}

	res, err := r.coordinator.Observe(ctx, t, record)
	if err != nil {
		return errorResponse(err)
	}
	return okResponse(res)
}

func (r *Router) handleRequestExtract(ctx context.Context, msg Message) Response {
	if msg.ObjectType == "" {
		return errorResponse(fmt.Errorf("REQUEST_EXTRACT_ACTIVE_TAB requires objectType"))
	}
	t, err := models.ParseObjectType(msg.ObjectType)
	if err != nil {
		return errorResponse(err)
	}
	return fromOutcome(r.coordinator.RequestExtraction(ctx, t))
}

func (r *Router) handlePageReady(msg Message) Response {
	if msg.PageID == "" {
		return errorResponse(fmt.Errorf("PAGE_READY requires pageId"))
	}
	if r.pages == nil || r.senders == nil {
		return errorResponse(fmt.Errorf("page registration is not available"))
	}
	r.pages.Activate(msg.PageID, r.senders(msg.PageID))
	r.logger.Info("page ready", "page", msg.PageID, "url", msg.URL)
	return Response{Status: extract.StatusOK}
}

func (r *Router) handlePageGone(msg Message) Response {
	if msg.PageID == "" {
		return errorResponse(fmt.Errorf("PAGE_GONE requires pageId"))
	}
	if r.pages != nil {
		r.pages.Deactivate(msg.PageID)
	}
	r.logger.Info("page gone", "page", msg.PageID)
	return Response{Status: extract.StatusOK}
}
