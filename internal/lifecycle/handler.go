package lifecycle

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/document"
	"github.com/meridian-erp/meridian-erp/internal/payment"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler exposes the lifecycle engine over JSON.
type Handler struct {
	logger   *slog.Logger
	engine   *Engine
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, engine *Engine) *Handler {
	return &Handler{logger: logger, engine: engine, validate: validator.New()}
}

// MountRoutes registers document lifecycle routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/documents", h.createDocument)
	r.Get("/documents", h.listDocuments)
	r.Get("/documents/{id}", h.getDocument)
	r.Post("/documents/{id}/post", h.postDocument)
	r.Post("/documents/{id}/cancel", h.cancelDocument)
	r.Delete("/documents/{id}", h.deleteDocument)
	r.Get("/documents/{id}/payments", h.listPayments)
	r.Post("/documents/{id}/payments", h.recordPayment)
	r.Patch("/documents/{id}/payments/{paymentID}", h.updatePayment)
	r.Delete("/documents/{id}/payments/{paymentID}", h.deletePayment)
}

func idParam(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func (h *Handler) createDocument(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	doc, err := h.engine.Create(r.Context(), input)
	if err != nil {
		h.logger.Error("create document", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	companyID, _ := strconv.ParseInt(r.URL.Query().Get("company_id"), 10, 64)
	if companyID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "company_id is required")
		return
	}
	branchID, _ := strconv.ParseInt(r.URL.Query().Get("branch_id"), 10, 64)
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	docs, pagination, err := h.engine.List(r.Context(), document.ListFilter{
		CompanyID: companyID,
		BranchID:  branchID,
		DocType:   document.DocType(r.URL.Query().Get("type")),
		Status:    document.Status(r.URL.Query().Get("status")),
		Page:      page,
		PerPage:   perPage,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": docs, "pagination": pagination})
}

func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return
	}
	doc, err := h.engine.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) postDocument(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return
	}
	doc, err := h.engine.Post(r.Context(), id)
	if err != nil {
		h.logger.Error("post document", slog.Int64("document_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required"`
	Refund *struct {
		Mode      string `json:"mode" validate:"required,oneof=refund credit"`
		AccountID int64  `json:"account_id"`
		Method    string `json:"method"`
	} `json:"refund"`
}

func (h *Handler) cancelDocument(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return
	}
	var req cancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var refund *RefundOptions
	if req.Refund != nil {
		refund = &RefundOptions{Mode: RefundMode(req.Refund.Mode), AccountID: req.Refund.AccountID}
		if req.Refund.Method != "" {
			method, err := payment.ParseMethod(req.Refund.Method)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			refund.Method = method
		}
	}
	if err := h.engine.Cancel(r.Context(), id, req.Reason, refund); err != nil {
		h.logger.Error("cancel document", slog.Int64("document_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return
	}
	if err := h.engine.DeleteDraft(r.Context(), id); err != nil {
		h.logger.Error("delete draft", slog.Int64("document_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return
	}
	payments, err := h.engine.ListPayments(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payments)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return
	}
	var input RecordPaymentInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	pay, err := h.engine.RecordPayment(r.Context(), id, input)
	if err != nil {
		h.logger.Error("record payment", slog.Int64("document_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, pay)
}

func (h *Handler) updatePayment(w http.ResponseWriter, r *http.Request) {
	docID, err := idParam(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return
	}
	payID, err := idParam(r, "paymentID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid payment id")
		return
	}
	var input UpdatePaymentInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	pay, err := h.engine.UpdatePayment(r.Context(), payID, docID, input)
	if err != nil {
		h.logger.Error("update payment", slog.Int64("payment_id", payID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pay)
}

func (h *Handler) deletePayment(w http.ResponseWriter, r *http.Request) {
	docID, err := idParam(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return
	}
	payID, err := idParam(r, "paymentID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid payment id")
		return
	}
	if err := h.engine.DeletePayment(r.Context(), payID, docID); err != nil {
		h.logger.Error("delete payment", slog.Int64("payment_id", payID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}
