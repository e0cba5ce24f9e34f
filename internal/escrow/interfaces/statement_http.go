package interfaces

import (
	"errors"
	"net/http"
	"time"

	"github.com/sapirl7/solarma-sub000/internal/auth"
	"github.com/sapirl7/solarma-sub000/internal/escrow/application"
	escrow "github.com/sapirl7/solarma-sub000/internal/escrow/domain"
	"github.com/sapirl7/solarma-sub000/internal/observability/metrics"
)

// StatementHandler serves statement export endpoints.
type StatementHandler struct {
	service *application.StatementService
}

// NewStatementHandler constructs a StatementHandler.
func NewStatementHandler(service *application.StatementService) (*StatementHandler, error) {
	if service == nil {
		return nil, errors.New("statement handler: nil service")
	}
	return &StatementHandler{service: service}, nil
}

// ServeHTTP routes statement requests. The owner is the authenticated
// caller; format comes from the query string and defaults to pdf.
func (h *StatementHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/v1/statements/export" || r.Method != http.MethodGet {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	owner := escrow.Address(auth.CallerFromContext(r.Context()))
	if owner == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "pdf"
	}
	switch format {
	case "pdf":
		h.exportPDF(w, r, owner)
	case "xlsx":
		h.exportXLSX(w, r, owner)
	default:
		http.Error(w, "format must be pdf or xlsx", http.StatusBadRequest)
	}
}

func (h *StatementHandler) exportPDF(w http.ResponseWriter, r *http.Request, owner escrow.Address) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveStatementExport("pdf", result, time.Since(start))
	}()

	stmt, err := h.service.Build(r.Context(), owner)
	if err != nil {
		result = metrics.ResultError
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	data, err := BuildStatementPDF(stmt)
	if err != nil {
		result = metrics.ResultError
		http.Error(w, "export pdf error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *StatementHandler) exportXLSX(w http.ResponseWriter, r *http.Request, owner escrow.Address) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveStatementExport("xlsx", result, time.Since(start))
	}()

	stmt, err := h.service.Build(r.Context(), owner)
	if err != nil {
		result = metrics.ResultError
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	data, err := BuildStatementXLSX(stmt)
	if err != nil {
		result = metrics.ResultError
		http.Error(w, "export xlsx error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
