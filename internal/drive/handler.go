package drive

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

type Handler struct {
	source        Source
	ingestService *IngestService
}

func NewHandler(source Source, ingestService *IngestService) *Handler {
	return &Handler{
		source:        source,
		ingestService: ingestService,
	}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/drive/files", h.ListFiles).Methods("GET")
	router.HandleFunc("/api/drive/files/download", h.DownloadFile).Methods("GET")
	router.HandleFunc("/api/drive/forecast", h.Forecast).Methods("POST")
}

func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	folderID := query.Get("folderId")

	if folderPath := query.Get("path"); folderPath != "" {
		var err error
		folderID, err = h.source.FindFolderByPath(r.Context(), folderPath)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
	}

	files, err := h.source.ListFiles(r.Context(), folderID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if files == nil {
		files = []*File{}
	}

	writeJSON(w, http.StatusOK, files)
}

func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	fileID := r.URL.Query().Get("fileId")
	if fileID == "" {
		http.Error(w, "fileId parameter is required", http.StatusBadRequest)
		return
	}

	meta, err := h.source.GetFile(r.Context(), fileID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", meta.MimeType)
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(meta.Name))

	if err := h.source.DownloadFile(r.Context(), fileID, w); err != nil {
		log.Error().Err(err).Str("file_id", fileID).Msg("drive download failed")
	}
}

// Forecast downloads the report named by fileId and runs a forecast over it.
// stockFileId, product_ids and publish are optional.
func (h *Handler) Forecast(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := IngestRequest{
		FileID:      query.Get("fileId"),
		StockFileID: query.Get("stockFileId"),
		Publish:     query.Get("publish") == "true",
	}
	if req.FileID == "" {
		http.Error(w, "fileId parameter is required", http.StatusBadRequest)
		return
	}
	for _, id := range strings.Split(query.Get("product_ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			req.ProductIDs = append(req.ProductIDs, id)
		}
	}

	resp, err := h.ingestService.IngestFile(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		var (
			schemaErr *domain.SchemaError
			dataErr   *domain.DataError
		)
		if errors.As(err, &schemaErr) || errors.As(err, &dataErr) {
			status = http.StatusUnprocessableEntity
		}
		log.Error().Err(err).Str("file_id", req.FileID).Msg("drive forecast failed")
		writeJSON(w, status, map[string]string{"status": "error", "error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
