package handler

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"docuchat/internal/app"
	"docuchat/internal/model"
	"docuchat/internal/transport/http/response"
)

type DocumentHandler struct {
	documentService *app.DocumentService
}

func NewDocumentHandler(documentService *app.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

// UploadResult reports the outcome of one file in a multi-file upload.
type UploadResult struct {
	Filename string          `json:"filename"`
	Document *model.Document `json:"document,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Upload ingests one or more files from a multipart form. Files are processed
// independently; a failure on one file does not abort the others.
func (h *DocumentHandler) Upload(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid multipart form")
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "no files provided, use the 'files' form field")
		return
	}

	results := make([]UploadResult, 0, len(files))
	succeeded := 0
	for _, fileHeader := range files {
		result := UploadResult{Filename: fileHeader.Filename}

		data, readErr := readMultipartFile(fileHeader)
		if readErr != nil {
			result.Error = "failed to read file"
			results = append(results, result)
			continue
		}

		document, ingestErr := h.documentService.Ingest(c.Request.Context(), app.IngestInput{
			UserID:   userID,
			Filename: fileHeader.Filename,
			Data:     data,
		})
		if ingestErr != nil {
			result.Error = ingestErrorMessage(ingestErr)
			results = append(results, result)
			continue
		}
		result.Document = document
		succeeded++
		results = append(results, result)
	}

	response.OK(c, gin.H{
		"results":   results,
		"succeeded": succeeded,
		"failed":    len(files) - succeeded,
	})
}

func (h *DocumentHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "page_size", 20)

	result, err := h.documentService.List(userID, page, pageSize)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list documents failed")
		return
	}
	response.OK(c, result)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	document, err := h.documentService.Get(userID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrDocumentNotFound):
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get document failed")
		}
		return
	}
	response.OK(c, document)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	documentID := c.Param("id")
	if err := h.documentService.Delete(userID, documentID); err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrDocumentNotFound):
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete document failed")
		}
		return
	}
	response.OK(c, gin.H{"deleted_document_id": documentID})
}

func readMultipartFile(fileHeader *multipart.FileHeader) ([]byte, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

// ingestErrorMessage maps ingestion failures to messages safe to return to
// the client.
func ingestErrorMessage(err error) string {
	switch {
	case errors.Is(err, app.ErrInvalidInput),
		errors.Is(err, app.ErrUnsupportedFileType),
		errors.Is(err, app.ErrDocumentTooLarge),
		errors.Is(err, app.ErrDocumentEmpty):
		return err.Error()
	default:
		return "failed to process document"
	}
}
