package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"sejf-plikow/internal/database"
	"sejf-plikow/internal/models"
	"sejf-plikow/internal/storage"
)

// FileView is the dashboard representation of a stored file.
type FileView struct {
	models.File
	IsExpired        bool    `json:"is_expired"`
	HoursUntilExpiry float64 `json:"hours_until_expiry"`
}

// @Summary      List the user's files
// @Description  Returns all files owned by the authenticated user, newest upload first, with expiry status.
// @Tags         files
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   FileView
// @Failure      401  {string}  string "Unauthorized"
// @Failure      500  {string}  string "Internal Server Error"
// @Router       /files [get]
func (s *Server) ListFilesHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	files, err := s.store.ListFilesByOwner(r.Context(), claims.UserID)
	if err != nil {
		http.Error(w, "Failed to list files", http.StatusInternalServerError)
		return
	}

	now := time.Now().UTC()
	views := make([]FileView, 0, len(files))
	for _, file := range files {
		views = append(views, FileView{
			File:             file,
			IsExpired:        file.IsExpired(now),
			HoursUntilExpiry: file.HoursUntilExpiry(now),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

func (s *Server) extensionAllowed(filename string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		return false
	}
	for _, allowed := range s.config.Upload.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// @Summary      Upload a file
// @Description  Stores a file with a retention period. The file is automatically deleted once the retention elapses.
// @Tags         files
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        file            formData  file    true  "File content"
// @Param        retention_days  formData  int     true  "Days to retain the file (at least the configured minimum)"
// @Success      201  {object}  models.File
// @Failure      400  {string}  string "Validation error"
// @Failure      413  {string}  string "File too large"
// @Failure      500  {string}  string "Internal Server Error"
// @Router       /files [post]
func (s *Server) UploadFileHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	maxSize := s.config.Upload.MaxSizeBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+1024)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Error parsing multipart form", http.StatusBadRequest)
		return
	}

	file, handler, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error retrieving the file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	retentionDays, err := strconv.Atoi(r.FormValue("retention_days"))
	if err != nil || retentionDays < s.config.Sweep.MinRetentionDays {
		http.Error(w, fmt.Sprintf("Retention must be at least %d day(s)", s.config.Sweep.MinRetentionDays), http.StatusBadRequest)
		return
	}

	if !s.extensionAllowed(handler.Filename) {
		http.Error(w, "File type not allowed", http.StatusBadRequest)
		return
	}

	if handler.Size > maxSize {
		http.Error(w, fmt.Sprintf("Upload failed: size exceeds limit (%dMB)", maxSize/(1024*1024)), http.StatusRequestEntityTooLarge)
		return
	}

	name, err := storage.UniqueName(r.Context(), s.storage, claims.UserID, handler.Filename)
	if err != nil {
		http.Error(w, "Failed to resolve file name", http.StatusInternalServerError)
		return
	}

	locator, err := s.storage.Save(r.Context(), claims.UserID, name, file, handler.Size)
	if err != nil {
		http.Error(w, "Failed to save file", http.StatusInternalServerError)
		return
	}

	expiryTime := time.Now().UTC().Add(time.Duration(retentionDays) * 24 * time.Hour)

	params := database.CreateFileParams{
		UserID:     claims.UserID,
		Filename:   name,
		Locator:    locator,
		SizeBytes:  handler.Size,
		ExpiryTime: expiryTime,
	}

	created, err := s.store.CreateFile(r.Context(), params)
	if err != nil {
		// The blob must not outlive a failed row insert.
		if delErr := s.storage.Delete(r.Context(), claims.UserID, name); delErr != nil {
			log.Printf("ERROR: orphaned blob %q for user %d: %v", name, claims.UserID, delErr)
		}
		http.Error(w, "Failed to create file record", http.StatusInternalServerError)
		return
	}

	if err := s.store.LogEvent(r.Context(), claims.UserID, database.EventFileUploaded, map[string]interface{}{
		"file_id":     created.ID,
		"filename":    created.Filename,
		"expiry_time": created.ExpiryTime,
	}); err != nil {
		log.Printf("WARN: failed to journal upload event for file %d: %v", created.ID, err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

// @Summary      Download a file
// @Tags         files
// @Produce      application/octet-stream
// @Security     BearerAuth
// @Param        fileId  path  int  true  "File ID"
// @Success      200  {file}    file
// @Failure      404  {string}  string "File not found"
// @Router       /files/{fileId}/download [get]
func (s *Server) DownloadFileHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	fileID, err := strconv.ParseInt(chi.URLParam(r, "fileId"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid file ID", http.StatusBadRequest)
		return
	}

	file, err := s.store.GetFileByID(r.Context(), fileID, claims.UserID)
	if err != nil {
		http.Error(w, "Failed to retrieve file metadata", http.StatusInternalServerError)
		return
	}
	if file == nil {
		http.Error(w, "File not found or you do not have permission to access it", http.StatusNotFound)
		return
	}

	stream, err := s.storage.Open(r.Context(), claims.UserID, file.Filename)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "File not found on storage", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to read file from storage", http.StatusInternalServerError)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Disposition", "attachment; filename=\""+file.Filename+"\"")
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", file.SizeBytes))

	io.Copy(w, stream)
}

// @Summary      Delete a file
// @Description  Removes the file's content and metadata. A blob that is already gone is not an error.
// @Tags         files
// @Security     BearerAuth
// @Param        fileId  path  int  true  "File ID"
// @Success      204  {null}    nil "No Content"
// @Failure      404  {string}  string "File not found"
// @Failure      500  {string}  string "Internal Server Error"
// @Router       /files/{fileId} [delete]
func (s *Server) DeleteFileHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	fileID, err := strconv.ParseInt(chi.URLParam(r, "fileId"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid file ID", http.StatusBadRequest)
		return
	}

	file, err := s.store.GetFileByID(r.Context(), fileID, claims.UserID)
	if err != nil {
		http.Error(w, "Failed to retrieve file metadata", http.StatusInternalServerError)
		return
	}
	if file == nil {
		http.Error(w, "File not found or you do not have permission to delete it", http.StatusNotFound)
		return
	}

	// Blob first, row second, same order as the sweep: a failed blob delete
	// leaves the row in place so the sweep can retry later.
	if err := s.storage.Delete(r.Context(), claims.UserID, file.Filename); err != nil {
		http.Error(w, "Failed to delete file from storage", http.StatusInternalServerError)
		return
	}

	success, err := s.store.DeleteFileByOwner(r.Context(), fileID, claims.UserID)
	if err != nil {
		http.Error(w, "Failed to delete file", http.StatusInternalServerError)
		return
	}
	if !success {
		http.Error(w, "File not found or you do not have permission to delete it", http.StatusNotFound)
		return
	}

	if err := s.store.LogEvent(r.Context(), claims.UserID, database.EventFileDeleted, map[string]interface{}{
		"file_id":  fileID,
		"filename": file.Filename,
	}); err != nil {
		log.Printf("WARN: failed to journal delete event for file %d: %v", fileID, err)
	}

	w.WriteHeader(http.StatusNoContent)
}
