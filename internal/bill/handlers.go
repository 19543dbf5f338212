package bill

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dimasfr/splitbill/internal/auth"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type splitRequest struct {
	SplitDetails json.RawMessage `json:"splitDetails"`
	Total        float64         `json:"total"`
}

// writeJSON writes a JSON response with CORS headers set
func writeJSON(w http.ResponseWriter, v interface{}, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes an error response with a stable shape. Messages stay
// short; internals never leak to the caller.
func writeError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, map[string]string{"error": message}, code)
}

// handleRegister creates a new account
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Body request tidak valid.", http.StatusBadRequest)
		return
	}

	if _, err := s.auth.Register(req.Email, req.Password); err != nil {
		switch {
		case errors.Is(err, auth.ErrEmailTaken):
			writeError(w, "Email sudah terdaftar.", http.StatusConflict)
		case errors.Is(err, auth.ErrMissingFields):
			writeError(w, "Email dan password wajib diisi.", http.StatusBadRequest)
		default:
			slog.Error("Error registering user", "error", err)
			writeError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, map[string]string{"message": "Pengguna berhasil terdaftar."}, http.StatusCreated)
}

// handleLogin verifies credentials and returns an access token
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Body request tidak valid.", http.StatusBadRequest)
		return
	}

	token, err := s.auth.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, "Email atau password salah.", http.StatusUnauthorized)
			return
		}
		slog.Error("Error logging in", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]string{"accessToken": token}, http.StatusOK)
}

// handleUpload ingests a receipt image and returns the persisted bill
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, user *auth.User) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, "Gagal membaca form upload.", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, "File struk tidak ditemukan di form.", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		writeError(w, "Gagal membaca file.", http.StatusBadRequest)
		return
	}

	bill, err := s.service.Process(user, data, header.Header.Get("Content-Type"))
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyUpload):
			writeError(w, "File struk kosong.", http.StatusBadRequest)
		case errors.Is(err, ErrTooLarge):
			writeError(w, "Ukuran file melebihi batas 10MB.", http.StatusBadRequest)
		case errors.Is(err, ErrBadImage):
			writeError(w, "Format file tidak didukung.", http.StatusBadRequest)
		default:
			// Granular pipeline errors stay in the FAILED bill record
			writeError(w, "Gagal memproses struk setelah diunggah.", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, bill, http.StatusCreated)
}

// handleListBills returns the owner's bills, newest first
func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request, user *auth.User) {
	bills, err := s.service.ListForOwner(user.ID)
	if err != nil {
		slog.Error("Error listing bills", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, bills, http.StatusOK)
}

// handleGetBill returns one bill per the ownership rules
func (s *Server) handleGetBill(w http.ResponseWriter, r *http.Request, user *auth.User) {
	bill, err := s.service.Get(r.PathValue("id"), user.ID)
	if err != nil {
		writeBillError(w, err)
		return
	}

	writeJSON(w, bill, http.StatusOK)
}

// handleUpdateSplit overwrites the split assignment and total
func (s *Server) handleUpdateSplit(w http.ResponseWriter, r *http.Request, user *auth.User) {
	var req splitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Body request tidak valid.", http.StatusBadRequest)
		return
	}

	bill, err := s.service.UpdateSplit(r.PathValue("id"), user.ID, req.SplitDetails, req.Total)
	if err != nil {
		writeBillError(w, err)
		return
	}

	writeJSON(w, bill, http.StatusOK)
}

// handleDeleteBill removes a bill and its stored image
func (s *Server) handleDeleteBill(w http.ResponseWriter, r *http.Request, user *auth.User) {
	if err := s.service.Delete(r.PathValue("id"), user.ID); err != nil {
		writeBillError(w, err)
		return
	}

	writeJSON(w, map[string]string{"message": "Transaksi berhasil dihapus."}, http.StatusOK)
}

// writeBillError maps owner-scoped lookup failures to their status codes
func writeBillError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, "Tagihan tidak ditemukan.", http.StatusNotFound)
	case errors.Is(err, ErrNotOwner):
		writeError(w, "Anda tidak memiliki akses ke tagihan ini.", http.StatusUnauthorized)
	default:
		slog.Error("Error handling bill request", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
	}
}
