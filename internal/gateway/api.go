// ABOUTME: HTTP API handlers for access token and adb key provisioning
// ABOUTME: Decodes JSON requests, calls the admin service, and maps error kinds to responses

package gateway

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/2389/devicefarm-gateway/internal/admin"
	"github.com/2389/devicefarm-gateway/internal/auth"
)

// APIResponse is the envelope shared by every API response.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// CreateAccessTokenRequest is the JSON request body for POST /api/v1/admin/access-tokens.
type CreateAccessTokenRequest struct {
	Email string `json:"email"`
}

// CreateAccessTokenResponse is returned when a token is issued.
type CreateAccessTokenResponse struct {
	Success bool   `json:"success"`
	Title   string `json:"title"`
	Token   string `json:"token"`
}

// DeleteAccessTokenRequest is the JSON request body for DELETE /api/v1/admin/access-tokens.
type DeleteAccessTokenRequest struct {
	Email string `json:"email"`
	Title string `json:"title"`
}

// AddAdbKeyRequest is the JSON request body for POST /api/v1/admin/adb-keys.
type AddAdbKeyRequest struct {
	Email     string `json:"email"`
	PublicKey string `json:"publickey"`
	Title     string `json:"title,omitempty"`
}

// AddAdbKeyResponse is returned when a key is registered.
type AddAdbKeyResponse struct {
	Success     bool   `json:"success"`
	Title       string `json:"title"`
	Fingerprint string `json:"fingerprint"`
}

// DeleteAdbKeyRequest is the JSON request body for DELETE /api/v1/admin/adb-keys.
type DeleteAdbKeyRequest struct {
	Email       string `json:"email"`
	Fingerprint string `json:"fingerprint"`
}

// MeResponse is the JSON response for GET /api/v1/me.
type MeResponse struct {
	Success bool   `json:"success"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Group   string `json:"group"`
	Admin   bool   `json:"admin"`
}

// handleCreateAccessToken handles POST /api/v1/admin/access-tokens.
func (g *Gateway) handleCreateAccessToken(w http.ResponseWriter, r *http.Request) {
	var req CreateAccessTokenRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}

	res, err := g.service.CreateAccessToken(r.Context(), admin.CreateAccessTokenRequest{
		Email:    req.Email,
		OriginIP: clientIP(r),
	})
	if err != nil {
		g.sendServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CreateAccessTokenResponse{
		Success: true,
		Title:   res.Title,
		Token:   res.Token,
	})
}

// handleDeleteAccessToken handles DELETE /api/v1/admin/access-tokens.
func (g *Gateway) handleDeleteAccessToken(w http.ResponseWriter, r *http.Request) {
	var req DeleteAccessTokenRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}

	err := g.service.DeleteAccessToken(r.Context(), admin.DeleteAccessTokenRequest{
		Email: req.Email,
		Title: req.Title,
	})
	if err != nil {
		g.sendServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true})
}

// handleAddAdbKey handles POST /api/v1/admin/adb-keys.
// A key already held by another user is reported with 200 and success=false.
func (g *Gateway) handleAddAdbKey(w http.ResponseWriter, r *http.Request) {
	var req AddAdbKeyRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}

	res, err := g.service.AddAdbKey(r.Context(), admin.AddAdbKeyRequest{
		Email:     req.Email,
		PublicKey: req.PublicKey,
		Title:     req.Title,
		OriginIP:  clientIP(r),
	})
	if err != nil {
		g.sendServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AddAdbKeyResponse{
		Success:     true,
		Title:       res.Title,
		Fingerprint: res.Fingerprint,
	})
}

// handleDeleteAdbKey handles DELETE /api/v1/admin/adb-keys.
func (g *Gateway) handleDeleteAdbKey(w http.ResponseWriter, r *http.Request) {
	var req DeleteAdbKeyRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}

	err := g.service.RemoveAdbKey(r.Context(), admin.RemoveAdbKeyRequest{
		Email:       req.Email,
		Fingerprint: req.Fingerprint,
	})
	if err != nil {
		g.sendServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true})
}

// handleMe handles GET /api/v1/me.
func (g *Gateway) handleMe(w http.ResponseWriter, r *http.Request) {
	caller := auth.FromContext(r.Context())
	if caller == nil {
		writeJSON(w, http.StatusUnauthorized, APIResponse{Message: "not authenticated"})
		return
	}

	isAdmin, err := g.policy.IsAdmin(r.Context(), caller.Email)
	if err != nil {
		g.logger.Error("admin policy check failed", "caller", caller.Email, "error", err)
		writeJSON(w, http.StatusInternalServerError, APIResponse{})
		return
	}

	writeJSON(w, http.StatusOK, MeResponse{
		Success: true,
		Email:   caller.Email,
		Name:    caller.Name,
		Group:   caller.Group,
		Admin:   isAdmin,
	})
}

// decodeJSON reads a bounded JSON body into v, writing a 400 on failure.
func (g *Gateway) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, APIResponse{Message: "request body too large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, APIResponse{Message: "invalid JSON body"})
		return false
	}
	return true
}

// sendServiceError maps an admin.Error to its response. The service has
// already logged the failure.
func (g *Gateway) sendServiceError(w http.ResponseWriter, err error) {
	msg := admin.MessageOf(err)

	switch admin.KindOf(err) {
	case admin.KindAuthorization:
		writeJSON(w, http.StatusUnauthorized, APIResponse{Message: msg})
	case admin.KindValidation:
		writeJSON(w, http.StatusBadRequest, APIResponse{Message: msg})
	case admin.KindOwnership:
		writeJSON(w, http.StatusNotFound, APIResponse{Message: msg})
	case admin.KindConflict:
		writeJSON(w, http.StatusOK, APIResponse{Message: msg})
	default:
		writeJSON(w, http.StatusInternalServerError, APIResponse{Message: msg})
	}
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// clientIP returns the request's remote host. RealIP has already applied
// X-Forwarded-For / X-Real-IP.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
