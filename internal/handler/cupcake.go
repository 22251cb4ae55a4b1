package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/sakif/cupcakes/internal/apperror"
	"github.com/sakif/cupcakes/internal/auth"
	"github.com/sakif/cupcakes/internal/model"
)

// MaxBodyBytes caps request bodies on write routes.
const MaxBodyBytes = 1 << 20 // 1 MiB

// CupcakeService is what CupcakeHandler needs from the service layer.
type CupcakeService interface {
	List(ctx context.Context) ([]model.Cupcake, error)
	Create(ctx context.Context, ownerID, title, flavor string, stars int) (*model.Cupcake, error)
}

// CupcakeHandler serves /cupcakes.
type CupcakeHandler struct {
	cupcakes CupcakeService
	logger   *slog.Logger
}

// NewCupcakeHandler creates a CupcakeHandler.
func NewCupcakeHandler(cupcakes CupcakeService, logger *slog.Logger) *CupcakeHandler {
	return &CupcakeHandler{cupcakes: cupcakes, logger: logger}
}

// List handles GET /cupcakes. It is public.
func (h *CupcakeHandler) List(w http.ResponseWriter, r *http.Request) {
	cupcakes, err := h.cupcakes.List(r.Context())
	if err != nil {
		logAndWriteError(h.logger, w, r, "listing cupcakes failed", err)
		return
	}
	writeJSON(w, http.StatusOK, cupcakes)
}

// createCupcakeRequest is the body of POST /cupcakes.
type createCupcakeRequest struct {
	Title  string `json:"title"`
	Flavor string `json:"flavor"`
	Stars  int    `json:"stars"`
}

// Create handles POST /cupcakes. It must be mounted behind
// auth.RequireBearer: the owner is the subject of the verified token.
//
// BODY FORMATS:
//
//	Content-Type: application/json                  {"title":"Lemon","flavor":"citrus","stars":4}
//	Content-Type: application/x-www-form-urlencoded title=Lemon&flavor=citrus&stars=4
func (h *CupcakeHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		// Only reachable if the route was mounted without RequireBearer.
		DenyBearer(w, r, auth.ErrMissingAuthorization)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	req, err := decodeCupcakeRequest(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorStatus(w, http.StatusRequestEntityTooLarge, NameValidation, "request body too large")
			return
		}
		h.logger.Info("invalid cupcake body", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	cupcake, err := h.cupcakes.Create(r.Context(), claims.Subject, req.Title, req.Flavor, req.Stars)
	if err != nil {
		logAndWriteError(h.logger, w, r, "creating cupcake failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, cupcake)
}

func decodeCupcakeRequest(r *http.Request) (createCupcakeRequest, error) {
	var req createCupcakeRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return req, err
			}
			return req, apperror.ValidationFailed("body", "invalid form body")
		}
		req.Title = r.PostForm.Get("title")
		req.Flavor = r.PostForm.Get("flavor")
		if raw := strings.TrimSpace(r.PostForm.Get("stars")); raw != "" {
			stars, err := strconv.Atoi(raw)
			if err != nil {
				return req, apperror.ValidationFailed("stars", "stars must be a whole number")
			}
			req.Stars = stars
		}
		return req, nil

	case "application/json", "":
		dec := json.NewDecoder(r.Body)
		if err := dec.Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return req, err
			}
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) && typeErr.Field != "" {
				return req, apperror.ValidationFailed(typeErr.Field, typeErr.Field+" has the wrong type")
			}
			return req, apperror.ValidationFailed("body", "invalid JSON body")
		}
		// Exactly one JSON value; trailing whitespace is fine.
		if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return req, err
			}
			return req, apperror.ValidationFailed("body", "unexpected data after JSON body")
		}
		return req, nil

	default:
		return req, apperror.ValidationFailed("body", "unsupported content type "+mediaType)
	}
}
