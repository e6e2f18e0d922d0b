package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/franckalain/healthwise/internal/failure"
)

// notice is the user-visible form of a failure.
type notice struct {
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// errorResponse is the JSON body of a failed HTTP request.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Title string `json:"title,omitempty"`
}

// noticeFor classifies err into an HTTP status and a notice. Internal
// detail of generation and persistence failures is logged, not shown.
func noticeFor(err error) (int, notice) {
	var fe *failure.Error
	if errors.As(err, &fe) {
		switch fe.Kind {
		case failure.Validation:
			return http.StatusUnprocessableEntity, notice{fe.Kind.String(), "Check your input", fe.Msg}
		case failure.Generation:
			return http.StatusBadGateway, notice{fe.Kind.String(), "Analysis Failed",
				"The AI analysis could not be completed. Please try again."}
		case failure.DeviceAccess:
			return http.StatusConflict, notice{fe.Kind.String(), "Camera Access Denied",
				"Please enable camera permissions in your browser settings to use this feature."}
		case failure.Persistence:
			return http.StatusServiceUnavailable, notice{fe.Kind.String(), "Storage Unavailable",
				"Your data could not be saved or loaded. Please try again."}
		}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			msg = m
		}
		kind := "internal"
		if he.Code < http.StatusInternalServerError {
			kind = failure.Validation.String()
		}
		return he.Code, notice{kind, http.StatusText(he.Code), msg}
	}

	return http.StatusInternalServerError, notice{"internal", "Something went wrong", "An unexpected error occurred."}
}

// handleError is the echo HTTPErrorHandler.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, n := noticeFor(err)
	logger := zerolog.Ctx(c.Request().Context())
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Int("status", status).Msg("Request failed")
	} else {
		logger.Debug().Err(err).Int("status", status).Msg("Request rejected")
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, errorResponse{Error: n.Message, Kind: n.Kind, Title: n.Title})
	}
	if err != nil {
		logger.Error().Err(err).Msg("Failed to write error response")
	}
}
