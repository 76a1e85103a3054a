package response

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/ironvault/btc-options-engine/internal/apperror"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	return c, w
}

func TestErrorMapsValidationKindsTo400(t *testing.T) {
	cases := []error{
		apperror.InvalidInput("bad input"),
		apperror.InsufficientCollateral(100, 50),
		apperror.QuantityExceedsLimit(5),
	}
	for _, err := range cases {
		c, w := newTestContext()
		Error(c, err)
		if w.Code != 400 {
			t.Errorf("expected 400 for %v, got %d", err, w.Code)
		}
	}
}

func TestErrorMapsUpstreamAndStorageKindsTo503(t *testing.T) {
	cases := []error{
		apperror.UpstreamUnavailable("down", errors.New("boom")),
		apperror.UpstreamTimeout("slow", errors.New("boom")),
		apperror.IvUnavailable("no iv"),
		apperror.StorageError("db down", errors.New("boom")),
	}
	for _, err := range cases {
		c, w := newTestContext()
		Error(c, err)
		if w.Code != 503 {
			t.Errorf("expected 503 for %v, got %d", err, w.Code)
		}
	}
}

func TestErrorFallsBackTo500ForUnclassifiedErrors(t *testing.T) {
	c, w := newTestContext()
	Error(c, errors.New("mystery failure"))
	if w.Code != 500 {
		t.Fatalf("expected 500 for an unclassified error, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["error"] != "mystery failure" {
		t.Fatalf("expected the error body to carry the message, got %v", body)
	}
}

func TestOKSends200WithUnwrappedBody(t *testing.T) {
	c, w := newTestContext()
	OK(c, map[string]int{"x": 1})
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestBadRequestSends400WithErrorBody(t *testing.T) {
	c, w := newTestContext()
	BadRequest(c, "missing field")
	if w.Code != 400 {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["error"] != "missing field" {
		t.Fatalf("expected error message in body, got %v", body)
	}
}
